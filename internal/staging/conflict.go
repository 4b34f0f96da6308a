package staging

import (
	"context"
	"fmt"

	"github.com/hostdesk/backend/internal/storage/models"
)

// ReservationFinder looks up confirmed reservations by date range.
type ReservationFinder interface {
	FindOverlapping(ctx context.Context, propertyID string, checkIn, checkOut models.Date) ([]models.ConfirmedReservation, error)
}

// ConflictDetector finds confirmed reservations that overlap a staged stay.
// It only reads.
type ConflictDetector struct {
	finder ReservationFinder
}

// NewConflictDetector creates a conflict detector.
func NewConflictDetector(finder ReservationFinder) *ConflictDetector {
	return &ConflictDetector{finder: finder}
}

// FindConflicts returns every non-cancelled reservation of the record's
// property whose stay overlaps the record's stay. The reservation created
// from the record itself is not a conflict.
func (d *ConflictDetector) FindConflicts(ctx context.Context, rec *models.StagingRecord) ([]models.Conflict, error) {
	reservations, err := d.finder.FindOverlapping(ctx, rec.PropertyID, rec.CheckIn, rec.CheckOut)
	if err != nil {
		return nil, fmt.Errorf("finding overlapping reservations: %w", err)
	}

	conflicts := []models.Conflict{}
	for _, res := range reservations {
		if res.Status == models.ReservationStatusCancelled {
			continue
		}
		if rec.ReservationID != nil && *rec.ReservationID == res.ID {
			continue
		}
		if !models.Overlaps(res.CheckIn, res.CheckOut, rec.CheckIn, rec.CheckOut) {
			continue
		}

		conflicts = append(conflicts, overlap(rec, res))
	}

	return conflicts, nil
}

// overlap computes the shared window [max(check-ins), min(check-outs)).
func overlap(rec *models.StagingRecord, res models.ConfirmedReservation) models.Conflict {
	start := rec.CheckIn
	if res.CheckIn.After(start) {
		start = res.CheckIn
	}

	end := rec.CheckOut
	if res.CheckOut.Before(end) {
		end = res.CheckOut
	}

	return models.Conflict{
		ReservationID: res.ID,
		CheckIn:       res.CheckIn,
		CheckOut:      res.CheckOut,
		Status:        res.Status,
		OverlapStart:  start,
		OverlapEnd:    end,
	}
}
