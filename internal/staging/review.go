package staging

import (
	"context"

	"github.com/hostdesk/backend/internal/storage"
	"github.com/hostdesk/backend/internal/storage/models"
)

// Review lists staging records for human review.
type Review struct {
	staging   *storage.StagingRepository
	conflicts *ConflictDetector
}

// NewReview creates a review service.
func NewReview(db *storage.DB) *Review {
	return &Review{
		staging:   storage.NewStagingRepository(db),
		conflicts: NewConflictDetector(storage.NewReservationRepository(db)),
	}
}

// ListPending returns the pending records of a property annotated with conflicts.
func (r *Review) ListPending(ctx context.Context, propertyID string) ([]models.StagingWithConflicts, error) {
	return r.List(ctx, propertyID, models.StageStatusPending)
}

// List returns the records of a property in status, or all when status is
// empty. Only pending records are checked for conflicts.
func (r *Review) List(ctx context.Context, propertyID, status string) ([]models.StagingWithConflicts, error) {
	records, err := r.staging.ListByProperty(ctx, propertyID, status)
	if err != nil {
		return nil, err
	}

	out := make([]models.StagingWithConflicts, 0, len(records))
	for i := range records {
		item := models.StagingWithConflicts{
			StagingRecord: records[i],
			Conflicts:     []models.Conflict{},
		}
		if records[i].IsPending() {
			item.Conflicts, err = r.conflicts.FindConflicts(ctx, &records[i])
			if err != nil {
				return nil, err
			}
		}
		out = append(out, item)
	}

	return out, nil
}

// Get returns one record annotated with conflicts, or ErrNotFound.
func (r *Review) Get(ctx context.Context, id string) (*models.StagingWithConflicts, error) {
	rec, err := r.staging.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}

	item := &models.StagingWithConflicts{StagingRecord: *rec, Conflicts: []models.Conflict{}}
	if rec.IsPending() {
		if item.Conflicts, err = r.conflicts.FindConflicts(ctx, rec); err != nil {
			return nil, err
		}
	}
	return item, nil
}
