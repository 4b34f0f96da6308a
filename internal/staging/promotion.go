package staging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/hostdesk/backend/internal/storage"
	"github.com/hostdesk/backend/internal/storage/models"
	"github.com/hostdesk/backend/internal/validation"
)

// Decision actions.
const (
	ActionConfirm = "confirm"
	ActionReject  = "reject"
)

// DecisionEvents receives decisions as they are committed.
type DecisionEvents interface {
	BroadcastStagingDecided(rec *models.StagingRecord, action string)
}

// DecisionResult is the outcome of confirm or reject.
type DecisionResult struct {
	Staging     *models.StagingRecord        `json:"staging"`
	Reservation *models.ConfirmedReservation `json:"reservation,omitempty"`
	// Duplicate is set when confirm found an existing promotion.
	Duplicate bool `json:"duplicate"`
}

// Workflow moves staging records from pending to confirmed or rejected.
type Workflow struct {
	db           *storage.DB
	staging      *storage.StagingRepository
	reservations *storage.ReservationRepository
	guests       *storage.GuestRepository
	validator    *validation.Validator
	events       DecisionEvents
}

// NewWorkflow creates a promotion workflow. events may be nil.
func NewWorkflow(db *storage.DB, validator *validation.Validator, events DecisionEvents) *Workflow {
	return &Workflow{
		db:           db,
		staging:      storage.NewStagingRepository(db),
		reservations: storage.NewReservationRepository(db),
		guests:       storage.NewGuestRepository(db),
		validator:    validator,
		events:       events,
	}
}

// Decide dispatches on action. fields are required for confirm.
func (w *Workflow) Decide(ctx context.Context, stagingID, action string, fields *models.CommercialFields) (*DecisionResult, error) {
	switch action {
	case ActionConfirm:
		if fields == nil {
			fields = &models.CommercialFields{}
		}
		return w.Confirm(ctx, stagingID, *fields)
	case ActionReject:
		rec, err := w.Reject(ctx, stagingID)
		if err != nil {
			return nil, err
		}
		return &DecisionResult{Staging: rec}, nil
	default:
		return nil, ErrInvalidAction
	}
}

// Confirm promotes a pending record into a confirmed reservation. Confirming
// an already promoted record returns the existing reservation.
func (w *Workflow) Confirm(ctx context.Context, stagingID string, fields models.CommercialFields) (*DecisionResult, error) {
	result := &DecisionResult{}

	err := w.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		staging := w.staging.WithTx(tx)
		reservations := w.reservations.WithTx(tx)

		rec, err := staging.GetByID(ctx, stagingID)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrNotFound
		}

		if rec.ReservationID != nil {
			res, err := reservations.GetByID(ctx, *rec.ReservationID)
			if err != nil {
				return err
			}
			if res == nil {
				return fmt.Errorf("reservation %s of staging record %s is missing", *rec.ReservationID, rec.ID)
			}
			result.Staging = rec
			result.Reservation = res
			result.Duplicate = true
			return nil
		}
		if !rec.IsPending() {
			return ErrNotPending
		}

		if err := w.validator.Validate(&fields); err != nil {
			return err
		}

		var guestID *string
		name := strings.TrimSpace(fields.GuestName)
		if name == "" {
			name = rec.GuestNameHint
		}
		if name != "" {
			id, err := w.guests.WithTx(tx).CreateIfAbsent(ctx, name)
			if err != nil {
				return err
			}
			guestID = &id
		}

		res := &models.ConfirmedReservation{
			PropertyID:     rec.PropertyID,
			GuestID:        guestID,
			CheckIn:        rec.CheckIn,
			CheckOut:       rec.CheckOut,
			Status:         models.ReservationStatusConfirmed,
			Price:          fields.Price,
			GuestCount:     fields.GuestCount,
			Notes:          fields.Notes,
			SourcePlatform: rec.Platform,
			StagingID:      &rec.ID,
		}
		if err := reservations.Create(ctx, res); err != nil {
			return err
		}

		ok, err := staging.MarkConfirmed(ctx, rec.ID, res.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotPending
		}

		rec.StageStatus = models.StageStatusConfirmed
		rec.ReservationID = &res.ID
		result.Staging = rec
		result.Reservation = res
		return nil
	})
	if err != nil {
		var verrs validation.Errors
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrNotPending) && !errors.As(err, &verrs) {
			log.Error().Err(err).Str("staging_id", stagingID).Msg("confirm failed")
		}
		return nil, err
	}

	if result.Duplicate {
		log.Info().
			Str("staging_id", stagingID).
			Str("reservation_id", result.Reservation.ID).
			Msg("staging record already confirmed")
		return result, nil
	}

	log.Info().
		Str("staging_id", stagingID).
		Str("property_id", result.Staging.PropertyID).
		Str("reservation_id", result.Reservation.ID).
		Msg("staging record confirmed")

	if w.events != nil {
		w.events.BroadcastStagingDecided(result.Staging, ActionConfirm)
	}

	return result, nil
}

// Reject moves a pending record to rejected. Nothing else changes.
func (w *Workflow) Reject(ctx context.Context, stagingID string) (*models.StagingRecord, error) {
	var rec *models.StagingRecord

	err := w.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		staging := w.staging.WithTx(tx)

		var err error
		rec, err = staging.GetByID(ctx, stagingID)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrNotFound
		}

		ok, err := staging.MarkRejected(ctx, stagingID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotPending
		}

		rec.StageStatus = models.StageStatusRejected
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("staging_id", stagingID).
		Str("property_id", rec.PropertyID).
		Msg("staging record rejected")

	if w.events != nil {
		w.events.BroadcastStagingDecided(rec, ActionReject)
	}

	return rec, nil
}
