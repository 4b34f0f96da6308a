package calendar

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hostdesk/backend/internal/storage/models"
)

// StagingStore is the part of the staging ledger the reconciler writes.
type StagingStore interface {
	ListLiveByProperty(ctx context.Context, propertyID string) ([]models.StagingRecord, error)
	HasDisappeared(ctx context.Context, syncUID string) (bool, error)
	Insert(ctx context.Context, rec *models.StagingRecord) error
	Update(ctx context.Context, rec *models.StagingRecord, seenAt time.Time) error
	Touch(ctx context.Context, id string, seenAt time.Time) error
	MarkDisappeared(ctx context.Context, ids []string, at time.Time) (int, error)
}

// ReconcileInput is one full pull for a property.
type ReconcileInput struct {
	PropertyID string
	// Events from every feed of the property. Blocked events are ignored.
	Events []models.ParsedEvent
	// Incomplete names platforms with at least one feed that failed in this
	// pull. Their pending records are never marked disappeared.
	Incomplete map[string]bool
	SeenAt     time.Time
}

// ReconcileResult summarizes the writes of one reconcile pass.
type ReconcileResult struct {
	Created     int
	Updated     int
	Unchanged   int
	Terminal    int
	Disappeared int
	Duplicates  int
	NewRecords  []models.StagingRecord
}

// Reconciler upserts parsed reservations into the staging ledger.
type Reconciler struct{}

// NewReconciler creates a reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Reconcile applies in to store. Running it twice with the same events creates
// nothing and changes no stage status the second time.
func (r *Reconciler) Reconcile(ctx context.Context, store StagingStore, in ReconcileInput) (*ReconcileResult, error) {
	seenAt := in.SeenAt
	if seenAt.IsZero() {
		seenAt = time.Now().UTC()
	}

	live, err := store.ListLiveByProperty(ctx, in.PropertyID)
	if err != nil {
		return nil, err
	}
	bySyncUID := make(map[string]*models.StagingRecord, len(live))
	for i := range live {
		bySyncUID[live[i].SyncUID] = &live[i]
	}

	result := &ReconcileResult{}
	seen := make(map[string]bool, len(in.Events))

	for _, event := range in.Events {
		if !event.IsReservation {
			continue
		}

		key := event.SyncUID()
		if seen[key] {
			result.Duplicates++
			continue
		}
		seen[key] = true

		rec, ok := bySyncUID[key]
		switch {
		case ok && rec.IsTerminal():
			result.Terminal++

		case ok && rec.DiffersFrom(event):
			rec.ApplyEvent(event)
			if err := store.Update(ctx, rec, seenAt); err != nil {
				return nil, err
			}
			result.Updated++

		case ok:
			if err := store.Touch(ctx, rec.ID, seenAt); err != nil {
				return nil, err
			}
			result.Unchanged++

		default:
			reappeared, err := store.HasDisappeared(ctx, key)
			if err != nil {
				return nil, err
			}
			if reappeared {
				log.Warn().
					Str("property_id", in.PropertyID).
					Str("sync_uid", key).
					Msg("uid reappeared after disappearing, staging as a new pending record")
			}

			created := models.StagingRecord{
				PropertyID:  in.PropertyID,
				Platform:    event.Platform,
				SyncUID:     key,
				StageStatus: models.StageStatusPending,
				LastSeenAt:  seenAt,
				CreatedAt:   seenAt,
			}
			created.ApplyEvent(event)
			if err := store.Insert(ctx, &created); err != nil {
				return nil, err
			}
			result.Created++
			result.NewRecords = append(result.NewRecords, created)
		}
	}

	var gone []string
	for _, rec := range live {
		if rec.IsPending() && !seen[rec.SyncUID] && !in.Incomplete[rec.Platform] {
			gone = append(gone, rec.ID)
		}
	}
	if len(gone) > 0 {
		n, err := store.MarkDisappeared(ctx, gone, seenAt)
		if err != nil {
			return nil, err
		}
		result.Disappeared = n
	}

	return result, nil
}
