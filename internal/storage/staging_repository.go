package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hostdesk/backend/internal/storage/models"
)

const stagingColumns = `
	id, property_id, platform, feed_id, sync_uid, check_in, check_out,
	guest_name_hint, status_text, phone_last_four, stage_status, reservation_id,
	last_seen_at, disappeared_at, created_at, updated_at`

// StagingRepository provides data access for the staging ledger.
type StagingRepository struct {
	BaseRepository
}

// NewStagingRepository creates a new staging repository.
func NewStagingRepository(db *DB) *StagingRepository {
	return &StagingRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// WithTx returns a repository whose statements run inside tx.
func (r *StagingRepository) WithTx(tx *sqlx.Tx) *StagingRepository {
	return &StagingRepository{BaseRepository: r.withTx(tx)}
}

// Insert stores a new staging record. The caller sets the timestamps so that
// one reconcile pass shares a single sighting time.
func (r *StagingRepository) Insert(ctx context.Context, rec *models.StagingRecord) error {
	if rec.ID == "" {
		rec.ID = GenerateID()
	}
	if rec.StageStatus == "" {
		rec.StageStatus = models.StageStatusPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.Now()
	}
	if rec.LastSeenAt.IsZero() {
		rec.LastSeenAt = rec.CreatedAt
	}
	rec.UpdatedAt = rec.CreatedAt

	_, err := r.Q().NamedExecContext(ctx, `
		INSERT INTO staging_records (
			id, property_id, platform, feed_id, sync_uid, check_in, check_out,
			guest_name_hint, status_text, phone_last_four, stage_status, reservation_id,
			last_seen_at, disappeared_at, created_at, updated_at
		) VALUES (
			:id, :property_id, :platform, :feed_id, :sync_uid, :check_in, :check_out,
			:guest_name_hint, :status_text, :phone_last_four, :stage_status, :reservation_id,
			:last_seen_at, :disappeared_at, :created_at, :updated_at
		)
	`, rec)
	if err != nil {
		return fmt.Errorf("inserting staging record: %w", err)
	}

	return nil
}

// GetByID retrieves a staging record by its ID. It returns nil when none exists.
func (r *StagingRepository) GetByID(ctx context.Context, id string) (*models.StagingRecord, error) {
	rec := &models.StagingRecord{}

	err := r.Q().GetContext(ctx, rec, `SELECT `+stagingColumns+` FROM staging_records WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying staging record: %w", err)
	}

	return rec, nil
}

// ListLiveByProperty returns every record of a property that has not
// disappeared, keyed for reconciliation.
func (r *StagingRepository) ListLiveByProperty(ctx context.Context, propertyID string) ([]models.StagingRecord, error) {
	records := []models.StagingRecord{}
	err := r.Q().SelectContext(ctx, &records, `
		SELECT `+stagingColumns+`
		FROM staging_records
		WHERE property_id = ? AND stage_status != ?
	`, propertyID, models.StageStatusDisappeared)
	if err != nil {
		return nil, fmt.Errorf("querying live staging records: %w", err)
	}

	return records, nil
}

// HasDisappeared reports whether a record with syncUID disappeared earlier.
func (r *StagingRepository) HasDisappeared(ctx context.Context, syncUID string) (bool, error) {
	var count int
	err := r.Q().GetContext(ctx, &count, `
		SELECT COUNT(*) FROM staging_records WHERE sync_uid = ? AND stage_status = ?
	`, syncUID, models.StageStatusDisappeared)
	if err != nil {
		return false, fmt.Errorf("querying disappeared staging records: %w", err)
	}

	return count > 0, nil
}

// ListByProperty returns the records of a property, optionally filtered by
// stage status, ordered by check-in date.
func (r *StagingRepository) ListByProperty(ctx context.Context, propertyID, status string) ([]models.StagingRecord, error) {
	query := `SELECT ` + stagingColumns + ` FROM staging_records WHERE property_id = ?`
	args := []any{propertyID}
	if status != "" {
		query += ` AND stage_status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY check_in, created_at`

	records := []models.StagingRecord{}
	if err := r.Q().SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("querying staging records: %w", err)
	}

	return records, nil
}

// Update writes the mutable fields of a pending record and refreshes its
// last-seen time. Terminal rows are never touched.
func (r *StagingRepository) Update(ctx context.Context, rec *models.StagingRecord, seenAt time.Time) error {
	rec.LastSeenAt = seenAt
	rec.UpdatedAt = seenAt

	result, err := r.Q().ExecContext(ctx, `
		UPDATE staging_records SET
			feed_id = ?, check_in = ?, check_out = ?, guest_name_hint = ?,
			status_text = ?, phone_last_four = ?, last_seen_at = ?, updated_at = ?
		WHERE id = ? AND stage_status = ?
	`,
		rec.FeedID, rec.CheckIn, rec.CheckOut, rec.GuestNameHint,
		rec.StatusText, rec.PhoneLastFour, rec.LastSeenAt, rec.UpdatedAt,
		rec.ID, models.StageStatusPending,
	)
	if err != nil {
		return fmt.Errorf("updating staging record: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("pending staging record not found: %s", rec.ID)
	}

	return nil
}

// Touch refreshes the last-seen time of a pending record without changing
// anything else.
func (r *StagingRepository) Touch(ctx context.Context, id string, seenAt time.Time) error {
	_, err := r.Q().ExecContext(ctx, `
		UPDATE staging_records SET last_seen_at = ?
		WHERE id = ? AND stage_status = ?
	`, seenAt, id, models.StageStatusPending)
	if err != nil {
		return fmt.Errorf("touching staging record: %w", err)
	}

	return nil
}

// MarkDisappeared moves pending records to the disappeared state.
func (r *StagingRepository) MarkDisappeared(ctx context.Context, ids []string, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`
		UPDATE staging_records SET
			stage_status = ?, disappeared_at = ?, updated_at = ?
		WHERE stage_status = ? AND id IN (?)
	`, models.StageStatusDisappeared, at, at, models.StageStatusPending, ids)
	if err != nil {
		return 0, fmt.Errorf("building disappearance query: %w", err)
	}

	result, err := r.Q().ExecContext(ctx, r.Q().Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("marking staging records disappeared: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	return int(rowsAffected), nil
}

// MarkConfirmed links a pending record to its reservation. It reports false
// when the record was no longer pending or already linked.
func (r *StagingRepository) MarkConfirmed(ctx context.Context, id, reservationID string) (bool, error) {
	result, err := r.Q().ExecContext(ctx, `
		UPDATE staging_records SET
			stage_status = ?, reservation_id = ?, updated_at = ?
		WHERE id = ? AND stage_status = ? AND reservation_id IS NULL
	`, models.StageStatusConfirmed, reservationID, r.Now(), id, models.StageStatusPending)
	if err != nil {
		return false, fmt.Errorf("confirming staging record: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected == 1, nil
}

// MarkRejected moves a pending record to the rejected state. It reports false
// when the record was not pending.
func (r *StagingRepository) MarkRejected(ctx context.Context, id string) (bool, error) {
	result, err := r.Q().ExecContext(ctx, `
		UPDATE staging_records SET stage_status = ?, updated_at = ?
		WHERE id = ? AND stage_status = ?
	`, models.StageStatusRejected, r.Now(), id, models.StageStatusPending)
	if err != nil {
		return false, fmt.Errorf("rejecting staging record: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected == 1, nil
}
