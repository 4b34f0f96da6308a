package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hostdesk/backend/internal/storage/models"
)

// FingerprintRepository stores the last reconciled checksum per property.
type FingerprintRepository struct {
	BaseRepository
}

// NewFingerprintRepository creates a new fingerprint repository.
func NewFingerprintRepository(db *DB) *FingerprintRepository {
	return &FingerprintRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// WithTx returns a repository whose statements run inside tx.
func (r *FingerprintRepository) WithTx(tx *sqlx.Tx) *FingerprintRepository {
	return &FingerprintRepository{BaseRepository: r.withTx(tx)}
}

// Get returns the stored fingerprint of a property, or nil when none exists.
func (r *FingerprintRepository) Get(ctx context.Context, propertyID string) (*models.SyncFingerprint, error) {
	fp := &models.SyncFingerprint{}

	err := r.Q().GetContext(ctx, fp, `
		SELECT property_id, checksum, computed_at, event_count
		FROM sync_fingerprints WHERE property_id = ?
	`, propertyID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying fingerprint: %w", err)
	}

	return fp, nil
}

// Upsert overwrites the fingerprint of a property.
func (r *FingerprintRepository) Upsert(ctx context.Context, fp *models.SyncFingerprint) error {
	if fp.ComputedAt.IsZero() {
		fp.ComputedAt = r.Now()
	}

	_, err := r.Q().ExecContext(ctx, `
		INSERT INTO sync_fingerprints (property_id, checksum, computed_at, event_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(property_id) DO UPDATE SET
			checksum = excluded.checksum,
			computed_at = excluded.computed_at,
			event_count = excluded.event_count
	`, fp.PropertyID, fp.Checksum, fp.ComputedAt, fp.EventCount)
	if err != nil {
		return fmt.Errorf("upserting fingerprint: %w", err)
	}

	return nil
}

// AuditRepository provides access to the append-only sync audit log.
type AuditRepository struct {
	BaseRepository
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Append writes a new audit row and sets its ID.
func (r *AuditRepository) Append(ctx context.Context, audit *models.SyncAudit) error {
	if audit.Timestamp.IsZero() {
		audit.Timestamp = r.Now()
	}

	result, err := r.Q().ExecContext(ctx, `
		INSERT INTO sync_audits (property_id, created_at, status, message, per_feed_results)
		VALUES (?, ?, ?, ?, ?)
	`, audit.PropertyID, audit.Timestamp, audit.Status, audit.Message, audit.PerFeedResults)
	if err != nil {
		return fmt.Errorf("inserting sync audit: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading audit id: %w", err)
	}
	audit.ID = id

	return nil
}

// ListByProperty returns the most recent audit rows of a property, newest first.
func (r *AuditRepository) ListByProperty(ctx context.Context, propertyID string, limit int) ([]models.SyncAudit, error) {
	if limit <= 0 {
		limit = 50
	}

	audits := []models.SyncAudit{}
	err := r.Q().SelectContext(ctx, &audits, `
		SELECT id, property_id, created_at, status, message, per_feed_results
		FROM sync_audits
		WHERE property_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, propertyID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync audits: %w", err)
	}

	return audits, nil
}
