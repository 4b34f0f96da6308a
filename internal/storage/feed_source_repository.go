package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/hostdesk/backend/internal/storage/models"
)

const feedSourceColumns = `
	id, property_id, platform, name, url, active, last_sync_at,
	last_sync_status, last_sync_error, created_at, updated_at`

// FeedSourceRepository provides data access for configured booking feeds.
type FeedSourceRepository struct {
	BaseRepository
}

// NewFeedSourceRepository creates a new feed source repository.
func NewFeedSourceRepository(db *DB) *FeedSourceRepository {
	return &FeedSourceRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a new feed source.
func (r *FeedSourceRepository) Create(ctx context.Context, feed *models.FeedSource) error {
	feed.ID = GenerateID()
	feed.CreatedAt = r.Now()
	feed.UpdatedAt = feed.CreatedAt
	feed.LastSyncStatus = models.SyncStatusPending

	_, err := r.Q().ExecContext(ctx, `
		INSERT INTO feed_sources (
			id, property_id, platform, name, url, active, last_sync_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		feed.ID, feed.PropertyID, feed.Platform, feed.Name, feed.URL,
		feed.Active, feed.LastSyncStatus, feed.CreatedAt, feed.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting feed source: %w", err)
	}

	return nil
}

// GetByID retrieves a feed source by its ID. It returns nil when none exists.
func (r *FeedSourceRepository) GetByID(ctx context.Context, id string) (*models.FeedSource, error) {
	feed := &models.FeedSource{}

	err := r.Q().GetContext(ctx, feed, `SELECT `+feedSourceColumns+` FROM feed_sources WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying feed source: %w", err)
	}

	return feed, nil
}

// ListByProperty retrieves all feed sources of a property.
func (r *FeedSourceRepository) ListByProperty(ctx context.Context, propertyID string) ([]models.FeedSource, error) {
	feeds := []models.FeedSource{}
	err := r.Q().SelectContext(ctx, &feeds, `
		SELECT `+feedSourceColumns+`
		FROM feed_sources
		WHERE property_id = ?
		ORDER BY platform, name
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("querying feed sources: %w", err)
	}

	return feeds, nil
}

// GetActiveFeedSources retrieves the active feeds of a property.
func (r *FeedSourceRepository) GetActiveFeedSources(ctx context.Context, propertyID string) ([]models.FeedSource, error) {
	feeds := []models.FeedSource{}
	err := r.Q().SelectContext(ctx, &feeds, `
		SELECT `+feedSourceColumns+`
		FROM feed_sources
		WHERE property_id = ? AND active = 1
		ORDER BY platform, name
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("querying active feed sources: %w", err)
	}

	return feeds, nil
}

// ListPropertiesWithActiveFeeds returns every property that has at least one
// active feed, least recently synced first.
func (r *FeedSourceRepository) ListPropertiesWithActiveFeeds(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.Q().SelectContext(ctx, &ids, `
		SELECT property_id
		FROM feed_sources
		WHERE active = 1
		GROUP BY property_id
		ORDER BY MIN(COALESCE(last_sync_at, '')) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying properties with feeds: %w", err)
	}

	return ids, nil
}

// Update updates the editable fields of a feed source.
func (r *FeedSourceRepository) Update(ctx context.Context, feed *models.FeedSource) error {
	feed.UpdatedAt = r.Now()

	result, err := r.Q().ExecContext(ctx, `
		UPDATE feed_sources SET
			platform = ?, name = ?, url = ?, active = ?, updated_at = ?
		WHERE id = ?
	`,
		feed.Platform, feed.Name, feed.URL, feed.Active, feed.UpdatedAt, feed.ID,
	)
	if err != nil {
		return fmt.Errorf("updating feed source: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("feed source not found: %s", feed.ID)
	}

	return nil
}

// UpdateSyncStatus records the outcome of the latest fetch of a feed.
// last_sync_at only moves forward on success.
func (r *FeedSourceRepository) UpdateSyncStatus(ctx context.Context, id, status string, syncError *string, at time.Time) error {
	var lastSyncAt *time.Time
	if status == models.SyncStatusSuccess {
		lastSyncAt = &at
	}

	_, err := r.Q().ExecContext(ctx, `
		UPDATE feed_sources SET
			last_sync_status = ?, last_sync_error = ?,
			last_sync_at = COALESCE(?, last_sync_at), updated_at = ?
		WHERE id = ?
	`, status, syncError, lastSyncAt, r.Now(), id)
	if err != nil {
		return fmt.Errorf("updating feed sync status: %w", err)
	}

	return nil
}

// Delete removes a feed source by ID.
func (r *FeedSourceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.Q().ExecContext(ctx, "DELETE FROM feed_sources WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting feed source: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("feed source not found: %s", id)
	}

	return nil
}
