package storage

import (
	"context"
	"fmt"

	"github.com/hostdesk/backend/internal/storage/models"
)

// NotificationRepository persists dashboard notifications.
type NotificationRepository struct {
	BaseRepository
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a notification.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	n.ID = GenerateID()
	n.CreatedAt = r.Now()

	_, err := r.Q().ExecContext(ctx, `
		INSERT INTO notifications (id, kind, property_id, title, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, n.ID, n.Kind, n.PropertyID, n.Title, n.Message, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}

	return nil
}

// ListByProperty returns the latest notifications of a property, newest first.
func (r *NotificationRepository) ListByProperty(ctx context.Context, propertyID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	notifications := []models.Notification{}
	err := r.Q().SelectContext(ctx, &notifications, `
		SELECT id, kind, property_id, title, message, created_at
		FROM notifications
		WHERE property_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, propertyID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}

	return notifications, nil
}
