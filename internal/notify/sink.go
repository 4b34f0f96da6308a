// Package notify raises dashboard notifications.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/hostdesk/backend/internal/storage/models"
)

// Store persists notifications.
type Store interface {
	Create(ctx context.Context, n *models.Notification) error
}

// Broadcaster pushes a stored notification to live clients.
type Broadcaster interface {
	BroadcastNotification(n *models.Notification)
}

// Sink stores notifications and forwards them to connected dashboards.
type Sink struct {
	store       Store
	broadcaster Broadcaster
}

// NewSink creates a sink. broadcaster may be nil.
func NewSink(store Store, broadcaster Broadcaster) *Sink {
	return &Sink{store: store, broadcaster: broadcaster}
}

// Raise records a notification of kind for a property.
func (s *Sink) Raise(ctx context.Context, kind, propertyID, title, message string) error {
	n := &models.Notification{
		Kind:       kind,
		PropertyID: propertyID,
		Title:      title,
		Message:    message,
	}
	if err := s.store.Create(ctx, n); err != nil {
		return fmt.Errorf("storing notification: %w", err)
	}

	log.Info().
		Str("kind", kind).
		Str("property_id", propertyID).
		Str("title", title).
		Msg("notification raised")

	if s.broadcaster != nil {
		s.broadcaster.BroadcastNotification(n)
	}
	return nil
}
