package websocket

import (
	"github.com/rs/zerolog/log"

	"github.com/hostdesk/backend/internal/storage/models"
)

// EventBroadcaster handles broadcasting WebSocket events.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// BroadcastSyncCompleted sends a sync completed event.
func (b *EventBroadcaster) BroadcastSyncCompleted(result *models.SyncResult) {
	payload := SyncCompletedPayload{
		PropertyID:        result.PropertyID,
		Status:            result.Status,
		Degraded:          result.Degraded(),
		EventsFound:       result.EventsFound,
		ReservationsFound: result.ReservationsFound,
		NewCount:          result.NewCount,
		UpdatedCount:      result.UpdatedCount,
		DisappearedCount:  result.DisappearedCount,
	}

	b.broadcast(NewMessage(TypeSyncCompleted, payload))
}

// BroadcastSyncError sends a sync error event.
func (b *EventBroadcaster) BroadcastSyncError(propertyID string, err error) {
	payload := SyncErrorPayload{
		PropertyID: propertyID,
		Error:      "sync_error",
		Message:    err.Error(),
	}

	b.broadcast(NewMessage(TypeSyncError, payload))
}

// BroadcastStagingCreated announces new staging records.
func (b *EventBroadcaster) BroadcastStagingCreated(propertyID string, records []models.StagingRecord) {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}

	b.broadcast(NewMessage(TypeStagingCreated, StagingCreatedPayload{
		PropertyID: propertyID,
		StagingIDs: ids,
	}))
}

// BroadcastStagingDecided sends a confirm/reject outcome.
func (b *EventBroadcaster) BroadcastStagingDecided(rec *models.StagingRecord, action string) {
	payload := StagingDecidedPayload{
		StagingID:   rec.ID,
		PropertyID:  rec.PropertyID,
		Action:      action,
		StageStatus: rec.StageStatus,
	}
	if rec.ReservationID != nil {
		payload.ReservationID = *rec.ReservationID
	}

	b.broadcast(NewMessage(TypeStagingDecided, payload))
}

// BroadcastFeedSourceSaved announces a created or updated feed source.
func (b *EventBroadcaster) BroadcastFeedSourceSaved(feed *models.FeedSource) {
	b.broadcast(NewMessage(TypeFeedSourceSaved, feed))
}

// BroadcastNotification sends a notification to all connected clients.
func (b *EventBroadcaster) BroadcastNotification(n *models.Notification) {
	level := "info"
	switch n.Kind {
	case models.NotificationNewBooking:
		level = "success"
	case models.NotificationSyncError:
		level = "error"
	}

	payload := NotificationPayload{
		ID:          n.ID,
		Kind:        n.Kind,
		PropertyID:  n.PropertyID,
		Level:       level,
		Title:       n.Title,
		Message:     n.Message,
		Dismissible: true,
	}

	b.broadcast(NewMessage(TypeNotification, payload))
}

// broadcast sends a message to all connected clients.
func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		log.Error().Err(err).Str("type", string(msg.Type)).Msg("encoding WebSocket message")
		return
	}

	b.hub.Broadcast(data)
}
