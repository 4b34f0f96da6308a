package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeSyncCompleted   MessageType = "sync.completed"
	TypeSyncError       MessageType = "sync.error"
	TypeStagingCreated  MessageType = "staging.created"
	TypeStagingDecided  MessageType = "staging.decided"
	TypeNotification    MessageType = "notification"
	TypeFeedSourceSaved MessageType = "feed_source.saved"

	// Client -> Server command types
	TypePing MessageType = "ping"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncCompletedPayload is the payload for sync.completed events.
type SyncCompletedPayload struct {
	PropertyID        string `json:"property_id"`
	Status            string `json:"status"`
	Degraded          bool   `json:"degraded"`
	EventsFound       int    `json:"events_found"`
	ReservationsFound int    `json:"reservations_found"`
	NewCount          int    `json:"new_count"`
	UpdatedCount      int    `json:"updated_count"`
	DisappearedCount  int    `json:"disappeared_count"`
}

// SyncErrorPayload is the payload for sync.error events.
type SyncErrorPayload struct {
	PropertyID string `json:"property_id"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// StagingCreatedPayload lists staging records created by a sync.
type StagingCreatedPayload struct {
	PropertyID string   `json:"property_id"`
	StagingIDs []string `json:"staging_ids"`
}

// StagingDecidedPayload is the payload for staging.decided events.
type StagingDecidedPayload struct {
	StagingID     string `json:"staging_id"`
	PropertyID    string `json:"property_id"`
	Action        string `json:"action"`
	StageStatus   string `json:"stage_status"`
	ReservationID string `json:"reservation_id,omitempty"`
}

// NotificationPayload is the payload for notification events.
type NotificationPayload struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	PropertyID  string `json:"property_id"`
	Level       string `json:"level"` // info, warning, error, success
	Title       string `json:"title"`
	Message     string `json:"message"`
	Dismissible bool   `json:"dismissible"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
