package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostdesk/backend/internal/storage/models"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data, ok := <-c.Send():
		require.True(t, ok, "client channel closed")
		var raw struct {
			Type    MessageType     `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(data, &raw))
		return Message{Type: raw.Type, Payload: raw.Payload}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestHub_BroadcastReachesEveryClient(t *testing.T) {
	hub := startHub(t)
	a, b := NewClient(hub), NewClient(hub)
	hub.Register(a)
	hub.Register(b)

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	NewEventBroadcaster(hub).BroadcastSyncCompleted(&models.SyncResult{
		PropertyID: "prop-1",
		Status:     models.AuditStatusChangesDetected,
		NewCount:   1,
		PerFeedResults: models.FeedResults{
			{Status: models.SyncStatusSuccess},
			{Status: models.SyncStatusError},
		},
	})

	for _, c := range []*Client{a, b} {
		msg := receive(t, c)
		assert.Equal(t, TypeSyncCompleted, msg.Type)

		var payload SyncCompletedPayload
		require.NoError(t, json.Unmarshal(msg.Payload.(json.RawMessage), &payload))
		assert.Equal(t, "prop-1", payload.PropertyID)
		assert.Equal(t, 1, payload.NewCount)
		assert.True(t, payload.Degraded)
	}
}

func TestHub_UnregisterClosesClient(t *testing.T) {
	hub := startHub(t)
	c := NewClient(hub)
	hub.Register(c)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Unregister(c)
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)

	_, ok := <-c.Send()
	assert.False(t, ok)
	assert.False(t, c.Reply([]byte("late")), "replies to a gone client are dropped")
}

func TestHub_ShutdownDoesNotBlockRegister(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	c := NewClient(hub)
	hub.Register(c)
	hub.Unregister(c)

	_, ok := <-c.Send()
	assert.False(t, ok)
}

func TestClient_Reply(t *testing.T) {
	hub := startHub(t)
	c := NewClient(hub)
	hub.Register(c)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	assert.True(t, c.Reply([]byte(`{"type":"pong"}`)))
	assert.Equal(t, TypePong, receive(t, c).Type)
}

func TestEventBroadcaster_Messages(t *testing.T) {
	hub := startHub(t)
	c := NewClient(hub)
	hub.Register(c)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	events := NewEventBroadcaster(hub)
	reservationID := "res-1"

	events.BroadcastSyncError("prop-1", errors.New("all feeds failed"))
	events.BroadcastStagingCreated("prop-1", []models.StagingRecord{{ID: "s-1"}, {ID: "s-2"}})
	events.BroadcastStagingDecided(&models.StagingRecord{
		ID: "s-1", PropertyID: "prop-1", StageStatus: models.StageStatusConfirmed, ReservationID: &reservationID,
	}, "confirm")
	events.BroadcastNotification(&models.Notification{ID: "n-1", Kind: models.NotificationSyncError, Title: "Calendar sync failed"})

	syncErr := receive(t, c)
	assert.Equal(t, TypeSyncError, syncErr.Type)
	assert.Contains(t, string(syncErr.Payload.(json.RawMessage)), "all feeds failed")

	created := receive(t, c)
	assert.Equal(t, TypeStagingCreated, created.Type)
	var createdPayload StagingCreatedPayload
	require.NoError(t, json.Unmarshal(created.Payload.(json.RawMessage), &createdPayload))
	assert.Equal(t, []string{"s-1", "s-2"}, createdPayload.StagingIDs)

	decided := receive(t, c)
	assert.Equal(t, TypeStagingDecided, decided.Type)
	var decidedPayload StagingDecidedPayload
	require.NoError(t, json.Unmarshal(decided.Payload.(json.RawMessage), &decidedPayload))
	assert.Equal(t, "res-1", decidedPayload.ReservationID)
	assert.Equal(t, "confirm", decidedPayload.Action)

	note := receive(t, c)
	assert.Equal(t, TypeNotification, note.Type)
	var notePayload NotificationPayload
	require.NoError(t, json.Unmarshal(note.Payload.(json.RawMessage), &notePayload))
	assert.Equal(t, "error", notePayload.Level)
}
