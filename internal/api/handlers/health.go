// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hostdesk/backend/internal/calendar"
	"github.com/hostdesk/backend/internal/storage"
	"github.com/hostdesk/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.PingContext(r.Context()) == nil

		status := "healthy"
		code := http.StatusOK
		if !dbConnected {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		writeJSON(w, code, HealthResponse{
			Status:      status,
			DBConnected: dbConnected,
		})
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	FeedsCount       int        `json:"feeds_count"`
	ActiveFeedsCount int        `json:"active_feeds_count"`
	PendingStaging   int        `json:"pending_staging"`
	FailingFeeds     int        `json:"failing_feeds"`
	WebSocketClients int        `json:"websocket_clients"`
	NextSyncAt       *time.Time `json:"next_sync_at,omitempty"`
}

// Status returns a handler that provides system status information.
func Status(db *storage.DB, hub *websocket.Hub, scheduler *calendar.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var resp StatusResponse
		err := db.QueryRowxContext(ctx, `
			SELECT
				(SELECT COUNT(*) FROM feed_sources),
				(SELECT COUNT(*) FROM feed_sources WHERE active = 1),
				(SELECT COUNT(*) FROM feed_sources WHERE last_sync_status = 'error'),
				(SELECT COUNT(*) FROM staging_records WHERE stage_status = 'pending')
		`).Scan(&resp.FeedsCount, &resp.ActiveFeedsCount, &resp.FailingFeeds, &resp.PendingStaging)
		if err != nil {
			log.Warn().Err(err).Msg("counting status rows")
		}

		if hub != nil {
			resp.WebSocketClients = hub.ClientCount()
		}
		if scheduler != nil {
			resp.NextSyncAt = scheduler.NextRun()
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
