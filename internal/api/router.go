// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hostdesk/backend/internal/api/handlers"
	"github.com/hostdesk/backend/internal/api/middleware"
	"github.com/hostdesk/backend/internal/calendar"
	"github.com/hostdesk/backend/internal/staging"
	"github.com/hostdesk/backend/internal/storage"
	"github.com/hostdesk/backend/internal/validation"
	"github.com/hostdesk/backend/internal/websocket"
)

// Services are the dependencies the routes are built from. Scheduler and
// Events may be nil.
type Services struct {
	DB        *storage.DB
	Hub       *websocket.Hub
	Events    *websocket.EventBroadcaster
	Syncer    calendar.PropertySyncer
	Scheduler *calendar.Scheduler
	Workflow  *staging.Workflow
	Review    *staging.Review
	Validator *validation.Validator
	StaticDir string
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(s Services) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(s.DB)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(s.DB, s.Hub, s.Scheduler)).Methods("GET")

	api.HandleFunc("/ws", handlers.WebSocketUpgrade(s.Hub)).Methods("GET")

	// Feed sources
	api.HandleFunc("/properties/{propertyId}/feeds", handlers.ListFeedSources(s.DB)).Methods("GET")
	api.HandleFunc("/properties/{propertyId}/feeds", handlers.CreateFeedSource(s.DB, s.Validator, s.Events)).Methods("POST")
	api.HandleFunc("/feeds/{id}", handlers.GetFeedSource(s.DB)).Methods("GET")
	api.HandleFunc("/feeds/{id}", handlers.UpdateFeedSource(s.DB, s.Validator, s.Events)).Methods("PUT")
	api.HandleFunc("/feeds/{id}", handlers.DeleteFeedSource(s.DB)).Methods("DELETE")

	// Sync
	api.HandleFunc("/properties/{propertyId}/sync", handlers.TriggerSync(s.Syncer, s.Scheduler)).Methods("POST")
	api.HandleFunc("/properties/{propertyId}/sync-audits", handlers.ListSyncAudits(s.DB)).Methods("GET")
	api.HandleFunc("/properties/{propertyId}/notifications", handlers.ListNotifications(s.DB)).Methods("GET")

	// Staging review
	api.HandleFunc("/properties/{propertyId}/staging", handlers.ListStaging(s.Review)).Methods("GET")
	api.HandleFunc("/staging/{id}", handlers.GetStaging(s.Review)).Methods("GET")
	api.HandleFunc("/staging/{id}/decision", handlers.DecideStaging(s.Workflow)).Methods("POST")

	if s.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.StaticDir)))
	}

	return r
}
