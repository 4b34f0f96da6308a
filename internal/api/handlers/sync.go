package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/hostdesk/backend/internal/api/middleware"
	"github.com/hostdesk/backend/internal/calendar"
	"github.com/hostdesk/backend/internal/storage"
)

// TriggerSync syncs a property and returns the result. With ?async=true and
// a scheduler the sync runs in the background and 202 is returned at once.
func TriggerSync(syncer calendar.PropertySyncer, scheduler *calendar.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		propertyID := mux.Vars(r)["propertyId"]
		force := r.URL.Query().Get("force") == "true"

		if scheduler != nil && r.URL.Query().Get("async") == "true" {
			if !scheduler.TriggerSync(propertyID, force) {
				middleware.WriteError(w, http.StatusServiceUnavailable, middleware.ErrUnavailable, "Server is shutting down")
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "syncing"})
			return
		}

		result, err := syncer.SyncProperty(r.Context(), propertyID, calendar.SyncOptions{Force: force})
		if err != nil {
			var storeErr *calendar.StoreError
			switch {
			case errors.Is(err, calendar.ErrNoActiveFeeds):
				middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Property has no active feeds")
			case errors.Is(err, calendar.ErrAllFeedsFailed):
				middleware.WriteErrorWithDetails(w, http.StatusBadGateway, middleware.ErrSyncFailed, err.Error(), result)
			case errors.As(err, &storeErr):
				middleware.WriteErrorWithDetails(w, http.StatusInternalServerError, middleware.ErrInternalError, "Sync failed while saving", result)
			default:
				log.Error().Err(err).Str("property_id", propertyID).Msg("sync failed")
				middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Sync failed")
			}
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// ListSyncAudits returns the newest audit rows of a property.
func ListSyncAudits(db *storage.DB) http.HandlerFunc {
	repo := storage.NewAuditRepository(db)

	return func(w http.ResponseWriter, r *http.Request) {
		propertyID := mux.Vars(r)["propertyId"]

		audits, err := repo.ListByProperty(r.Context(), propertyID, queryLimit(r, 50, 500))
		if err != nil {
			log.Error().Err(err).Str("property_id", propertyID).Msg("listing sync audits")
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query sync audits")
			return
		}

		writeJSON(w, http.StatusOK, audits)
	}
}

// ListNotifications returns the newest notifications of a property.
func ListNotifications(db *storage.DB) http.HandlerFunc {
	repo := storage.NewNotificationRepository(db)

	return func(w http.ResponseWriter, r *http.Request) {
		propertyID := mux.Vars(r)["propertyId"]

		notifications, err := repo.ListByProperty(r.Context(), propertyID, queryLimit(r, 50, 500))
		if err != nil {
			log.Error().Err(err).Str("property_id", propertyID).Msg("listing notifications")
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query notifications")
			return
		}

		writeJSON(w, http.StatusOK, notifications)
	}
}
