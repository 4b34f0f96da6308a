package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/hostdesk/backend/internal/api/middleware"
	"github.com/hostdesk/backend/internal/storage"
	"github.com/hostdesk/backend/internal/storage/models"
	"github.com/hostdesk/backend/internal/validation"
	"github.com/hostdesk/backend/internal/websocket"
)

// FeedSourceRequest is the body of create and update requests.
type FeedSourceRequest struct {
	Platform string `json:"platform" validate:"required,max=32,lowercase,alphanum"`
	Name     string `json:"name" validate:"max=200"`
	URL      string `json:"url" validate:"required,http_url"`
	Active   *bool  `json:"active"`
}

func (req *FeedSourceRequest) normalize() {
	req.Platform = strings.ToLower(strings.TrimSpace(req.Platform))
	req.Name = strings.TrimSpace(req.Name)
	req.URL = strings.TrimSpace(req.URL)
}

// ListFeedSources returns the feeds of a property.
func ListFeedSources(db *storage.DB) http.HandlerFunc {
	repo := storage.NewFeedSourceRepository(db)

	return func(w http.ResponseWriter, r *http.Request) {
		propertyID := mux.Vars(r)["propertyId"]

		feeds, err := repo.ListByProperty(r.Context(), propertyID)
		if err != nil {
			log.Error().Err(err).Str("property_id", propertyID).Msg("listing feed sources")
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query feed sources")
			return
		}

		writeJSON(w, http.StatusOK, feeds)
	}
}

// CreateFeedSource adds a feed to a property.
func CreateFeedSource(db *storage.DB, v *validation.Validator, events *websocket.EventBroadcaster) http.HandlerFunc {
	repo := storage.NewFeedSourceRepository(db)

	return func(w http.ResponseWriter, r *http.Request) {
		propertyID := mux.Vars(r)["propertyId"]

		var req FeedSourceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		req.normalize()
		if err := v.Validate(&req); err != nil {
			writeValidationError(w, err)
			return
		}

		feed := &models.FeedSource{
			PropertyID: propertyID,
			Platform:   req.Platform,
			Name:       req.Name,
			URL:        req.URL,
			Active:     req.Active == nil || *req.Active,
		}
		if err := repo.Create(r.Context(), feed); err != nil {
			log.Error().Err(err).Str("property_id", propertyID).Msg("creating feed source")
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create feed source")
			return
		}

		if events != nil {
			events.BroadcastFeedSourceSaved(feed)
		}
		writeJSON(w, http.StatusCreated, feed)
	}
}

// GetFeedSource returns a single feed by ID.
func GetFeedSource(db *storage.DB) http.HandlerFunc {
	repo := storage.NewFeedSourceRepository(db)

	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		feed, err := repo.GetByID(r.Context(), id)
		if err != nil {
			log.Error().Err(err).Str("feed_id", id).Msg("getting feed source")
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query feed source")
			return
		}
		if feed == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Feed source not found")
			return
		}

		writeJSON(w, http.StatusOK, feed)
	}
}

// UpdateFeedSource replaces the editable fields of a feed.
func UpdateFeedSource(db *storage.DB, v *validation.Validator, events *websocket.EventBroadcaster) http.HandlerFunc {
	repo := storage.NewFeedSourceRepository(db)

	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		ctx := r.Context()

		var req FeedSourceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		req.normalize()
		if err := v.Validate(&req); err != nil {
			writeValidationError(w, err)
			return
		}

		feed, err := repo.GetByID(ctx, id)
		if err != nil {
			log.Error().Err(err).Str("feed_id", id).Msg("getting feed source")
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query feed source")
			return
		}
		if feed == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Feed source not found")
			return
		}

		feed.Platform = req.Platform
		feed.Name = req.Name
		feed.URL = req.URL
		if req.Active != nil {
			feed.Active = *req.Active
		}

		if err := repo.Update(ctx, feed); err != nil {
			log.Error().Err(err).Str("feed_id", id).Msg("updating feed source")
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to update feed source")
			return
		}

		if events != nil {
			events.BroadcastFeedSourceSaved(feed)
		}
		writeJSON(w, http.StatusOK, feed)
	}
}

// DeleteFeedSource removes a feed. Its staged records stay in the ledger.
func DeleteFeedSource(db *storage.DB) http.HandlerFunc {
	repo := storage.NewFeedSourceRepository(db)

	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		ctx := r.Context()

		feed, err := repo.GetByID(ctx, id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query feed source")
			return
		}
		if feed == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Feed source not found")
			return
		}

		if err := repo.Delete(ctx, id); err != nil {
			log.Error().Err(err).Str("feed_id", id).Msg("deleting feed source")
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to delete feed source")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
