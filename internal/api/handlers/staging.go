package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/hostdesk/backend/internal/api/middleware"
	"github.com/hostdesk/backend/internal/staging"
	"github.com/hostdesk/backend/internal/storage/models"
	"github.com/hostdesk/backend/internal/validation"
)

// DecisionRequest is the body of a staging decision.
type DecisionRequest struct {
	Action string `json:"action"`
	models.CommercialFields
}

// ListStaging returns the staging records of a property with their conflicts.
// ?status defaults to pending; "all" returns every status.
func ListStaging(review *staging.Review) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		propertyID := mux.Vars(r)["propertyId"]

		status := r.URL.Query().Get("status")
		switch status {
		case "":
			status = models.StageStatusPending
		case "all":
			status = ""
		case models.StageStatusPending, models.StageStatusConfirmed,
			models.StageStatusRejected, models.StageStatusDisappeared:
		default:
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Unknown status: "+status)
			return
		}

		records, err := review.List(r.Context(), propertyID, status)
		if err != nil {
			log.Error().Err(err).Str("property_id", propertyID).Msg("listing staging records")
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query staging records")
			return
		}

		writeJSON(w, http.StatusOK, records)
	}
}

// GetStaging returns one staging record with its conflicts.
func GetStaging(review *staging.Review) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		rec, err := review.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, staging.ErrNotFound) {
				middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Staging record not found")
				return
			}
			log.Error().Err(err).Str("staging_id", id).Msg("getting staging record")
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query staging record")
			return
		}

		writeJSON(w, http.StatusOK, rec)
	}
}

// DecideStaging confirms or rejects a pending staging record.
func DecideStaging(workflow *staging.Workflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		var req DecisionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		result, err := workflow.Decide(r.Context(), id, req.Action, &req.CommercialFields)
		if err != nil {
			var verrs validation.Errors
			switch {
			case errors.Is(err, staging.ErrNotFound):
				middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Staging record not found")
			case errors.Is(err, staging.ErrNotPending):
				middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "Staging record is no longer pending")
			case errors.Is(err, staging.ErrInvalidAction):
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Action must be confirm or reject")
			case errors.As(err, &verrs):
				writeValidationError(w, err)
			default:
				middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to record decision")
			}
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}
