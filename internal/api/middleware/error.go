// Package middleware provides HTTP middleware and the JSON error envelope.
package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hostdesk/backend/internal/logger"
)

// Error codes carried in ErrorResponse.Error.
const (
	ErrNotFound      = "not_found"
	ErrBadRequest    = "bad_request"
	ErrConflict      = "conflict"
	ErrInternalError = "internal_error"
	ErrValidation    = "validation_error"
	ErrSyncFailed    = "sync_failed"
	ErrUnavailable   = "unavailable"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteError writes an error envelope without details.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorWithDetails(w, status, code, message, nil)
}

// WriteErrorWithDetails writes an error envelope. details may be nil.
func WriteErrorWithDetails(w http.ResponseWriter, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   code,
		Message: message,
		Details: details,
	})
}

// ErrorRecovery turns a handler panic into a 500 envelope. The stack is
// logged through the request logger so it carries the request ID.
// http.ErrAbortHandler is re-raised for net/http to handle.
func ErrorRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			logger.ErrorWithStackCtx(r.Context(), fmt.Errorf("panic in %s %s: %v", r.Method, r.URL.Path, rec))
			WriteError(w, http.StatusInternalServerError, ErrInternalError, "An unexpected error occurred")
		}()
		next.ServeHTTP(w, r)
	})
}
