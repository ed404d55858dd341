package httpapi

import (
	"encoding/json"
	"net/http"

	"inferd/internal/engine"
	"inferd/internal/model"
	"inferd/internal/scheduler"
	"inferd/internal/session"
	"inferd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusForError maps well-known engine errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case model.IsNotFound(err):
		return http.StatusNotFound
	case scheduler.IsTooBusy(err):
		return http.StatusTooManyRequests
	case scheduler.IsInvalidRequest(err), session.IsValidation(err), model.IsInvalidConfig(err):
		return http.StatusBadRequest
	case scheduler.IsNotReady(err), engine.IsUnavailable(err):
		return http.StatusServiceUnavailable
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}
