package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jbweber/homelab/ipdesk/internal/log"
	"github.com/jbweber/homelab/ipdesk/internal/repository"
	"github.com/jbweber/homelab/ipdesk/internal/workflow"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes v with the given status code
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Logger.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError writes an ErrorResponse with the given status code
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor maps engine and repository errors to HTTP status codes.
// Order matters: an error can match more than one sentinel.
func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrNotPending),
		errors.Is(err, workflow.ErrIPNoLongerAvailable),
		errors.Is(err, repository.ErrConflict),
		errors.Is(err, repository.ErrDuplicatePendingRequest),
		errors.Is(err, repository.ErrDuplicate),
		errors.Is(err, repository.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrInvalidTarget),
		errors.Is(err, workflow.ErrNoCapacity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrInvalidEntity):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeEngineError reports an engine failure. Internal errors are logged and
// replaced with a generic message.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	switch {
	case status == http.StatusInternalServerError:
		logger := log.WithComponent("api")
		logger.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, status, "internal error")
	case errors.Is(err, workflow.ErrNotPending):
		writeError(w, status, err.Error())
	case errors.Is(err, workflow.ErrIPNoLongerAvailable), errors.Is(err, repository.ErrConflict):
		writeError(w, status, fmt.Sprintf("%v; please retry", err))
	default:
		writeError(w, status, err.Error())
	}
}

// idParam parses the {id} URL parameter
func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

// optionalInt64 parses an optional positive integer query parameter
func optionalInt64(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, fmt.Errorf("invalid %s %q", name, raw)
	}
	return &v, nil
}

// optionalTime parses an optional RFC 3339 query parameter
func optionalTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: expected RFC 3339", name, raw)
	}
	return &v, nil
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
