package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"meshup/internal/core/domain"
	"meshup/internal/platform/logger"
	"meshup/pkg/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// StatusCode maps a service error onto an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimited), errors.Is(err, domain.ErrSlowmode):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrStateConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	log := logger.FromContext(r.Context())
	if status == http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "handler - request failed", logging.Err(err))
	} else {
		log.DebugContext(r.Context(), "handler - request rejected", "status", status, logging.Err(err))
	}
	writeJSON(w, status, domain.ErrorPayload{Code: domain.ErrorCode(err), Message: domain.PublicMessage(err)})
}

// decode reads an optional JSON body into v and validates it.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: malformed body", domain.ErrInvalidPayload)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidPayload, err.Error())
	}
	return nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s is not a valid id", domain.ErrInvalidPayload, name)
	}
	return id, nil
}
