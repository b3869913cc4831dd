package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	apperr "jobagg-engine/internal/errors"

	"go.uber.org/zap"
)

type APIError struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	var e APIError
	e.Error.Code = code
	e.Error.Message = message
	e.Error.RequestID = RequestIDFrom(r.Context())
	WriteJSON(w, status, e)
}

// WriteDomainError maps err onto a status and error code.
func WriteDomainError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	if errors.Is(err, context.Canceled) {
		// client went away
		return
	}

	status, code := http.StatusInternalServerError, "internal_error"
	switch apperr.TypeOf(err) {
	case apperr.ErrTypeInvalidInput:
		status, code = http.StatusBadRequest, "invalid_input"
	case apperr.ErrTypeOverloaded:
		w.Header().Set("Retry-After", "5")
		status, code = http.StatusTooManyRequests, "too_many_concurrent_searches"
	case apperr.ErrTypeFallbackExhausted:
		status, code = http.StatusInternalServerError, "fallback_exhausted"
	case apperr.ErrTypeUnavailable:
		status, code = http.StatusServiceUnavailable, "unavailable"
	case apperr.ErrTypeNotFound:
		status, code = http.StatusNotFound, "not_found"
	}

	msg := err.Error()
	var de *apperr.DomainError
	if errors.As(err, &de) {
		msg = de.Message
	}
	if code == "internal_error" {
		if log != nil {
			log.Error("request failed", zap.String("request_id", RequestIDFrom(r.Context())), zap.Error(err))
		}
		msg = "internal server error"
	}
	WriteError(w, r, status, code, msg)
}
