// Package httpapi is the request pipeline shared by the service HTTP
// servers: authentication, JSON in and out, error mapping.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"carelink/internal/util"
	"carelink/pkg/apperr"
)

type errorResponse struct {
	Error     string            `json:"error"`
	Code      apperr.Kind       `json:"code"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
}

// WriteJSON writes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError maps err onto the taxonomy. Causes are logged, never returned.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) && !apperr.Is(err, apperr.DependencyUnavailable) {
		err = apperr.Wrap(apperr.DependencyUnavailable, "request timed out", err)
	}
	kind, msg, details := apperr.Public(err)
	status := apperr.HTTPStatus(kind)
	logger := util.LoggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("code", string(kind)).Str("path", r.URL.Path).Msg("request failed")
	} else {
		logger.Debug().Err(err).Str("code", string(kind)).Str("path", r.URL.Path).Msg("request rejected")
	}
	WriteJSON(w, status, errorResponse{
		Error:     msg,
		Code:      kind,
		Details:   details,
		RequestID: util.RequestIDFromRequest(r),
	})
}

// NotFound is the fallback for unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, apperr.New(apperr.NotFound, "route not found"))
}
