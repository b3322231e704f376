package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/afikmenashe/alert-distribution/internal/alert"
	"github.com/afikmenashe/alert-distribution/internal/auth"
	"github.com/afikmenashe/alert-distribution/internal/normalizer"
)

// Error codes returned in the structured error body.
const (
	CodeMalformedInput        = "malformed_input"
	CodeNotFound              = "not_found"
	CodeUnknownSource         = "unknown_source"
	CodePublishFailed         = "publish_failed"
	CodeDownstreamUnavailable = "downstream_unavailable"
	CodeUnauthenticated       = "unauthenticated"
	CodeForbidden             = "forbidden"
	CodeNotConfigured         = "not_configured"
	CodeInternal              = "internal"
)

// ErrorResponse is the structured error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// handleError maps a domain error to a status code and writes it.
func handleError(w http.ResponseWriter, err error, op string) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "op", op, "code", code, "error", err)
	} else {
		slog.Debug("Request rejected", "op", op, "code", code, "error", err)
	}
	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, normalizer.ErrUnknownSource):
		return http.StatusNotFound, CodeUnknownSource
	case errors.Is(err, alert.ErrMalformedInput):
		return http.StatusBadRequest, CodeMalformedInput
	case errors.Is(err, alert.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, CodeUnauthenticated
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, alert.ErrPublishFailed):
		return http.StatusServiceUnavailable, CodePublishFailed
	case errors.Is(err, alert.ErrTransient):
		return http.StatusServiceUnavailable, CodeDownstreamUnavailable
	}
	return http.StatusInternalServerError, CodeInternal
}
