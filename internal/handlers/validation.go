package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/afikmenashe/alert-distribution/internal/alert"
)

// HTTP helper functions to reduce duplication across handlers.

// decodeJSON decodes the request body as JSON into the provided value.
// Returns true on success, false on error (and writes error response).
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeMalformedInput, "Invalid request body")
		return false
	}
	return true
}

// writeJSON writes the value as JSON with appropriate headers.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// requireQueryParam extracts a query parameter and validates it's not empty.
// Returns the value and true if valid, empty string and false otherwise (and writes error response).
func requireQueryParam(w http.ResponseWriter, r *http.Request, paramName string) (string, bool) {
	value := r.URL.Query().Get(paramName)
	if value == "" {
		writeError(w, http.StatusBadRequest, CodeMalformedInput, paramName+" query parameter is required")
		return "", false
	}
	return value, true
}

// readBody reads at most limit bytes of the request body.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeMalformedInput, fmt.Sprintf("Failed to read request body: %v", err))
		return nil, false
	}
	return body, true
}

// parseHint reads the optional department query parameter.
func parseHint(w http.ResponseWriter, r *http.Request) (alert.Department, bool) {
	raw := r.URL.Query().Get("department")
	if raw == "" {
		return "", true
	}
	dept, ok := alert.ParseDepartment(raw)
	if !ok {
		writeError(w, http.StatusBadRequest, CodeMalformedInput, fmt.Sprintf("unknown department %q", raw))
		return "", false
	}
	return dept, true
}

// parseTime parses an RFC 3339 timestamp query parameter.
func parseTime(w http.ResponseWriter, r *http.Request, paramName string) (time.Time, bool) {
	raw, ok := requireQueryParam(w, r, paramName)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeMalformedInput, paramName+" must be an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return t, true
}
