package handlers

import (
	"log/slog"
	"net/http"

	"github.com/afikmenashe/alert-distribution/internal/coordinator"
	"github.com/afikmenashe/alert-distribution/internal/normalizer"
)

// ListAlerts returns the caller's deliveries, newest first.
// GET /alerts?recipient=ID
func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	recipientID, err := h.auth.Recipient(r)
	if err != nil {
		handleError(w, err, "list alerts")
		return
	}

	deliveries, err := h.coord.ListDeliveries(r.Context(), recipientID)
	if err != nil {
		handleError(w, err, "list alerts")
		return
	}
	writeJSON(w, http.StatusOK, deliveries)
}

// ToggleReadRequest is the body of PATCH /alerts/status.
type ToggleReadRequest struct {
	DeliveryID int64 `json:"deliveryId"`
	Read       *bool `json:"read"`
}

// ToggleRead sets the read flag of one of the caller's deliveries.
// PATCH /alerts/status?recipient=ID
func (h *Handlers) ToggleRead(w http.ResponseWriter, r *http.Request) {
	recipientID, err := h.auth.Recipient(r)
	if err != nil {
		handleError(w, err, "toggle read")
		return
	}

	var req ToggleReadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DeliveryID <= 0 {
		writeError(w, http.StatusBadRequest, CodeMalformedInput, "deliveryId is required")
		return
	}
	if req.Read == nil {
		writeError(w, http.StatusBadRequest, CodeMalformedInput, "read is required")
		return
	}

	if err := h.coord.ToggleRead(r.Context(), recipientID, req.DeliveryID, *req.Read); err != nil {
		handleError(w, err, "toggle read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// IngestResponse is returned by POST /alerts/{source}.
type IngestResponse struct {
	Deliveries any      `json:"deliveries,omitempty"`
	Accepted   []string `json:"accepted,omitempty"`
}

// Ingest normalizes a source payload and distributes the resulting alerts.
// POST /alerts/{source}
func (h *Handlers) Ingest(w http.ResponseWriter, r *http.Request) {
	source := normalizer.Source(r.PathValue("source"))

	hint, ok := parseHint(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r, h.maxBodyBytes)
	if !ok {
		return
	}

	records, err := h.normalizer.Normalize(source, body)
	if err != nil {
		handleError(w, err, "normalize")
		return
	}

	res, err := h.coord.Ingest(r.Context(), records, hint)
	if err != nil {
		handleError(w, err, "ingest")
		return
	}

	slog.Info("Ingested alerts",
		"source", source,
		"records", len(records),
		"mode", res.Mode,
	)

	if res.Mode == coordinator.ModeAsync {
		writeJSON(w, http.StatusAccepted, IngestResponse{Accepted: res.Accepted})
		return
	}
	writeJSON(w, http.StatusCreated, IngestResponse{Deliveries: res.Deliveries})
}
