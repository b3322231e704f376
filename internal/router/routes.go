package router

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes configures all HTTP routes for the API.
func (r *Router) setupRoutes() {
	// Recipient endpoints
	r.mux.HandleFunc("GET /alerts", r.handlers.ListAlerts)
	r.mux.HandleFunc("PATCH /alerts/status", r.handlers.ToggleRead)
	r.mux.HandleFunc("GET /alerts/stream", r.handlers.Stream)
	r.mux.HandleFunc("GET /alerts/ws", r.handlers.WebSocket)

	// Ingestion
	r.mux.HandleFunc("POST /alerts/{source}", r.handlers.Ingest)

	// Administration
	r.mux.HandleFunc("DELETE /admin/test-data", r.handlers.PurgeTestData)
	r.mux.HandleFunc("GET /api/v1/services/metrics", r.handlers.GetServiceMetrics)

	if r.gatherer != nil {
		r.mux.Handle("GET /metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	}

	// Health check endpoint
	r.mux.HandleFunc("GET /health", r.handlers.Health)
}
