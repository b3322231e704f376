// Package router provides HTTP routing configuration for the alert distribution API.
// It sets up routes and applies middleware like CORS and request metrics.
package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/afikmenashe/alert-distribution/internal/handlers"
	internalmetrics "github.com/afikmenashe/alert-distribution/internal/metrics"
)

// Router wraps the HTTP mux and provides route configuration.
type Router struct {
	mux      *http.ServeMux
	handlers *handlers.Handlers
	metrics  internalmetrics.Recorder
	gatherer prometheus.Gatherer
}

// Option configures a Router.
type Option func(*Router)

// WithMetrics records request counts and latencies.
func WithMetrics(m internalmetrics.Recorder) Option {
	return func(r *Router) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithGatherer exposes the gatherer on GET /metrics in Prometheus text format.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(r *Router) { r.gatherer = g }
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *handlers.Handlers, opts ...Option) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		handlers: h,
		metrics:  internalmetrics.NewNoOp(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.setupRoutes()
	return r
}

// Handler returns the HTTP handler with CORS and metrics middleware applied.
func (r *Router) Handler() http.Handler {
	return corsMiddleware(metricsMiddleware(r.metrics)(r.mux))
}
