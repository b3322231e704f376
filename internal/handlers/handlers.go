// Package handlers provides HTTP handlers for the alert distribution API.
package handlers

import (
	"time"

	"github.com/afikmenashe/alert-distribution/internal/auth"
	internalmetrics "github.com/afikmenashe/alert-distribution/internal/metrics"
)

const (
	// DefaultHeartbeat is the interval between keep-alive frames on live channels.
	DefaultHeartbeat = 25 * time.Second
	// DefaultMaxBodyBytes bounds ingestion payloads.
	DefaultMaxBodyBytes = 1 << 20
)

// Handlers wraps dependencies for HTTP handlers.
type Handlers struct {
	coord         Coordinator
	normalizer    Normalizer
	live          LiveRegistry
	auth          auth.Context
	purger        Purger
	metricsReader MetricsReader
	metrics       internalmetrics.Recorder
	heartbeat     time.Duration
	maxBodyBytes  int64
}

// Option is a functional option for configuring Handlers.
type Option func(*Handlers)

// WithPurger enables the administrative purge endpoint.
func WithPurger(p Purger) Option {
	return func(h *Handlers) { h.purger = p }
}

// WithMetricsReader enables the service metrics endpoint.
func WithMetricsReader(r MetricsReader) Option {
	return func(h *Handlers) { h.metricsReader = r }
}

// WithMetrics sets a custom metrics recorder.
func WithMetrics(m internalmetrics.Recorder) Option {
	return func(h *Handlers) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithHeartbeat sets the live channel keep-alive interval.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Handlers) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// NewHandlers creates a new handlers instance. A nil auth context trusts the
// recipient query parameter.
func NewHandlers(coord Coordinator, norm Normalizer, live LiveRegistry, authCtx auth.Context, opts ...Option) *Handlers {
	if authCtx == nil {
		authCtx = auth.QueryParam{}
	}
	h := &Handlers{
		coord:        coord,
		normalizer:   norm,
		live:         live,
		auth:         authCtx,
		metrics:      internalmetrics.NewNoOp(),
		heartbeat:    DefaultHeartbeat,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}
