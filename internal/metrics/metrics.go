// Package metrics provides metrics recording interfaces for the distribution engine.
// It uses the null object pattern to avoid nil checks throughout the codebase.
package metrics

import (
	"time"

	"github.com/afikmenashe/alert-distribution/pkg/metrics"
)

// Recorder defines the interface for recording pipeline metrics.
type Recorder interface {
	// RecordReceived increments the count of received messages or requests.
	RecordReceived()

	// RecordProcessed records a successfully processed message with its latency.
	RecordProcessed(latency time.Duration)

	// RecordPublished increments the count of published bus messages.
	RecordPublished()

	// RecordError increments the error counter.
	RecordError()

	// RecordSkipped increments the count of duplicates absorbed by idempotency checks.
	RecordSkipped()

	// RecordRetried increments the count of local retries.
	RecordRetried()

	// RecordDeadLettered increments the count of messages routed to the dead-letter topic.
	RecordDeadLettered()

	// RecordPush records a live push attempt and whether it reached a channel.
	RecordPush(delivered bool)
}

// NoOp is a no-op implementation of Recorder that discards all metrics.
// Use this when metrics collection is not configured.
type NoOp struct{}

// NewNoOp creates a new no-op metrics recorder.
func NewNoOp() *NoOp {
	return &NoOp{}
}

func (n *NoOp) RecordReceived()                 {}
func (n *NoOp) RecordProcessed(_ time.Duration) {}
func (n *NoOp) RecordPublished()                {}
func (n *NoOp) RecordError()                    {}
func (n *NoOp) RecordSkipped()                  {}
func (n *NoOp) RecordRetried()                  {}
func (n *NoOp) RecordDeadLettered()             {}
func (n *NoOp) RecordPush(_ bool)               {}

// Ensure NoOp and the Redis collector implement Recorder
var (
	_ Recorder = (*NoOp)(nil)
	_ Recorder = (*metrics.Collector)(nil)
)

// Multi fans every call out to several recorders.
type Multi []Recorder

func (m Multi) RecordReceived() {
	for _, r := range m {
		r.RecordReceived()
	}
}

func (m Multi) RecordProcessed(latency time.Duration) {
	for _, r := range m {
		r.RecordProcessed(latency)
	}
}

func (m Multi) RecordPublished() {
	for _, r := range m {
		r.RecordPublished()
	}
}

func (m Multi) RecordError() {
	for _, r := range m {
		r.RecordError()
	}
}

func (m Multi) RecordSkipped() {
	for _, r := range m {
		r.RecordSkipped()
	}
}

func (m Multi) RecordRetried() {
	for _, r := range m {
		r.RecordRetried()
	}
}

func (m Multi) RecordDeadLettered() {
	for _, r := range m {
		r.RecordDeadLettered()
	}
}

func (m Multi) RecordPush(delivered bool) {
	for _, r := range m {
		r.RecordPush(delivered)
	}
}

var _ Recorder = Multi(nil)
