// Package bus runs handlers over a partitioned event log with at-least-once
// semantics: bounded local retries, dead-lettering and contiguous offset commits.
package bus

import (
	"context"
	"time"

	"github.com/afikmenashe/alert-distribution/internal/events"
)

// Message is a transport-neutral bus record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Time      time.Time

	// Attempt counts the invocations that already failed for this message in
	// this process. A message redelivered after a restart starts again at zero.
	Attempt int
}

// Result tells the runner what to do with a message after a handler returns.
type Result int

const (
	// Ack completes the message; its offset becomes committable.
	Ack Result = iota
	// Retry re-invokes the handler after a backoff, up to the retry bound.
	Retry
	// DeadLetter routes the message to the dead-letter topic immediately.
	DeadLetter
)

func (r Result) String() string {
	switch r {
	case Ack:
		return "ack"
	case Retry:
		return "retry"
	case DeadLetter:
		return "dead_letter"
	}
	return "unknown"
}

// Handler processes one message. The error carries the cause for Retry and
// DeadLetter results and is logged and recorded in dead-letter envelopes.
type Handler func(ctx context.Context, msg *Message) (Result, error)

// Reader fetches messages and commits offsets.
type Reader interface {
	// Fetch blocks until a message is available or ctx is done.
	Fetch(ctx context.Context) (*Message, error)
	// Commit marks msg and every earlier offset on its partition as consumed.
	Commit(ctx context.Context, msg *Message) error
}

// DeadLetterPublisher writes envelopes to the dead-letter topic.
type DeadLetterPublisher interface {
	PublishDeadLetter(ctx context.Context, env *events.DeadLetterEnvelope) error
}
