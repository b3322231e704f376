package alert

import "errors"

var (
	// ErrMalformedInput marks a payload or bus message that cannot be parsed. Never retried.
	ErrMalformedInput = errors.New("malformed input")
	// ErrNotFound marks a reference to an unknown alert, delivery or recipient.
	ErrNotFound = errors.New("not found")
	// ErrPublishFailed marks a bus publish that did not complete.
	ErrPublishFailed = errors.New("publish failed")
	// ErrTransient marks store or push I/O failures that are worth retrying.
	ErrTransient = errors.New("transient failure")
	// ErrExhausted marks a message whose retry bound was reached.
	ErrExhausted = errors.New("retries exhausted")
)

// Class names the taxonomy class of err as recorded in dead-letter envelopes.
// Exhausted takes precedence because it wraps the last underlying failure.
func Class(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrExhausted):
		return "Exhausted"
	case errors.Is(err, ErrMalformedInput):
		return "MalformedInput"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrPublishFailed):
		return "PublishFailed"
	case errors.Is(err, ErrTransient):
		return "Transient"
	}
	return "Unknown"
}
