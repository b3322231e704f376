// Package normalizer converts source-specific webhook payloads into alert records.
package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/afikmenashe/alert-distribution/internal/alert"
)

// Source names an ingestion endpoint.
type Source string

const (
	SourceDashboard      Source = "dashboard"
	SourceSearchPlatform Source = "search-platform"
	SourceCI             Source = "ci"
	SourceManualIssue    Source = "manual-issue"
)

// ErrUnknownSource is returned for a source with no registered payload shape.
var ErrUnknownSource = errors.New("unknown alert source")

// Normalizer turns payloads into records. A batch is accepted whole or not at all.
type Normalizer struct {
	now   func() time.Time
	newID func() string
}

// New creates a normalizer using the wall clock and random UUIDs.
func New() *Normalizer {
	return &Normalizer{
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Normalize parses body according to source. Any malformed item fails the whole
// payload with alert.ErrMalformedInput and no records are returned.
func (n *Normalizer) Normalize(source Source, body []byte) ([]*alert.Record, error) {
	now := n.now().UTC()

	switch source {
	case SourceDashboard:
		return n.dashboard(body, now)
	case SourceSearchPlatform:
		return n.searchPlatform(body, now)
	case SourceCI:
		return n.pipeline(body, now)
	case SourceManualIssue:
		return n.issue(body, now)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return malformed("invalid JSON: %v", err)
	}
	return nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", alert.ErrMalformedInput, fmt.Sprintf(format, args...))
}

// parseTimestamp accepts RFC3339 with or without fractional seconds.
// An empty value falls back to def.
func parseTimestamp(value string, def time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999Z"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, malformed("unparseable timestamp %q", value)
}

// firstNonEmpty returns the first non-blank value.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// idOr prefixes a source-assigned id with its source, so equal ids from
// different sources name different alerts. A blank id gets a fresh UUID.
func (n *Normalizer) idOr(source Source, id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return string(source) + ":" + id
	}
	return n.newID()
}
