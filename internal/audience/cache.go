package audience

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/afikmenashe/alert-distribution/internal/alert"
)

const (
	// SnapshotKey is the Redis key holding the serialized directory.
	SnapshotKey = "directory:snapshot"
	// DefaultSnapshotTTL bounds how stale a cached directory may get without a refresh.
	DefaultSnapshotTTL = 5 * time.Minute
)

// snapshot is the cached form of the directory.
type snapshot struct {
	SchemaVersion int               `json:"schema_version"`
	LoadedAt      time.Time         `json:"loaded_at"`
	Recipients    []alert.Recipient `json:"recipients"`
}

// CachedDirectory serves the directory from a Redis snapshot shared by all
// instances, loading it from source on a miss.
type CachedDirectory struct {
	client *redis.Client
	source Directory
	ttl    time.Duration
}

// NewCachedDirectory wraps source with a Redis snapshot. A nil client disables caching.
func NewCachedDirectory(client *redis.Client, source Directory, ttl time.Duration) *CachedDirectory {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &CachedDirectory{
		client: client,
		source: source,
		ttl:    ttl,
	}
}

// ListRecipients returns the cached snapshot, falling back to source when the
// snapshot is missing or Redis is unavailable.
func (d *CachedDirectory) ListRecipients(ctx context.Context) ([]alert.Recipient, error) {
	if d.client == nil {
		return d.source.ListRecipients(ctx)
	}

	data, err := d.client.Get(ctx, SnapshotKey).Bytes()
	switch {
	case err == redis.Nil:
		return d.Refresh(ctx)
	case err != nil:
		slog.Warn("Directory snapshot unavailable, reading source", "error", err)
		return d.source.ListRecipients(ctx)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("Discarding unreadable directory snapshot", "error", err)
		return d.Refresh(ctx)
	}
	return snap.Recipients, nil
}

// Refresh reloads the directory from source and rewrites the snapshot.
// A failed write is logged; the freshly loaded entries are still returned.
func (d *CachedDirectory) Refresh(ctx context.Context) ([]alert.Recipient, error) {
	recipients, err := d.source.ListRecipients(ctx)
	if err != nil {
		return nil, err
	}
	if d.client == nil {
		return recipients, nil
	}

	data, err := json.Marshal(snapshot{
		SchemaVersion: 1,
		LoadedAt:      time.Now().UTC(),
		Recipients:    recipients,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal directory snapshot: %w", err)
	}
	if err := d.client.Set(ctx, SnapshotKey, data, d.ttl).Err(); err != nil {
		slog.Warn("Failed to write directory snapshot", "error", err)
		return recipients, nil
	}

	slog.Debug("Directory snapshot refreshed", "recipients", len(recipients))
	return recipients, nil
}

// Run refreshes the snapshot every interval until ctx is cancelled.
func (d *CachedDirectory) Run(ctx context.Context, interval time.Duration) error {
	slog.Info("Starting directory refresher", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Directory refresher stopped")
			return nil
		case <-ticker.C:
			if _, err := d.Refresh(ctx); err != nil && ctx.Err() == nil {
				// Keep serving the previous snapshot until its TTL runs out
				slog.Error("Failed to refresh directory snapshot", "error", err)
			}
		}
	}
}
