package audience

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/afikmenashe/alert-distribution/internal/alert"
)

func TestCachedDirectory_NoRedisPassesThrough(t *testing.T) {
	src := directory()
	d := NewCachedDirectory(nil, src, 0)
	got, err := d.ListRecipients(context.Background())
	if err != nil {
		t.Fatalf("ListRecipients() error = %v", err)
	}
	if len(got) != len(src.Entries) || src.Calls != 1 {
		t.Errorf("expected passthrough, got %d entries after %d calls", len(got), src.Calls)
	}
	if d.ttl != DefaultSnapshotTTL {
		t.Errorf("ttl = %v, want default", d.ttl)
	}
}

func TestCachedDirectory_Integration(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: Redis not available: %v", err)
	}
	client.Del(ctx, SnapshotKey)
	defer client.Del(ctx, SnapshotKey)

	src := &FakeDirectory{Entries: []alert.Recipient{{ID: "ops-1", Department: alert.DepartmentOperations}}}
	d := NewCachedDirectory(client, src, time.Minute)

	// Miss loads from source and writes the snapshot
	if _, err := d.ListRecipients(ctx); err != nil {
		t.Fatalf("ListRecipients() error = %v", err)
	}
	if src.Calls != 1 {
		t.Fatalf("source calls = %d, want 1", src.Calls)
	}

	// Hit is served from Redis
	got, err := d.ListRecipients(ctx)
	if err != nil {
		t.Fatalf("ListRecipients() error = %v", err)
	}
	if src.Calls != 1 || len(got) != 1 || got[0].ID != "ops-1" {
		t.Errorf("expected cached hit, calls=%d got=%v", src.Calls, got)
	}

	// Refresh picks up directory changes
	src.Entries = append(src.Entries, alert.Recipient{ID: "ext-1", Department: alert.DepartmentExternal})
	if _, err := d.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	got, _ = d.ListRecipients(ctx)
	if len(got) != 2 {
		t.Errorf("expected refreshed snapshot with 2 entries, got %v", got)
	}
}
