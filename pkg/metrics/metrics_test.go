package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestCollector_Snapshot(t *testing.T) {
	c := NewCollector("alertd-delivery", nil)

	c.RecordReceived()
	c.RecordReceived()
	c.RecordProcessed(10 * time.Millisecond)
	c.RecordProcessed(30 * time.Millisecond)
	c.RecordPublished()
	c.RecordError()
	c.RecordSkipped()
	c.RecordRetried()
	c.RecordDeadLettered()
	c.RecordPush(true)
	c.RecordPush(false)
	c.RecordPush(false)

	snap := c.Snapshot()
	want := Counters{
		Received:      2,
		Processed:     2,
		Published:     1,
		Errors:        1,
		Skipped:       1,
		Retried:       1,
		DeadLettered:  1,
		PushDelivered: 1,
		PushDropped:   2,
		LatencyNs:     uint64(40 * time.Millisecond),
	}
	if snap.Counters != want {
		t.Errorf("Counters = %+v, want %+v", snap.Counters, want)
	}
	if snap.Instance == "" || snap.StartedAt.IsZero() {
		t.Errorf("snapshot missing identity: %+v", snap)
	}
}

func TestCollector_StartStopWithoutRedis(t *testing.T) {
	c := NewCollector("alertd-api", nil)
	c.Start(context.Background())
	c.Stop()
	c.Stop()
}

func snapshotJSON(t *testing.T, instance string, reportedAt time.Time, counters Counters) string {
	t.Helper()
	data, err := json.Marshal(Snapshot{Instance: instance, ReportedAt: reportedAt, Counters: counters})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func TestAggregate(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	fields := map[string]string{
		"i-1": snapshotJSON(t, "i-1", now.Add(-10*time.Second), Counters{
			Processed: 2, LatencyNs: uint64(40 * time.Millisecond), PushDelivered: 3, PushDropped: 1,
		}),
		"i-2": snapshotJSON(t, "i-2", now.Add(-20*time.Second), Counters{
			Processed: 2, LatencyNs: uint64(40 * time.Millisecond), DeadLettered: 1,
		}),
		"i-old": snapshotJSON(t, "i-old", now.Add(-TTL-time.Second), Counters{Processed: 100}),
		"i-bad": "{not json",
	}

	sm, stale := aggregate("alertd-delivery", fields, now)

	if sm.Status != StatusHealthy || sm.Instances != 2 {
		t.Errorf("status = %s instances = %d, want healthy/2", sm.Status, sm.Instances)
	}
	if sm.Processed != 4 || sm.DeadLettered != 1 || sm.PushDelivered != 3 {
		t.Errorf("counters = %+v", sm.Counters)
	}
	if sm.AvgProcessingLatencyMs != 20 {
		t.Errorf("AvgProcessingLatencyMs = %v, want 20", sm.AvgProcessingLatencyMs)
	}
	if sm.PushDeliveryRate != 0.75 {
		t.Errorf("PushDeliveryRate = %v, want 0.75", sm.PushDeliveryRate)
	}
	if !sm.LastUpdated.Equal(now.Add(-10 * time.Second)) {
		t.Errorf("LastUpdated = %v", sm.LastUpdated)
	}

	sort.Strings(stale)
	if len(stale) != 2 || stale[0] != "i-bad" || stale[1] != "i-old" {
		t.Errorf("stale = %v, want [i-bad i-old]", stale)
	}
}

func TestAggregate_AllStale(t *testing.T) {
	now := time.Now()
	fields := map[string]string{
		"i-1": snapshotJSON(t, "i-1", now.Add(-time.Hour), Counters{Received: 5}),
	}
	sm, _ := aggregate("alertd-api", fields, now)
	if sm.Status != StatusStale || sm.Instances != 0 || sm.Received != 0 {
		t.Errorf("unexpected metrics: %+v", sm)
	}
}

func TestReader_Integration(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: Redis not available: %v", err)
	}

	key := KeyPrefix + "alertd-audience"
	client.Del(ctx, key)
	defer client.Del(ctx, key)

	reader := NewReader(client)
	if _, err := reader.GetServiceMetrics(ctx, "alertd-audience"); !errors.Is(err, ErrNoMetrics) {
		t.Errorf("GetServiceMetrics() error = %v, want ErrNoMetrics", err)
	}

	a := NewCollector("alertd-audience", client)
	b := NewCollector("alertd-audience", client)
	a.RecordReceived()
	b.RecordReceived()
	b.RecordPublished()
	a.report(ctx)
	b.report(ctx)

	got, err := reader.GetServiceMetrics(ctx, "alertd-audience")
	if err != nil {
		t.Fatalf("GetServiceMetrics() error = %v", err)
	}
	if got.Received != 2 || got.Published != 1 || got.Instances != 2 || got.Status != StatusHealthy {
		t.Errorf("unexpected metrics: %+v", got)
	}

	all, err := reader.GetAllServiceMetrics(ctx)
	if err != nil {
		t.Fatalf("GetAllServiceMetrics() error = %v", err)
	}
	if _, ok := all["alertd-audience"]; !ok {
		t.Error("GetAllServiceMetrics() missing alertd-audience")
	}
}
