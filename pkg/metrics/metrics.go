// Package metrics reports per-role delivery counters to Redis, where any alertd
// instance can read and aggregate them for the service-metrics endpoint.
//
// Each instance writes its snapshot as one field of a per-role hash, so
// instances running the same role never overwrite each other.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix of the per-role snapshot hashes.
	KeyPrefix = "alertd:metrics:"
	// TTL is how long a snapshot counts as live without a refresh.
	TTL = 2 * time.Minute
	// ReportInterval is how often a collector writes its snapshot.
	ReportInterval = 15 * time.Second
)

// Role status values.
const (
	StatusHealthy = "healthy"
	StatusStale   = "stale"
	StatusOffline = "offline"
)

// ServiceNames lists the roles an alertd process reports metrics under.
var ServiceNames = []string{
	"alertd-api",
	"alertd-audience",
	"alertd-delivery",
}

// Counters are totals since an instance started.
type Counters struct {
	Received      uint64 `json:"received"`
	Processed     uint64 `json:"processed"`
	Published     uint64 `json:"published"`
	Errors        uint64 `json:"errors"`
	Skipped       uint64 `json:"skipped"`
	Retried       uint64 `json:"retried"`
	DeadLettered  uint64 `json:"dead_lettered"`
	PushDelivered uint64 `json:"push_delivered"`
	PushDropped   uint64 `json:"push_dropped"`
	LatencyNs     uint64 `json:"latency_ns_total"`
}

func (c *Counters) add(o Counters) {
	c.Received += o.Received
	c.Processed += o.Processed
	c.Published += o.Published
	c.Errors += o.Errors
	c.Skipped += o.Skipped
	c.Retried += o.Retried
	c.DeadLettered += o.DeadLettered
	c.PushDelivered += o.PushDelivered
	c.PushDropped += o.PushDropped
	c.LatencyNs += o.LatencyNs
}

// Snapshot is what one instance reports.
type Snapshot struct {
	Instance   string    `json:"instance"`
	StartedAt  time.Time `json:"started_at"`
	ReportedAt time.Time `json:"reported_at"`
	Counters
}

// ServiceMetrics aggregates the live instances of one role.
type ServiceMetrics struct {
	ServiceName string    `json:"service_name"`
	Status      string    `json:"status"`
	Instances   int       `json:"instances"`
	LastUpdated time.Time `json:"last_updated"`
	Counters

	AvgProcessingLatencyMs float64 `json:"avg_processing_latency_ms"`
	// PushDeliveryRate is the share of live pushes that reached a channel.
	PushDeliveryRate float64 `json:"push_delivery_rate"`
}

// Collector counts one role's events in this process and reports them to Redis.
// Its methods match the delivery engine's metrics recorder.
type Collector struct {
	serviceName string
	instance    string
	redis       *redis.Client
	startedAt   time.Time

	received      atomic.Uint64
	processed     atomic.Uint64
	published     atomic.Uint64
	errors        atomic.Uint64
	skipped       atomic.Uint64
	retried       atomic.Uint64
	deadLettered  atomic.Uint64
	pushDelivered atomic.Uint64
	pushDropped   atomic.Uint64
	latencyNs     atomic.Uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewCollector creates a collector for serviceName. A nil client only counts.
func NewCollector(serviceName string, redisClient *redis.Client) *Collector {
	return &Collector{
		serviceName: serviceName,
		instance:    uuid.NewString(),
		redis:       redisClient,
		startedAt:   time.Now().UTC(),
		stopCh:      make(chan struct{}),
	}
}

// Start reports every ReportInterval until ctx is done or Stop is called.
// A final snapshot is written on the way out.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(ReportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.report(context.Background())
				return
			case <-c.stopCh:
				c.report(context.Background())
				return
			case <-ticker.C:
				c.report(ctx)
			}
		}
	}()
}

// Stop ends reporting and waits for the final write.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Collector) RecordReceived()  { c.received.Add(1) }
func (c *Collector) RecordPublished() { c.published.Add(1) }
func (c *Collector) RecordError()     { c.errors.Add(1) }
func (c *Collector) RecordSkipped()   { c.skipped.Add(1) }
func (c *Collector) RecordRetried()   { c.retried.Add(1) }

func (c *Collector) RecordDeadLettered() { c.deadLettered.Add(1) }

func (c *Collector) RecordProcessed(latency time.Duration) {
	c.processed.Add(1)
	if latency > 0 {
		c.latencyNs.Add(uint64(latency.Nanoseconds()))
	}
}

func (c *Collector) RecordPush(delivered bool) {
	if delivered {
		c.pushDelivered.Add(1)
		return
	}
	c.pushDropped.Add(1)
}

// Snapshot returns the current counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Instance:   c.instance,
		StartedAt:  c.startedAt,
		ReportedAt: time.Now().UTC(),
		Counters: Counters{
			Received:      c.received.Load(),
			Processed:     c.processed.Load(),
			Published:     c.published.Load(),
			Errors:        c.errors.Load(),
			Skipped:       c.skipped.Load(),
			Retried:       c.retried.Load(),
			DeadLettered:  c.deadLettered.Load(),
			PushDelivered: c.pushDelivered.Load(),
			PushDropped:   c.pushDropped.Load(),
			LatencyNs:     c.latencyNs.Load(),
		},
	}
}

func (c *Collector) report(ctx context.Context) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(c.Snapshot())
	if err != nil {
		slog.Error("Failed to marshal metrics", "service", c.serviceName, "error", err)
		return
	}

	key := KeyPrefix + c.serviceName
	pipe := c.redis.TxPipeline()
	pipe.HSet(ctx, key, c.instance, data)
	pipe.Expire(ctx, key, TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("Failed to write metrics to Redis", "service", c.serviceName, "error", err)
		return
	}
	slog.Debug("Metrics written to Redis", "service", c.serviceName, "instance", c.instance)
}

// ErrNoMetrics is returned when no instance of a role has reported.
var ErrNoMetrics = errors.New("no metrics found for service")

// Reader aggregates role snapshots from Redis.
type Reader struct {
	redis *redis.Client
	now   func() time.Time
}

// NewReader creates a new metrics reader.
func NewReader(redisClient *redis.Client) *Reader {
	return &Reader{redis: redisClient, now: time.Now}
}

// GetServiceMetrics aggregates the snapshots of one role. Snapshots older than
// TTL are pruned and left out of the totals.
func (r *Reader) GetServiceMetrics(ctx context.Context, serviceName string) (*ServiceMetrics, error) {
	key := KeyPrefix + serviceName
	fields, err := r.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMetrics, serviceName)
	}

	sm, stale := aggregate(serviceName, fields, r.now())
	if len(stale) > 0 {
		if err := r.redis.HDel(ctx, key, stale...).Err(); err != nil {
			slog.Warn("Failed to prune stale metrics", "service", serviceName, "error", err)
		}
	}
	return sm, nil
}

// GetAllServiceMetrics aggregates every known role. Roles that have not
// reported are omitted.
func (r *Reader) GetAllServiceMetrics(ctx context.Context) (map[string]*ServiceMetrics, error) {
	result := make(map[string]*ServiceMetrics, len(ServiceNames))
	for _, serviceName := range ServiceNames {
		sm, err := r.GetServiceMetrics(ctx, serviceName)
		if errors.Is(err, ErrNoMetrics) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result[serviceName] = sm
	}
	return result, nil
}

// aggregate sums live snapshots and returns the instance ids of stale or
// unreadable ones.
func aggregate(serviceName string, fields map[string]string, now time.Time) (*ServiceMetrics, []string) {
	sm := &ServiceMetrics{ServiceName: serviceName, Status: StatusStale}
	var stale []string
	for instance, raw := range fields {
		var snap Snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			slog.Warn("Dropping unreadable metrics snapshot", "service", serviceName, "instance", instance, "error", err)
			stale = append(stale, instance)
			continue
		}
		if snap.ReportedAt.After(sm.LastUpdated) {
			sm.LastUpdated = snap.ReportedAt
		}
		if now.Sub(snap.ReportedAt) > TTL {
			stale = append(stale, instance)
			continue
		}
		sm.Instances++
		sm.Counters.add(snap.Counters)
	}

	if sm.Instances > 0 {
		sm.Status = StatusHealthy
	}
	if sm.Processed > 0 {
		sm.AvgProcessingLatencyMs = float64(sm.LatencyNs) / float64(sm.Processed) / float64(time.Millisecond)
	}
	if pushes := sm.PushDelivered + sm.PushDropped; pushes > 0 {
		sm.PushDeliveryRate = float64(sm.PushDelivered) / float64(pushes)
	}
	return sm, stale
}
