package handlers

import (
	"context"
	"time"

	"github.com/afikmenashe/alert-distribution/internal/alert"
	"github.com/afikmenashe/alert-distribution/internal/coordinator"
	"github.com/afikmenashe/alert-distribution/internal/normalizer"
	"github.com/afikmenashe/alert-distribution/internal/registry"
	"github.com/afikmenashe/alert-distribution/pkg/metrics"
)

// Coordinator ingests alerts and serves delivery state.
type Coordinator interface {
	Ingest(ctx context.Context, records []*alert.Record, hint alert.Department) (*coordinator.IngestResult, error)
	ListDeliveries(ctx context.Context, recipientID string) ([]alert.Delivery, error)
	ToggleRead(ctx context.Context, recipientID string, deliveryID int64, read bool) error
}

// Normalizer converts source payloads into alert records.
type Normalizer interface {
	Normalize(source normalizer.Source, body []byte) ([]*alert.Record, error)
}

// LiveRegistry manages live push channels.
type LiveRegistry interface {
	Subscribe(recipientID string) *registry.Channel
	Unsubscribe(ch *registry.Channel)
}

// Purger deletes alerts created before a cutoff.
type Purger interface {
	PurgeAlerts(ctx context.Context, before time.Time) (int64, error)
}

// MetricsReader reads service metrics reported to Redis.
type MetricsReader interface {
	GetServiceMetrics(ctx context.Context, serviceName string) (*metrics.ServiceMetrics, error)
	GetAllServiceMetrics(ctx context.Context) (map[string]*metrics.ServiceMetrics, error)
}

// Verify concrete types implement interfaces at compile time.
var (
	_ Coordinator   = (*coordinator.Coordinator)(nil)
	_ Normalizer    = (*normalizer.Normalizer)(nil)
	_ LiveRegistry  = (*registry.Registry)(nil)
	_ MetricsReader = (*metrics.Reader)(nil)
)
