package handlers

import (
	"context"
	"time"

	"github.com/afikmenashe/alert-distribution/internal/alert"
	"github.com/afikmenashe/alert-distribution/internal/coordinator"
	"github.com/afikmenashe/alert-distribution/internal/normalizer"
	"github.com/afikmenashe/alert-distribution/pkg/metrics"
)

// mockCoordinator implements Coordinator for testing.
type mockCoordinator struct {
	IngestFn         func(ctx context.Context, records []*alert.Record, hint alert.Department) (*coordinator.IngestResult, error)
	ListDeliveriesFn func(ctx context.Context, recipientID string) ([]alert.Delivery, error)
	ToggleReadFn     func(ctx context.Context, recipientID string, deliveryID int64, read bool) error
}

func (m *mockCoordinator) Ingest(ctx context.Context, records []*alert.Record, hint alert.Department) (*coordinator.IngestResult, error) {
	if m.IngestFn != nil {
		return m.IngestFn(ctx, records, hint)
	}
	return &coordinator.IngestResult{Mode: coordinator.ModeDirect, Deliveries: []alert.Delivery{}}, nil
}

func (m *mockCoordinator) ListDeliveries(ctx context.Context, recipientID string) ([]alert.Delivery, error) {
	if m.ListDeliveriesFn != nil {
		return m.ListDeliveriesFn(ctx, recipientID)
	}
	return []alert.Delivery{}, nil
}

func (m *mockCoordinator) ToggleRead(ctx context.Context, recipientID string, deliveryID int64, read bool) error {
	if m.ToggleReadFn != nil {
		return m.ToggleReadFn(ctx, recipientID, deliveryID, read)
	}
	return nil
}

// mockNormalizer implements Normalizer for testing.
type mockNormalizer struct {
	NormalizeFn func(source normalizer.Source, body []byte) ([]*alert.Record, error)
}

func (m *mockNormalizer) Normalize(source normalizer.Source, body []byte) ([]*alert.Record, error) {
	if m.NormalizeFn != nil {
		return m.NormalizeFn(source, body)
	}
	return []*alert.Record{{ID: "a-1", AppName: "ssok-bank-core"}}, nil
}

// mockPurger implements Purger for testing.
type mockPurger struct {
	PurgeAlertsFn func(ctx context.Context, before time.Time) (int64, error)
}

func (m *mockPurger) PurgeAlerts(ctx context.Context, before time.Time) (int64, error) {
	if m.PurgeAlertsFn != nil {
		return m.PurgeAlertsFn(ctx, before)
	}
	return 0, nil
}

// mockMetricsReader implements MetricsReader for testing.
type mockMetricsReader struct {
	services map[string]*metrics.ServiceMetrics
	err      error
}

func (m *mockMetricsReader) GetServiceMetrics(_ context.Context, name string) (*metrics.ServiceMetrics, error) {
	if s, ok := m.services[name]; ok {
		return s, nil
	}
	return nil, metrics.ErrNoMetrics
}

func (m *mockMetricsReader) GetAllServiceMetrics(context.Context) (map[string]*metrics.ServiceMetrics, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]*metrics.ServiceMetrics, len(m.services))
	for k, v := range m.services {
		out[k] = v
	}
	return out, nil
}
