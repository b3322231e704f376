package coordinator

import (
	"context"

	"github.com/afikmenashe/alert-distribution/internal/alert"
	"github.com/afikmenashe/alert-distribution/internal/events"
)

// Store is the durable store. It alone enforces at most one DeliveryStatus
// per (alert, recipient).
type Store interface {
	// SaveAlert reports false when a record with the same id already exists.
	SaveAlert(ctx context.Context, rec *alert.Record) (bool, error)
	GetAlert(ctx context.Context, alertID string) (*alert.Record, error)
	SaveDeliveryStatuses(ctx context.Context, batch []alert.DeliveryStatus) ([]alert.DeliveryStatus, error)
	DeliveryExists(ctx context.Context, alertID, recipientID string) (bool, error)
	ToggleRead(ctx context.Context, recipientID string, deliveryID int64, read bool) error
	ListDeliveriesFor(ctx context.Context, recipientID string) ([]alert.Delivery, error)
}

// Resolver determines who receives an alert.
type Resolver interface {
	Resolve(ctx context.Context, appName string, hint alert.Department) ([]alert.Recipient, error)
}

// Pusher delivers to a recipient's live channel without blocking.
// It reports whether the delivery reached a channel.
type Pusher interface {
	Deliver(ctx context.Context, d *alert.Delivery) bool
}

// EventPublisher publishes bus events.
type EventPublisher interface {
	PublishAlertCreatedAsync(e *events.AlertCreated, done func(error))
	PublishUserAlerts(ctx context.Context, batch []*events.UserAlert) error
}

// FallbackNotifier reaches recipients whose live push failed.
type FallbackNotifier interface {
	NotifyAsync(d *alert.Delivery) bool
}
