// Package coordinator distributes persisted alerts to their audience, either
// directly within the ingesting call or through the alert-created and
// user-alert topics.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/afikmenashe/alert-distribution/internal/alert"
	"github.com/afikmenashe/alert-distribution/internal/events"
	"github.com/afikmenashe/alert-distribution/internal/metrics"
)

// Mode selects how ingested alerts are distributed. A process runs one mode.
type Mode string

const (
	ModeDirect Mode = "direct"
	ModeAsync  Mode = "async"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDirect, ModeAsync:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown delivery mode %q (want direct or async)", s)
}

// DefaultPushTimeout bounds one live push.
const DefaultPushTimeout = 2 * time.Second

// Coordinator orchestrates ingestion, audience fan-out and delivery.
type Coordinator struct {
	mode        Mode
	store       Store
	resolver    Resolver
	pusher      Pusher
	publisher   EventPublisher
	fallback    FallbackNotifier
	metrics     metrics.Recorder
	pushTimeout time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPublisher sets the bus publisher. Required in async mode and by the
// audience consumer.
func WithPublisher(p EventPublisher) Option {
	return func(c *Coordinator) { c.publisher = p }
}

// WithFallback sets the secondary notification channel used when a push fails.
func WithFallback(f FallbackNotifier) Option {
	return func(c *Coordinator) { c.fallback = f }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(c *Coordinator) {
		if rec != nil {
			c.metrics = rec
		}
	}
}

// WithPushTimeout bounds each live push.
func WithPushTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.pushTimeout = d
		}
	}
}

// New creates a coordinator.
func New(mode Mode, store Store, resolver Resolver, pusher Pusher, opts ...Option) (*Coordinator, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if resolver == nil {
		return nil, fmt.Errorf("resolver cannot be nil")
	}
	if pusher == nil {
		return nil, fmt.Errorf("pusher cannot be nil")
	}

	c := &Coordinator{
		mode:        mode,
		store:       store,
		resolver:    resolver,
		pusher:      pusher,
		metrics:     metrics.NewNoOp(),
		pushTimeout: DefaultPushTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if mode == ModeAsync && c.publisher == nil {
		return nil, fmt.Errorf("async mode requires a publisher")
	}
	return c, nil
}

// Mode returns the configured delivery mode.
func (c *Coordinator) Mode() Mode { return c.mode }

// IngestResult reports what an ingest call did. Direct mode fills Deliveries
// with the rows it created; async mode fills Accepted with alert ids.
type IngestResult struct {
	Mode       Mode             `json:"mode"`
	Deliveries []alert.Delivery `json:"deliveries,omitempty"`
	Accepted   []string         `json:"accepted,omitempty"`
}

// Ingest persists records and distributes them according to the mode. A
// non-empty hint restricts the audience to one department.
func (c *Coordinator) Ingest(ctx context.Context, records []*alert.Record, hint alert.Department) (*IngestResult, error) {
	start := time.Now()
	c.metrics.RecordReceived()

	var (
		res *IngestResult
		err error
	)
	if c.mode == ModeAsync {
		res, err = c.ingestAsync(ctx, records, hint)
	} else {
		res, err = c.ingestDirect(ctx, records, hint)
	}
	if err != nil {
		c.metrics.RecordError()
		return nil, err
	}
	c.metrics.RecordProcessed(time.Since(start))
	return res, nil
}

func (c *Coordinator) ingestDirect(ctx context.Context, records []*alert.Record, hint alert.Department) (*IngestResult, error) {
	res := &IngestResult{Mode: ModeDirect, Deliveries: []alert.Delivery{}}
	for _, rec := range records {
		rec, err := c.persist(ctx, rec)
		if err != nil {
			return nil, err
		}

		recipients, err := c.resolver.Resolve(ctx, rec.AppName, hint)
		if err != nil {
			return nil, transient("resolve audience", err)
		}
		if len(recipients) == 0 {
			slog.Info("Alert has no audience", "alert_id", rec.ID, "app_name", rec.AppName)
			continue
		}

		batch := make([]alert.DeliveryStatus, 0, len(recipients))
		for _, r := range recipients {
			batch = append(batch, alert.DeliveryStatus{AlertID: rec.ID, RecipientID: r.ID})
		}
		created, err := c.store.SaveDeliveryStatuses(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("save deliveries for %s: %w", rec.ID, err)
		}

		for _, st := range created {
			d := alert.Delivery{DeliveryStatus: st, Alert: *rec}
			c.push(ctx, &d)
			res.Deliveries = append(res.Deliveries, d)
		}

		slog.Info("Distributed alert",
			"alert_id", rec.ID,
			"app_name", rec.AppName,
			"audience", len(recipients),
			"created", len(created),
		)
	}
	return res, nil
}

func (c *Coordinator) ingestAsync(ctx context.Context, records []*alert.Record, hint alert.Department) (*IngestResult, error) {
	res := &IngestResult{Mode: ModeAsync, Accepted: make([]string, 0, len(records))}
	for _, rec := range records {
		if _, err := c.store.SaveAlert(ctx, rec); err != nil {
			return nil, fmt.Errorf("save alert %s: %w", rec.ID, err)
		}

		e := events.NewAlertCreated(rec)
		e.Department = hint
		alertID := rec.ID
		c.publisher.PublishAlertCreatedAsync(e, func(err error) {
			if err != nil {
				c.metrics.RecordError()
				slog.Error("Alert-created publish failed, operator replay required",
					"alert_id", alertID,
					"error_class", alert.Class(err),
					"error", err,
				)
				return
			}
			c.metrics.RecordPublished()
		})
		res.Accepted = append(res.Accepted, rec.ID)
	}
	return res, nil
}

// persist saves rec and returns the record that is stored under its id. A
// record already stored wins over the incoming one.
func (c *Coordinator) persist(ctx context.Context, rec *alert.Record) (*alert.Record, error) {
	inserted, err := c.store.SaveAlert(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("save alert %s: %w", rec.ID, err)
	}
	if inserted {
		return rec, nil
	}
	stored, err := c.store.GetAlert(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("load stored alert %s: %w", rec.ID, err)
	}
	slog.Info("Alert id already stored, distributing stored record",
		"alert_id", rec.ID,
		"app_name", stored.AppName,
	)
	return stored, nil
}

// push attempts a live push. A failed push is soft: the delivery is recorded
// and the fallback channel is asked to notify the recipient.
func (c *Coordinator) push(ctx context.Context, d *alert.Delivery) bool {
	pctx, cancel := context.WithTimeout(ctx, c.pushTimeout)
	defer cancel()

	delivered := c.pusher.Deliver(pctx, d)
	c.metrics.RecordPush(delivered)
	if delivered {
		return true
	}

	slog.Debug("Live push not delivered",
		"delivery_id", d.ID,
		"alert_id", d.AlertID,
		"recipient_id", d.RecipientID,
	)
	if c.fallback != nil {
		c.fallback.NotifyAsync(d)
	}
	return false
}

// ListDeliveries returns a recipient's deliveries, newest first.
func (c *Coordinator) ListDeliveries(ctx context.Context, recipientID string) ([]alert.Delivery, error) {
	return c.store.ListDeliveriesFor(ctx, recipientID)
}

// ToggleRead sets the read flag of one of the recipient's deliveries.
func (c *Coordinator) ToggleRead(ctx context.Context, recipientID string, deliveryID int64, read bool) error {
	return c.store.ToggleRead(ctx, recipientID, deliveryID, read)
}

// transient wraps err as ErrTransient unless it already carries a class.
func transient(op string, err error) error {
	if errors.Is(err, alert.ErrTransient) || errors.Is(err, alert.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, alert.ErrTransient, err)
}
