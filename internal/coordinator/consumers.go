package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/afikmenashe/alert-distribution/internal/alert"
	"github.com/afikmenashe/alert-distribution/internal/bus"
	"github.com/afikmenashe/alert-distribution/internal/events"
)

// HandleAlertCreated resolves the audience of a persisted alert and publishes
// one UserAlert per recipient in a single batch.
func (c *Coordinator) HandleAlertCreated(ctx context.Context, msg *bus.Message) (bus.Result, error) {
	e, err := events.DecodeAlertCreated(msg.Value)
	if err != nil {
		return bus.DeadLetter, err
	}
	if c.publisher == nil {
		return bus.Retry, fmt.Errorf("%w: no publisher configured", alert.ErrPublishFailed)
	}

	rec, err := c.store.GetAlert(ctx, e.AlertID)
	if errors.Is(err, alert.ErrNotFound) {
		slog.Warn("Alert-created references unknown alert, acknowledging",
			"alert_id", e.AlertID,
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
		return bus.Ack, nil
	}
	if err != nil {
		return bus.Retry, fmt.Errorf("get alert %s: %w", e.AlertID, err)
	}

	recipients, err := c.resolver.Resolve(ctx, rec.AppName, e.Department)
	if err != nil {
		return bus.Retry, transient("resolve audience", err)
	}
	if len(recipients) == 0 {
		slog.Info("Alert has no audience", "alert_id", rec.ID, "app_name", rec.AppName)
		return bus.Ack, nil
	}

	batch := make([]*events.UserAlert, 0, len(recipients))
	for _, r := range recipients {
		batch = append(batch, events.NewUserAlert(rec.ID, r.ID))
	}
	if err := c.publisher.PublishUserAlerts(ctx, batch); err != nil {
		return bus.Retry, err
	}
	c.metrics.RecordPublished()

	slog.Info("Fanned out alert",
		"alert_id", rec.ID,
		"app_name", rec.AppName,
		"audience", len(batch),
	)
	return bus.Ack, nil
}

// HandleUserAlert records one alert for one recipient and pushes it.
// Duplicates are acknowledged without side effects.
func (c *Coordinator) HandleUserAlert(ctx context.Context, msg *bus.Message) (bus.Result, error) {
	e, err := events.DecodeUserAlert(msg.Value)
	if err != nil {
		return bus.DeadLetter, err
	}

	exists, err := c.store.DeliveryExists(ctx, e.AlertID, e.RecipientID)
	if err != nil {
		return bus.Retry, fmt.Errorf("check delivery: %w", err)
	}
	if exists {
		c.metrics.RecordSkipped()
		slog.Debug("Delivery already recorded, skipping",
			"alert_id", e.AlertID,
			"recipient_id", e.RecipientID,
		)
		return bus.Ack, nil
	}

	rec, err := c.store.GetAlert(ctx, e.AlertID)
	if errors.Is(err, alert.ErrNotFound) {
		slog.Warn("User-alert references unknown alert, acknowledging",
			"alert_id", e.AlertID,
			"recipient_id", e.RecipientID,
		)
		return bus.Ack, nil
	}
	if err != nil {
		return bus.Retry, fmt.Errorf("get alert %s: %w", e.AlertID, err)
	}

	created, err := c.store.SaveDeliveryStatuses(ctx, []alert.DeliveryStatus{{
		AlertID:     e.AlertID,
		RecipientID: e.RecipientID,
	}})
	if err != nil {
		return bus.Retry, fmt.Errorf("save delivery: %w", err)
	}
	if len(created) == 0 {
		// A concurrent duplicate won the insert.
		c.metrics.RecordSkipped()
		return bus.Ack, nil
	}

	d := alert.Delivery{DeliveryStatus: created[0], Alert: *rec}
	delivered := c.push(ctx, &d)

	slog.Info("Recorded delivery",
		"delivery_id", d.ID,
		"alert_id", d.AlertID,
		"recipient_id", d.RecipientID,
		"pushed", delivered,
	)
	return bus.Ack, nil
}
