package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/afikmenashe/alert-distribution/internal/alert"
	"github.com/afikmenashe/alert-distribution/internal/events"
	kafkautil "github.com/afikmenashe/alert-distribution/pkg/kafka"
)

// EventPublisher publishes the distribution engine's events. Every failure
// wraps alert.ErrPublishFailed.
type EventPublisher struct {
	alertCreated *Producer
	userAlert    *Producer
	deadLetter   *Producer
	now          func() time.Time
}

// NewEventPublisher creates a publisher over one producer per topic.
func NewEventPublisher(alertCreated, userAlert, deadLetter *Producer) *EventPublisher {
	return &EventPublisher{
		alertCreated: alertCreated,
		userAlert:    userAlert,
		deadLetter:   deadLetter,
		now:          time.Now,
	}
}

// buildMessage serializes v to JSON and attaches the schema version header.
func buildMessage(key string, v any, schemaVersion int, at time.Time, extra map[string]string) (kafka.Message, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	headers := map[string]string{"schema_version": strconv.Itoa(schemaVersion)}
	for k, val := range extra {
		headers[k] = val
	}
	return kafka.Message{
		Key:     []byte(key),
		Value:   payload,
		Headers: kafkautil.Headers(headers),
		Time:    at,
	}, nil
}

func publishFailed(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, alert.ErrPublishFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", alert.ErrPublishFailed, err)
}

// PublishAlertCreated publishes e and waits for the acknowledgement.
func (p *EventPublisher) PublishAlertCreated(ctx context.Context, e *events.AlertCreated) error {
	msg, err := buildMessage(e.Key(), e, e.SchemaVersion, p.now(), nil)
	if err != nil {
		return publishFailed(err)
	}
	if err := p.alertCreated.Publish(ctx, msg); err != nil {
		slog.Error("Failed to publish alert-created event", "alert_id", e.AlertID, "error", err)
		return publishFailed(err)
	}
	slog.Debug("Published alert-created event", "alert_id", e.AlertID)
	return nil
}

// PublishAlertCreatedAsync publishes e in the background and calls done with
// the outcome. done may be nil.
func (p *EventPublisher) PublishAlertCreatedAsync(e *events.AlertCreated, done func(error)) {
	msg, err := buildMessage(e.Key(), e, e.SchemaVersion, p.now(), nil)
	if err != nil {
		if done != nil {
			done(publishFailed(err))
		}
		return
	}
	p.alertCreated.PublishAsync([]kafka.Message{msg}, func(err error) {
		if done != nil {
			done(publishFailed(err))
		}
	})
}

// PublishUserAlerts publishes one message per recipient in a single batch.
func (p *EventPublisher) PublishUserAlerts(ctx context.Context, batch []*events.UserAlert) error {
	if len(batch) == 0 {
		return nil
	}
	at := p.now()
	msgs := make([]kafka.Message, 0, len(batch))
	for _, e := range batch {
		msg, err := buildMessage(e.Key(), e, e.SchemaVersion, at, nil)
		if err != nil {
			return publishFailed(err)
		}
		msgs = append(msgs, msg)
	}
	if err := p.userAlert.Publish(ctx, msgs...); err != nil {
		slog.Error("Failed to publish user-alert batch",
			"alert_id", batch[0].AlertID,
			"count", len(batch),
			"error", err,
		)
		return publishFailed(err)
	}
	slog.Debug("Published user-alert batch", "alert_id", batch[0].AlertID, "count", len(batch))
	return nil
}

// PublishDeadLetter writes env to the dead-letter topic, keyed by the original key.
func (p *EventPublisher) PublishDeadLetter(ctx context.Context, env *events.DeadLetterEnvelope) error {
	msg, err := buildMessage(env.OriginalKey, env, events.SchemaVersion, p.now(), map[string]string{
		"error_class":    env.ErrorClass,
		"original_topic": env.OriginalTopic,
	})
	if err != nil {
		return publishFailed(err)
	}
	if err := p.deadLetter.Publish(ctx, msg); err != nil {
		return publishFailed(err)
	}
	return nil
}

// Close closes every producer, waiting for in-flight async publishes.
func (p *EventPublisher) Close() error {
	var errs []error
	for _, prod := range []*Producer{p.alertCreated, p.userAlert, p.deadLetter} {
		if prod == nil {
			continue
		}
		if err := prod.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
