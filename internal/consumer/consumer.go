// Package consumer adapts a kafka-go consumer-group reader to the bus.Reader interface.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/afikmenashe/alert-distribution/internal/bus"
	kafkautil "github.com/afikmenashe/alert-distribution/pkg/kafka"
)

// Consumer wraps a Kafka reader. Offsets are committed only through Commit.
type Consumer struct {
	reader *kafka.Reader
	topic  string
}

// NewConsumer creates a new Kafka consumer with the specified brokers, topic, and group ID.
// The consumer is configured for at-least-once delivery semantics.
func NewConsumer(brokers string, topic string, groupID string) (*Consumer, error) {
	if err := kafkautil.ValidateConsumerParams(brokers, topic, groupID); err != nil {
		return nil, err
	}

	brokerList := kafkautil.ParseBrokers(brokers)

	slog.Info("Initializing Kafka consumer",
		"brokers", brokerList,
		"topic", topic,
		"group_id", groupID,
	)

	reader := kafka.NewReader(kafkautil.NewReaderConfig(brokerList, topic, groupID))
	kafkautil.LogReaderConfig(topic)

	return &Consumer{
		reader: reader,
		topic:  topic,
	}, nil
}

// Fetch reads the next message without committing it.
func (c *Consumer) Fetch(ctx context.Context) (*bus.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message from Kafka: %w", err)
	}
	return toBusMessage(msg), nil
}

// Commit commits the offset of msg for the consumer group.
func (c *Consumer) Commit(ctx context.Context, msg *bus.Message) error {
	if err := c.reader.CommitMessages(ctx, kafka.Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	}); err != nil {
		return fmt.Errorf("failed to commit offset %d on %s/%d: %w", msg.Offset, msg.Topic, msg.Partition, err)
	}
	return nil
}

// Close gracefully closes the Kafka reader and releases resources.
func (c *Consumer) Close() error {
	slog.Info("Closing Kafka consumer", "topic", c.topic)
	if err := c.reader.Close(); err != nil {
		slog.Error("Error closing Kafka consumer", "error", err)
		return err
	}
	slog.Info("Kafka consumer closed successfully")
	return nil
}

// toBusMessage converts a Kafka message. Attempt starts at zero; the retry
// counter is local to the process that fetched the message.
func toBusMessage(msg kafka.Message) *bus.Message {
	return &bus.Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   kafkautil.HeaderMap(msg.Headers),
		Time:      msg.Time,
	}
}

var _ bus.Reader = (*Consumer)(nil)
