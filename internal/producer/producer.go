// Package producer provides Kafka producers for the alert-created, user-alert
// and dead-letter topics.
package producer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/segmentio/kafka-go"

	kafkautil "github.com/afikmenashe/alert-distribution/pkg/kafka"
)

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer wraps a Kafka writer for one topic.
type Producer struct {
	writer messageWriter
	topic  string
	wg     sync.WaitGroup
}

// NewProducer creates a new Kafka producer with the specified brokers and topic.
// The producer is configured for at-least-once delivery semantics with synchronous writes.
func NewProducer(brokers string, topic string) (*Producer, error) {
	if err := kafkautil.ValidateProducerParams(brokers, topic); err != nil {
		return nil, err
	}

	brokerList := kafkautil.ParseBrokers(brokers)

	slog.Info("Initializing Kafka producer",
		"brokers", brokerList,
		"topic", topic,
	)

	// Hash balancer keeps every message with the same key on one partition.
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerList...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: kafkautil.WriteTimeout,
		BatchTimeout: kafkautil.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	slog.Info("Kafka producer configured",
		"topic", topic,
		"write_timeout", kafkautil.WriteTimeout,
		"required_acks", "RequireOne",
		"balancer", "Hash (key-based partitioning)",
	)

	return newProducer(writer, topic), nil
}

func newProducer(w messageWriter, topic string) *Producer {
	return &Producer{writer: w, topic: topic}
}

// Topic returns the topic this producer writes to.
func (p *Producer) Topic() string { return p.topic }

// Publish writes msgs and waits for the leader acknowledgement.
func (p *Producer) Publish(ctx context.Context, msgs ...kafka.Message) error {
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write %d message(s) to %s: %w", len(msgs), p.topic, err)
	}
	return nil
}

// PublishAsync writes msgs in the background and reports the outcome to done.
// The write is bounded by the writer timeout and is not tied to a request context.
func (p *Producer) PublishAsync(msgs []kafka.Message, done func(error)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), kafkautil.WriteTimeout)
		defer cancel()
		err := p.Publish(ctx, msgs...)
		if done != nil {
			done(err)
		}
	}()
}

// Close waits for in-flight async publishes and closes the writer.
func (p *Producer) Close() error {
	p.wg.Wait()
	slog.Info("Closing Kafka producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		slog.Error("Error closing Kafka producer", "topic", p.topic, "error", err)
		return err
	}
	slog.Info("Kafka producer closed successfully", "topic", p.topic)
	return nil
}
