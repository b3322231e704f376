package kafka

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// TopicSpec describes a topic the services expect to exist.
type TopicSpec struct {
	Name       string
	Partitions int
	Retention  time.Duration
}

// EnsureTopics creates any missing topics on the given broker.
// Existing topics are left untouched, including their partition counts.
func EnsureTopics(broker string, specs ...TopicSpec) error {
	conn, err := kafka.Dial("tcp", broker)
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka at %s: %w", broker, err)
	}
	defer conn.Close()

	// Topic creation must go through the controller
	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to look up Kafka controller: %w", err)
	}
	ctrlConn, err := kafka.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka controller: %w", err)
	}
	defer ctrlConn.Close()

	var missing []kafka.TopicConfig
	for _, spec := range specs {
		partitions, err := conn.ReadPartitions(spec.Name)
		if err == nil && len(partitions) > 0 {
			slog.Info("Topic already exists",
				"topic", spec.Name,
				"partitions", len(partitions),
			)
			continue
		}
		missing = append(missing, topicConfig(spec))
	}
	if len(missing) == 0 {
		return nil
	}

	if err := ctrlConn.CreateTopics(missing...); err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}

	for _, tc := range missing {
		slog.Info("Created topic",
			"topic", tc.Topic,
			"partitions", tc.NumPartitions,
			"replication_factor", tc.ReplicationFactor,
		)
		waitForTopic(conn, tc.Topic)
	}
	return nil
}

func topicConfig(spec TopicSpec) kafka.TopicConfig {
	tc := kafka.TopicConfig{
		Topic:             spec.Name,
		NumPartitions:     spec.Partitions,
		ReplicationFactor: 1,
	}
	if spec.Retention > 0 {
		tc.ConfigEntries = []kafka.ConfigEntry{{
			ConfigName:  "retention.ms",
			ConfigValue: strconv.FormatInt(spec.Retention.Milliseconds(), 10),
		}}
	}
	return tc
}

// waitForTopic polls until the topic's partitions are readable.
// Kafka topic creation is asynchronous.
func waitForTopic(conn *kafka.Conn, topic string) {
	const maxRetries = 5
	for i := 0; i < maxRetries; i++ {
		partitions, err := conn.ReadPartitions(topic)
		if err == nil && len(partitions) > 0 {
			return
		}
		slog.Info("Waiting for topic to be available",
			"topic", topic,
			"attempt", i+1,
			"max_retries", maxRetries,
		)
		time.Sleep(time.Second)
	}
	slog.Warn("Topic created but may not be fully available yet",
		"topic", topic,
		"note", "Producer will retry on first write if topic is not ready",
	)
}
