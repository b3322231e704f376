package kafka

import "time"

const (
	// MaxPollWait is the maximum time the reader waits for new data before returning a batch.
	MaxPollWait = 500 * time.Millisecond
	// CommitInterval is zero so offsets are committed synchronously, only after processing.
	CommitInterval = 0
	// WriteTimeout is the maximum time to wait for a Kafka write operation.
	WriteTimeout = 10 * time.Second
	// BatchTimeout bounds how long the writer holds a partial batch.
	BatchTimeout = 10 * time.Millisecond
)
