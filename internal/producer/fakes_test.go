package producer

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"
)

// FakeWriter records written messages. Err, when set, fails every write.
type FakeWriter struct {
	mu      sync.Mutex
	Err     error
	batches [][]kafka.Message
	closed  bool
}

func (f *FakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.batches = append(f.batches, msgs)
	return nil
}

func (f *FakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FakeWriter) Batches() [][]kafka.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]kafka.Message(nil), f.batches...)
}
