package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/afikmenashe/alert-distribution/internal/events"
)

// FakeReader serves a fixed list of messages and then blocks until ctx is done.
type FakeReader struct {
	mu       sync.Mutex
	messages []*Message
	commits  []*Message
}

func NewFakeReader(msgs ...*Message) *FakeReader {
	return &FakeReader{messages: msgs}
}

func (f *FakeReader) Fetch(ctx context.Context) (*Message, error) {
	f.mu.Lock()
	if len(f.messages) > 0 {
		msg := f.messages[0]
		f.messages = f.messages[1:]
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *FakeReader) Commit(_ context.Context, msg *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, msg)
	return nil
}

// Committed returns the highest committed offset per partition.
func (f *FakeReader) Committed() map[int]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int]int64)
	for _, m := range f.commits {
		if cur, ok := out[m.Partition]; !ok || m.Offset > cur {
			out[m.Partition] = m.Offset
		}
	}
	return out
}

func (f *FakeReader) CommitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commits)
}

// FakeDeadLetters records envelopes. The first FailTimes publishes fail.
type FakeDeadLetters struct {
	mu        sync.Mutex
	FailTimes int
	calls     int
	envelopes []*events.DeadLetterEnvelope
}

func (f *FakeDeadLetters) PublishDeadLetter(_ context.Context, env *events.DeadLetterEnvelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.FailTimes {
		return errors.New("broker unavailable")
	}
	f.envelopes = append(f.envelopes, env)
	return nil
}

func (f *FakeDeadLetters) Envelopes() []*events.DeadLetterEnvelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*events.DeadLetterEnvelope(nil), f.envelopes...)
}

func (f *FakeDeadLetters) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func testConfig(workers int) RunnerConfig {
	return RunnerConfig{
		Name:              "test",
		Workers:           workers,
		ProcessingTimeout: time.Second,
		Retry:             fastRetry(3),
		DeadLetterRetry:   fastRetry(2),
	}
}
