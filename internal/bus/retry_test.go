package bus

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		failTimes int
		maxRetry  int
		wantCalls int
		wantErr   bool
	}{
		{"success first try", 0, 3, 1, false},
		{"success after retries", 2, 3, 3, false},
		{"exhausted", 10, 3, 4, true},
		{"no retries", 10, 0, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := WithRetry(context.Background(), fastRetry(tt.maxRetry), "test", func() error {
				calls++
				if calls <= tt.failTimes {
					return errors.New("connection refused")
				}
				return nil
			})
			if (err != nil) != tt.wantErr {
				t.Errorf("WithRetry() error = %v, wantErr %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 5, InitialBackoff: time.Second, MaxBackoff: time.Second, BackoffFactor: 1}

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := WithRetry(ctx, cfg, "test", func() error {
		calls++
		return errors.New("timeout")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("WithRetry() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, BackoffFactor: 2}
	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{5, time.Second},
	}
	for _, tt := range tests {
		got := calculateBackoff(cfg, tt.attempt)
		lo := time.Duration(float64(tt.base) * 0.75)
		hi := time.Duration(float64(tt.base) * 1.25)
		if got < lo || got > hi {
			t.Errorf("calculateBackoff(%d) = %v, want within [%v, %v]", tt.attempt, got, lo, hi)
		}
	}
}
