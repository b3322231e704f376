package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/afikmenashe/alert-distribution/internal/alert"
	"github.com/afikmenashe/alert-distribution/internal/events"
	"github.com/afikmenashe/alert-distribution/internal/metrics"
)

const (
	// DefaultWorkers is the worker fan-out when none is configured.
	DefaultWorkers = 10
	// DefaultProcessingTimeout bounds one handler invocation.
	DefaultProcessingTimeout = 10 * time.Second
	// DefaultQueueSize is the per-worker buffer between the fetch loop and the worker.
	DefaultQueueSize = 64

	fetchErrorBackoff = 500 * time.Millisecond
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Name              string
	Workers           int
	QueueSize         int
	ProcessingTimeout time.Duration
	Retry             RetryConfig
	DeadLetterRetry   RetryConfig
}

// DefaultRunnerConfig returns the defaults for a runner called name.
func DefaultRunnerConfig(name string) RunnerConfig {
	return RunnerConfig{
		Name:              name,
		Workers:           DefaultWorkers,
		QueueSize:         DefaultQueueSize,
		ProcessingTimeout: DefaultProcessingTimeout,
		Retry:             DefaultRetryConfig(),
		DeadLetterRetry:   DefaultDeadLetterRetryConfig(),
	}
}

// Runner fetches messages from a Reader and dispatches them to key-affine
// workers. Messages with the same key are handled in fetch order.
type Runner struct {
	reader  Reader
	handler Handler
	dlq     DeadLetterPublisher
	cfg     RunnerConfig
	metrics metrics.Recorder
	tracker *tracker
	now     func() time.Time

	balancer *kafka.Hash
	workers  []int

	commitMu  sync.Mutex
	committed map[partitionKey]int64
}

// NewRunner creates a runner. If rec is nil, a no-op recorder is used.
func NewRunner(reader Reader, handler Handler, dlq DeadLetterPublisher, cfg RunnerConfig, rec metrics.Recorder) (*Runner, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader cannot be nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	if dlq == nil {
		return nil, fmt.Errorf("dead-letter publisher cannot be nil")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = DefaultProcessingTimeout
	}
	if rec == nil {
		rec = metrics.NewNoOp()
	}
	workers := make([]int, cfg.Workers)
	for i := range workers {
		workers[i] = i
	}
	return &Runner{
		reader:    reader,
		handler:   handler,
		dlq:       dlq,
		cfg:       cfg,
		metrics:   rec,
		tracker:   newTracker(),
		now:       time.Now,
		committed: make(map[partitionKey]int64),
		balancer:  &kafka.Hash{},
		workers:   workers,
	}, nil
}

// Run fetches and dispatches until ctx is done. Workers finish the message
// they hold; anything still queued stays uncommitted and is redelivered.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("Starting bus runner",
		"runner", r.cfg.Name,
		"workers", r.cfg.Workers,
		"processing_timeout", r.cfg.ProcessingTimeout,
		"max_retries", r.cfg.Retry.MaxRetries,
	)

	queues := make([]chan *Message, r.cfg.Workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan *Message, r.cfg.QueueSize)
		wg.Add(1)
		go func(q <-chan *Message) {
			defer wg.Done()
			for msg := range q {
				if ctx.Err() != nil {
					continue
				}
				r.process(ctx, msg)
			}
		}(queues[i])
	}

	defer func() {
		for _, q := range queues {
			close(q)
		}
		wg.Wait()
		slog.Info("Bus runner stopped", "runner", r.cfg.Name)
	}()

	for {
		msg, err := r.reader.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("Failed to fetch message", "runner", r.cfg.Name, "error", err)
			if !sleep(ctx, fetchErrorBackoff) {
				return nil
			}
			continue
		}

		r.metrics.RecordReceived()
		r.tracker.track(msg)

		select {
		case queues[r.worker(msg)] <- msg:
		case <-ctx.Done():
			return nil
		}
	}
}

// worker picks the worker for msg with the same key hashing the producer uses
// to pick partitions. Keyless messages stay on their partition's worker.
func (r *Runner) worker(msg *Message) int {
	key := msg.Key
	if len(key) == 0 {
		key = []byte(strconv.Itoa(msg.Partition))
	}
	return r.balancer.Balance(kafka.Message{Key: key}, r.workers...)
}

// process drives one message to a terminal outcome: acked, dead-lettered, or
// left uncommitted when shutdown interrupts it.
func (r *Runner) process(ctx context.Context, msg *Message) {
	start := r.now()
	for {
		res, err := r.invoke(ctx, msg)
		switch res {
		case Ack:
			r.metrics.RecordProcessed(time.Since(start))
			r.complete(ctx, msg)
			return

		case DeadLetter:
			r.deadLetter(ctx, msg, err)
			return

		default:
			r.metrics.RecordError()
			if msg.Attempt >= r.cfg.Retry.MaxRetries {
				r.deadLetter(ctx, msg, fmt.Errorf("%w: %w", alert.ErrExhausted, err))
				return
			}
			backoff := calculateBackoff(r.cfg.Retry, msg.Attempt)
			msg.Attempt++
			r.metrics.RecordRetried()
			slog.Warn("Handler asked for retry",
				"runner", r.cfg.Name,
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"attempt", msg.Attempt,
				"backoff", backoff,
				"error", err,
			)
			if !sleep(ctx, backoff) {
				return
			}
		}
	}
}

// invoke calls the handler under the processing timeout.
func (r *Runner) invoke(ctx context.Context, msg *Message) (Result, error) {
	hctx, cancel := context.WithTimeout(ctx, r.cfg.ProcessingTimeout)
	defer cancel()

	res, err := r.handler(hctx, msg)
	if res == Retry && err == nil {
		err = errors.New("handler requested retry")
	}
	return res, err
}

// deadLetter publishes one envelope for msg and acks it. The publish is
// retried until it succeeds or ctx is done, holding back only this worker;
// a message interrupted by shutdown stays uncommitted and is redelivered.
func (r *Runner) deadLetter(ctx context.Context, msg *Message, cause error) {
	env := events.NewDeadLetterEnvelope(msg.Value, cause, msg.Attempt, msg.Topic, msg.Partition, msg.Offset, r.now())
	env.OriginalKey = string(msg.Key)

	for round := 1; ; round++ {
		err := WithRetry(ctx, r.cfg.DeadLetterRetry, "dead-letter publish", func() error {
			return r.dlq.PublishDeadLetter(ctx, env)
		})
		if err == nil {
			break
		}
		r.metrics.RecordError()
		slog.Error("Failed to publish dead-letter envelope, retrying",
			"runner", r.cfg.Name,
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"round", round,
			"error", err,
		)
		if !sleep(ctx, r.cfg.DeadLetterRetry.MaxBackoff) {
			return
		}
	}

	r.metrics.RecordDeadLettered()
	slog.Warn("Message dead-lettered",
		"runner", r.cfg.Name,
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"error_class", env.ErrorClass,
		"retry_count", env.RetryCount,
		"error", cause,
	)
	r.complete(ctx, msg)
}

// complete marks msg done and commits the contiguous prefix it releases.
func (r *Runner) complete(ctx context.Context, msg *Message) {
	upTo := r.tracker.done(msg)
	if upTo == nil {
		return
	}

	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	key := partitionKey{upTo.Topic, upTo.Partition}
	if last, ok := r.committed[key]; ok && last >= upTo.Offset {
		return
	}
	if err := r.reader.Commit(ctx, upTo); err != nil {
		// A later commit on this partition covers this offset.
		slog.Error("Failed to commit offset",
			"runner", r.cfg.Name,
			"topic", upTo.Topic,
			"partition", upTo.Partition,
			"offset", upTo.Offset,
			"error", err,
		)
		return
	}
	r.committed[key] = upTo.Offset
}
