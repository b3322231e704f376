// Package registry keeps the process-local table of live push channels.
//
// Each recipient has at most one channel. Subscribing again evicts the previous
// channel, a push that cannot be queued immediately evicts the channel, and
// every channel expires after a fixed session timeout.
package registry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/afikmenashe/alert-distribution/internal/alert"
)

const (
	// EventInit is sent once when a channel connects.
	EventInit = "init"
	// EventAlert carries one delivery.
	EventAlert = "alert"

	// DefaultQueueSize bounds the events buffered per channel.
	DefaultQueueSize = 16
	// DefaultSessionTimeout caps how long a channel lives before the client must reconnect.
	DefaultSessionTimeout = time.Hour
)

// Event is one message on a live channel.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Channel is one recipient's live connection.
type Channel struct {
	recipientID string
	events      chan Event
	done        chan struct{}
	closeOnce   sync.Once
	connectedAt time.Time

	mu    sync.Mutex
	timer *time.Timer
}

// RecipientID returns the recipient this channel belongs to.
func (c *Channel) RecipientID() string { return c.recipientID }

// ConnectedAt returns when the channel subscribed.
func (c *Channel) ConnectedAt() time.Time { return c.connectedAt }

// Events returns queued events. It is never closed; select on Done as well.
func (c *Channel) Events() <-chan Event { return c.events }

// Done is closed when the channel is evicted, expired or unsubscribed.
func (c *Channel) Done() <-chan struct{} { return c.done }

func (c *Channel) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeOnce.Do(func() {
		close(c.done)
		if c.timer != nil {
			c.timer.Stop()
		}
	})
}

// send queues ev unless the channel is closed or full. Closing and sending
// share mu, so nothing is queued on a channel after Done is closed.
func (c *Channel) send(ev Event) (queued, open bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed() {
		return false, false
	}
	select {
	case c.events <- ev:
		return true, true
	default:
		return false, true
	}
}

func (c *Channel) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Observer is told when a recipient gains or loses its live channel on this
// process. Replacing a channel does not count as losing it.
type Observer interface {
	ChannelOpened(recipientID string)
	ChannelClosed(recipientID string)
}

// Registry maps recipient ids to their live channel. Safe for concurrent use.
type Registry struct {
	channels       sync.Map // recipient id -> *Channel
	queueSize      int
	sessionTimeout time.Duration
	observer       atomic.Pointer[Observer]
}

// Option configures a Registry.
type Option func(*Registry)

// WithQueueSize sets the per-channel event buffer.
func WithQueueSize(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithSessionTimeout sets the session cap.
func WithSessionTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.sessionTimeout = d
		}
	}
}

// SetObserver registers o for channel open and close notifications.
func (r *Registry) SetObserver(o Observer) {
	r.observer.Store(&o)
}

func (r *Registry) opened(recipientID string) {
	if o := r.observer.Load(); o != nil {
		(*o).ChannelOpened(recipientID)
	}
}

// remove drops ch from the table if it is still current and closes it.
func (r *Registry) remove(ch *Channel) bool {
	removed := r.channels.CompareAndDelete(ch.recipientID, ch)
	ch.close()
	if removed {
		if o := r.observer.Load(); o != nil {
			(*o).ChannelClosed(ch.recipientID)
		}
	}
	return removed
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		queueSize:      DefaultQueueSize,
		sessionTimeout: DefaultSessionTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe registers a new channel for recipientID, evicting any previous one.
func (r *Registry) Subscribe(recipientID string) *Channel {
	ch := &Channel{
		recipientID: recipientID,
		events:      make(chan Event, r.queueSize),
		done:        make(chan struct{}),
		connectedAt: time.Now().UTC(),
	}

	if prev, loaded := r.channels.Swap(recipientID, ch); loaded {
		prev.(*Channel).close()
		slog.Info("Replaced live channel", "recipient_id", recipientID)
	}

	timer := time.AfterFunc(r.sessionTimeout, func() { r.expire(ch) })
	ch.mu.Lock()
	ch.timer = timer
	ch.mu.Unlock()
	if ch.closed() {
		timer.Stop()
	}

	r.opened(recipientID)
	slog.Debug("Live channel subscribed", "recipient_id", recipientID)
	return ch
}

// Unsubscribe removes ch if it is still the recipient's current channel and closes it.
func (r *Registry) Unsubscribe(ch *Channel) {
	r.remove(ch)
}

func (r *Registry) expire(ch *Channel) {
	if r.remove(ch) {
		slog.Info("Live channel session expired",
			"recipient_id", ch.recipientID,
			"session_timeout", r.sessionTimeout,
		)
	}
}

// Push queues ev on the recipient's channel without blocking. It returns false
// when the recipient has no channel or the channel cannot take the event; in
// the latter case the channel is evicted.
func (r *Registry) Push(recipientID string, ev Event) bool {
	v, ok := r.channels.Load(recipientID)
	if !ok {
		return false
	}
	ch := v.(*Channel)
	queued, open := ch.send(ev)
	if queued {
		return true
	}
	if open {
		slog.Warn("Live channel not draining, evicting",
			"recipient_id", recipientID,
			"queue_size", r.queueSize,
		)
	}
	r.remove(ch)
	return false
}

// Deliver pushes a delivery as an alert event.
func (r *Registry) Deliver(_ context.Context, d *alert.Delivery) bool {
	return r.Push(d.RecipientID, Event{Name: EventAlert, Data: d})
}

// Connected reports whether the recipient currently has a live channel.
func (r *Registry) Connected(recipientID string) bool {
	v, ok := r.channels.Load(recipientID)
	return ok && !v.(*Channel).closed()
}

// Recipients returns the ids of recipients with a live channel.
func (r *Registry) Recipients() []string {
	var ids []string
	r.channels.Range(func(key, value any) bool {
		if !value.(*Channel).closed() {
			ids = append(ids, key.(string))
		}
		return true
	})
	return ids
}

// Len returns the number of registered channels.
func (r *Registry) Len() int {
	n := 0
	r.channels.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Close evicts every channel. Used on shutdown.
func (r *Registry) Close() {
	r.channels.Range(func(_, value any) bool {
		r.remove(value.(*Channel))
		return true
	})
}
