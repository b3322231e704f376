package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/afikmenashe/alert-distribution/internal/alert"
	"github.com/afikmenashe/alert-distribution/internal/metrics"
)

const (
	// DefaultRate is the sustained number of emails per second.
	DefaultRate = 5
	// DefaultBurst is the limiter burst.
	DefaultBurst = 10
	// DefaultMaxInFlight bounds concurrent background sends.
	DefaultMaxInFlight = 16
	// DefaultSendTimeout bounds one background send including limiter wait.
	DefaultSendTimeout = 30 * time.Second
)

// RecipientLookup finds a recipient's directory entry.
type RecipientLookup interface {
	Lookup(ctx context.Context, recipientID string) (*alert.Recipient, error)
}

// Sender sends one email.
type Sender interface {
	Send(ctx context.Context, req *EmailRequest) error
}

// Config configures a Notifier.
type Config struct {
	From        string
	Rate        float64
	Burst       int
	MaxInFlight int
	SendTimeout time.Duration
}

// Notifier emails recipients whose live push failed.
type Notifier struct {
	lookup  RecipientLookup
	sender  Sender
	cfg     Config
	limiter *rate.Limiter
	sem     chan struct{}
	wg      sync.WaitGroup
	metrics metrics.Recorder
}

// NewNotifier creates a notifier. Zero config values take the defaults.
func NewNotifier(lookup RecipientLookup, sender Sender, cfg Config, rec metrics.Recorder) *Notifier {
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if rec == nil {
		rec = metrics.NewNoOp()
	}
	return &Notifier{
		lookup:  lookup,
		sender:  sender,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		sem:     make(chan struct{}, cfg.MaxInFlight),
		metrics: rec,
	}
}

// Notify emails the delivery's recipient. Recipients without an email address
// are skipped without error.
func (n *Notifier) Notify(ctx context.Context, d *alert.Delivery) error {
	recipient, err := n.lookup.Lookup(ctx, d.RecipientID)
	if err != nil {
		return fmt.Errorf("failed to look up recipient %s: %w", d.RecipientID, err)
	}
	if recipient.Email == "" {
		slog.Debug("Recipient has no email address, skipping fallback", "recipient_id", d.RecipientID)
		n.metrics.RecordSkipped()
		return nil
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("fallback rate limit wait: %w", err)
	}

	req := buildEmail(n.cfg.From, recipient.Email, d)
	if err := n.sender.Send(ctx, req); err != nil {
		return fmt.Errorf("failed to send fallback email: %w", err)
	}
	n.metrics.RecordPublished()
	return nil
}

// NotifyAsync sends in the background. When MaxInFlight sends are already
// running the notification is dropped and NotifyAsync returns false.
func (n *Notifier) NotifyAsync(d *alert.Delivery) bool {
	select {
	case n.sem <- struct{}{}:
	default:
		slog.Warn("Fallback notifier saturated, dropping notification",
			"delivery_id", d.ID,
			"recipient_id", d.RecipientID,
		)
		n.metrics.RecordError()
		return false
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer func() { <-n.sem }()

		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.SendTimeout)
		defer cancel()
		if err := n.Notify(ctx, d); err != nil {
			n.metrics.RecordError()
			slog.Error("Fallback notification failed",
				"delivery_id", d.ID,
				"recipient_id", d.RecipientID,
				"error", err,
			)
		}
	}()
	return true
}

// Wait blocks until background sends finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func buildEmail(from, to string, d *alert.Delivery) *EmailRequest {
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(d.Alert.Kind)), d.Alert.Title)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", d.Alert.Title)
	if d.Alert.Message != "" {
		fmt.Fprintf(&b, "%s\n\n", d.Alert.Message)
	}
	fmt.Fprintf(&b, "Application: %s\n", d.Alert.AppName)
	fmt.Fprintf(&b, "Raised at:   %s\n", d.Alert.OriginAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Alert ID:    %s\n", d.Alert.ID)

	return &EmailRequest{
		From:    from,
		To:      []string{to},
		Subject: subject,
		Body:    b.String(),
	}
}
