// Package relay fans live deliveries out to every API instance over Redis pub/sub,
// so a recipient connected to any instance receives pushes produced on another.
//
// Each instance advertises its connected recipients in a Redis hash per
// recipient (field: instance id, value: expiry in unix milliseconds). A
// delivery is relayed only when a peer advertises the recipient.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/afikmenashe/alert-distribution/internal/alert"
)

const (
	// DefaultChannel is the Redis pub/sub channel carrying relayed deliveries.
	DefaultChannel = "alertd:deliveries"
	// DefaultPresenceTTL is how long an advertised recipient stays present
	// without a refresh.
	DefaultPresenceTTL = 30 * time.Second

	presenceOpTimeout = time.Second
)

// LocalPusher delivers to channels held by this instance.
type LocalPusher interface {
	Deliver(ctx context.Context, d *alert.Delivery) bool
	Recipients() []string
}

type envelope struct {
	Origin   string          `json:"origin"`
	Delivery *alert.Delivery `json:"delivery"`
}

// Relay pushes locally when the recipient is connected here and publishes to
// peer instances otherwise.
type Relay struct {
	client      *redis.Client
	local       LocalPusher
	channel     string
	instance    string
	presenceTTL time.Duration
	now         func() time.Time
}

// New creates a relay. An empty channel uses DefaultChannel.
func New(client *redis.Client, local LocalPusher, channel string) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{
		client:      client,
		local:       local,
		channel:     channel,
		instance:    uuid.NewString(),
		presenceTTL: DefaultPresenceTTL,
		now:         time.Now,
	}
}

func (r *Relay) presenceKey(recipientID string) string {
	return r.channel + ":presence:" + recipientID
}

// ChannelOpened advertises that recipientID is connected to this instance.
func (r *Relay) ChannelOpened(recipientID string) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceOpTimeout)
	defer cancel()
	if err := r.advertise(ctx, recipientID); err != nil {
		slog.Warn("Failed to advertise presence", "recipient_id", recipientID, "error", err)
	}
}

// ChannelClosed withdraws this instance's presence for recipientID.
func (r *Relay) ChannelClosed(recipientID string) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceOpTimeout)
	defer cancel()
	if err := r.client.HDel(ctx, r.presenceKey(recipientID), r.instance).Err(); err != nil {
		slog.Warn("Failed to withdraw presence", "recipient_id", recipientID, "error", err)
	}
}

func (r *Relay) advertise(ctx context.Context, recipientID string) error {
	key := r.presenceKey(recipientID)
	expiry := r.now().Add(r.presenceTTL).UnixMilli()
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, r.instance, expiry)
	pipe.PExpire(ctx, key, r.presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// refresh re-advertises every locally connected recipient.
func (r *Relay) refresh(ctx context.Context) {
	for _, id := range r.local.Recipients() {
		if err := r.advertise(ctx, id); err != nil {
			slog.Warn("Failed to refresh presence", "recipient_id", id, "error", err)
			return
		}
	}
}

// peerConnected reports whether another instance advertises recipientID.
func (r *Relay) peerConnected(ctx context.Context, recipientID string) (bool, error) {
	fields, err := r.client.HGetAll(ctx, r.presenceKey(recipientID)).Result()
	if err != nil {
		return false, err
	}
	now := r.now().UnixMilli()
	for instance, raw := range fields {
		if instance == r.instance {
			continue
		}
		if expiry, err := strconv.ParseInt(raw, 10, 64); err == nil && expiry > now {
			return true, nil
		}
	}
	return false, nil
}

// Deliver reports true when the delivery reached a local channel or was
// relayed to a peer instance that advertises the recipient.
func (r *Relay) Deliver(ctx context.Context, d *alert.Delivery) bool {
	if r.local.Deliver(ctx, d) {
		return true
	}

	online, err := r.peerConnected(ctx, d.RecipientID)
	if err != nil {
		slog.Warn("Failed to check recipient presence",
			"delivery_id", d.ID,
			"recipient_id", d.RecipientID,
			"error", err,
		)
		return false
	}
	if !online {
		return false
	}

	payload, err := json.Marshal(envelope{Origin: r.instance, Delivery: d})
	if err != nil {
		slog.Error("Failed to encode relayed delivery", "delivery_id", d.ID, "error", err)
		return false
	}
	receivers, err := r.client.Publish(ctx, r.channel, payload).Result()
	if err != nil {
		slog.Warn("Failed to relay delivery",
			"delivery_id", d.ID,
			"recipient_id", d.RecipientID,
			"error", err,
		)
		return false
	}
	// This instance is subscribed too and ignores its own messages.
	return receivers > 1
}

// Run subscribes to the relay channel and forwards peer deliveries to the
// local pusher until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	slog.Info("Relay subscriber started", "channel", r.channel, "instance", r.instance)

	r.refresh(ctx)
	ticker := time.NewTicker(r.presenceTTL / 3)
	defer ticker.Stop()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Relay subscriber stopped")
			return nil
		case <-ticker.C:
			r.refresh(ctx)
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			r.forward(ctx, msg.Payload)
		}
	}
}

func (r *Relay) forward(ctx context.Context, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil || env.Delivery == nil {
		slog.Warn("Dropping malformed relayed delivery", "error", err)
		return
	}
	if env.Origin == r.instance {
		return
	}
	if r.local.Deliver(ctx, env.Delivery) {
		slog.Debug("Delivered relayed alert",
			"delivery_id", env.Delivery.ID,
			"recipient_id", env.Delivery.RecipientID,
		)
	}
}
