// Package pubsub broadcasts messages to the live subscribers of a room.
//
// Nothing is persisted: a subscriber sees only what is published while it is subscribed.
// Every subscription owns its own store connection and a bounded buffer; a subscriber that
// falls behind is disconnected instead of slowing down publishers.
package pubsub

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store/redisstore"
)

// DefaultBuffer is the per-subscriber buffer used when none is configured.
const DefaultBuffer = 64

// Channel is the per-room broadcast channel.
type Channel struct {
	c      *redisstore.Client
	buffer int
	log    *zerolog.Logger
}

// New creates a broadcast channel. buffer <= 0 selects DefaultBuffer.
func New(c *redisstore.Client, buffer int, logger *zerolog.Logger) *Channel {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Channel{c: c, buffer: buffer, log: logger}
}

// Topic returns the store channel name for a room.
func (ch *Channel) Topic(room string) string {
	return ch.c.Key("chat", room)
}

// Publish delivers msg to every current subscriber of room.
func (ch *Channel) Publish(ctx context.Context, room string, msg core.Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}

	_, err = redisstore.Retry(ctx, ch.c.RetryPolicy(), func() (int64, error) {
		return ch.c.Redis().Publish(ctx, ch.Topic(room), payload).Result()
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", room, err)
	}
	return nil
}

// Subscribe opens a subscription to room. It returns once the store has confirmed the
// subscription, so every message published after Subscribe returns is observed.
// The caller must call Unsubscribe to release the connection.
func (ch *Channel) Subscribe(ctx context.Context, room string) (*Subscription, error) {
	ps := ch.c.Redis().Subscribe(ctx, ch.Topic(room))

	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if redisstore.IsUnavailable(err) {
			return nil, fmt.Errorf("subscribe %s: %w: %w", room, core.ErrStoreUnavailable, err)
		}
		return nil, fmt.Errorf("subscribe %s: %w", room, err)
	}

	sub := newSubscription(room, ps, ch.buffer, ch.log)
	go sub.pump()

	return sub, nil
}
