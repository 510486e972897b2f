package pubsub

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
)

var (
	// ErrDisconnected is returned by Next after the channel dropped the subscriber,
	// either because its buffer overflowed or because the store connection was lost.
	ErrDisconnected = errors.New("subscription disconnected")
	// ErrClosed is returned by Next after Unsubscribe.
	ErrClosed = errors.New("subscription closed")
	// ErrSlowConsumer is the disconnect cause when the subscriber buffer overflows.
	ErrSlowConsumer = errors.New("subscriber buffer overflow")
)

// Delivery is one broadcast message as seen by a subscriber.
// Payload is the serialized form, forwarded verbatim by transports.
type Delivery struct {
	Message core.Message
	Payload []byte
}

// Subscription is a lazily pulled, cancellable sequence of broadcast messages for one room.
// It cannot be restarted; resubscribe to continue (without backfill).
type Subscription struct {
	room string
	ps   *redis.PubSub
	log  *zerolog.Logger

	deliveries   chan Delivery
	disconnected chan struct{}
	closed       chan struct{}

	closeOnce      sync.Once
	disconnectOnce sync.Once

	mu    sync.Mutex
	cause error
}

func newSubscription(room string, ps *redis.PubSub, buffer int, logger *zerolog.Logger) *Subscription {
	return &Subscription{
		room:         room,
		ps:           ps,
		log:          logger,
		deliveries:   make(chan Delivery, buffer),
		disconnected: make(chan struct{}),
		closed:       make(chan struct{}),
	}
}

// Room returns the room this subscription listens to.
func (s *Subscription) Room() string {
	return s.room
}

// Next blocks until the next message arrives, the subscription ends, or ctx is done.
// A disconnect takes priority over messages still buffered.
func (s *Subscription) Next(ctx context.Context) (Delivery, error) {
	select {
	case <-s.closed:
		return Delivery{}, ErrClosed
	case <-s.disconnected:
		return Delivery{}, ErrDisconnected
	default:
	}

	select {
	case d := <-s.deliveries:
		return d, nil
	case <-s.disconnected:
		return Delivery{}, ErrDisconnected
	case <-s.closed:
		return Delivery{}, ErrClosed
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	}
}

// Disconnected is closed when the channel drops this subscriber.
func (s *Subscription) Disconnected() <-chan struct{} {
	return s.disconnected
}

// Cause returns why the subscriber was disconnected, or nil.
func (s *Subscription) Cause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// Unsubscribe releases the subscription and its connection. It is idempotent.
func (s *Subscription) Unsubscribe() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.ps.Close()
	})
}

func (s *Subscription) pump() {
	for {
		// Unsubscribe and disconnect close ps, which unblocks this read.
		msg, err := s.ps.ReceiveMessage(context.Background())
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			s.disconnect(err)
			return
		}

		m, err := core.DecodeMessage([]byte(msg.Payload))
		if err != nil {
			s.log.Warn().Err(err).Str("room", s.room).Msg("skipping malformed broadcast")
			continue
		}

		select {
		case s.deliveries <- Delivery{Message: m, Payload: []byte(msg.Payload)}:
		default:
			s.disconnect(ErrSlowConsumer)
			return
		}
	}
}

func (s *Subscription) disconnect(cause error) {
	s.disconnectOnce.Do(func() {
		s.mu.Lock()
		s.cause = cause
		s.mu.Unlock()

		s.log.Debug().Err(cause).Str("room", s.room).Msg("subscriber disconnected")
		close(s.disconnected)
		_ = s.ps.Close()
	})
}
