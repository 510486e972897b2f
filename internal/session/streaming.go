// Package session holds the per-client consumer logic behind the streaming and polling transports.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/pubsub"
)

var (
	// ErrStreamClosed is returned by every operation on a closed stream.
	ErrStreamClosed = errors.New("stream closed")
	// ErrAlreadySubscribed is returned when a second room selection arrives.
	ErrAlreadySubscribed = errors.New("stream already subscribed")
	// ErrNotSubscribed is returned by Next before a room was selected.
	ErrNotSubscribed = errors.New("stream not subscribed")
)

// State is the lifecycle state of a stream.
type State int

const (
	StateConnecting State = iota
	StateSubscribed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Subscriber opens room subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context, room string) (*pubsub.Subscription, error)
}

// Stream is one push client's subscription lifecycle: Connecting -> Subscribed -> Closed.
// Every failure moves the stream to Closed; a closed stream never reopens.
type Stream struct {
	channel  Subscriber
	bindings *core.Bindings
	log      *zerolog.Logger

	mu    sync.Mutex
	state State
	room  string
	sub   *pubsub.Subscription
}

// NewStream creates a stream in the Connecting state.
func NewStream(channel Subscriber, bindings *core.Bindings, logger *zerolog.Logger) *Stream {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Stream{
		channel:  channel,
		bindings: bindings,
		log:      logger,
		state:    StateConnecting,
	}
}

// State returns the current state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Room returns the selected room, or "" before selection.
func (s *Stream) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Select handles the room-selection frame. On any error the stream is closed
// and no subscription is left behind.
func (s *Stream) Select(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return ErrStreamClosed
	case StateSubscribed:
		s.closeLocked()
		return ErrAlreadySubscribed
	}

	sel, err := proto.ParseRoomSelection(payload)
	if err != nil {
		s.closeLocked()
		return fmt.Errorf("%w: %w", core.ErrMalformedRequest, err)
	}

	if _, err := s.bindings.Lookup(sel.Room); err != nil {
		s.closeLocked()
		return err
	}

	sub, err := s.channel.Subscribe(ctx, sel.Room)
	if err != nil {
		s.closeLocked()
		return err
	}

	s.sub = sub
	s.room = sel.Room
	s.state = StateSubscribed
	s.log.Debug().Str("room", sel.Room).Msg("stream subscribed")

	return nil
}

// Next waits for the next broadcast. A channel disconnect closes the stream;
// context errors leave it open so the caller decides.
func (s *Stream) Next(ctx context.Context) (pubsub.Delivery, error) {
	s.mu.Lock()
	switch s.state {
	case StateConnecting:
		s.mu.Unlock()
		return pubsub.Delivery{}, ErrNotSubscribed
	case StateClosed:
		s.mu.Unlock()
		return pubsub.Delivery{}, ErrStreamClosed
	}
	sub := s.sub
	s.mu.Unlock()

	d, err := sub.Next(ctx)
	switch {
	case err == nil:
		return d, nil
	case errors.Is(err, pubsub.ErrDisconnected):
		s.log.Debug().Err(sub.Cause()).Str("room", sub.Room()).Msg("stream disconnected by channel")
		s.Close()
		return pubsub.Delivery{}, err
	case errors.Is(err, pubsub.ErrClosed):
		return pubsub.Delivery{}, ErrStreamClosed
	default:
		return pubsub.Delivery{}, err
	}
}

// Close releases the subscription. It is idempotent.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Stream) closeLocked() {
	if s.state == StateClosed {
		return
	}
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	s.state = StateClosed
}
