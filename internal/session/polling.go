package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/wirechat-relay/internal/core"
)

// DefaultPollTimeout bounds a long poll on an empty queue.
const DefaultPollTimeout = 10 * time.Second

// Waiter drains a token's durable queue, waiting when it is empty.
type Waiter interface {
	WaitAndDrain(ctx context.Context, tokenID string, timeout time.Duration) ([]core.Message, error)
}

// Poller serves long-poll requests. It keeps no state between requests.
type Poller struct {
	queue    Waiter
	bindings *core.Bindings
	timeout  time.Duration
	log      *zerolog.Logger
}

// NewPoller creates a poller. timeout <= 0 selects DefaultPollTimeout.
func NewPoller(q Waiter, bindings *core.Bindings, timeout time.Duration, logger *zerolog.Logger) *Poller {
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Poller{queue: q, bindings: bindings, timeout: timeout, log: logger}
}

// Poll returns everything pending for tokenID, waiting up to the poll timeout when nothing is.
// A timeout is a successful empty result.
//
// When room is set, entries for other rooms are dropped after they were removed from the
// queue; they are consumed, not requeued.
func (p *Poller) Poll(ctx context.Context, tokenID, room string) ([]core.Message, error) {
	if room != "" {
		if _, err := p.bindings.Lookup(room); err != nil {
			return nil, err
		}
	}

	// WaitAndDrain drains immediately when entries are pending.
	msgs, err := p.queue.WaitAndDrain(ctx, tokenID, p.timeout)
	if err != nil {
		return nil, err
	}

	if room == "" {
		return msgs, nil
	}

	kept := lo.Filter(msgs, func(m core.Message, _ int) bool {
		return m.Room == room
	})
	if dropped := len(msgs) - len(kept); dropped > 0 {
		p.log.Debug().Str("token_id", tokenID).Str("room", room).Int("dropped", dropped).Msg("poll discarded other rooms")
	}

	return kept, nil
}
