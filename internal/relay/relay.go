// Package relay is the single entry point for inbound chat messages.
//
// A published message is validated against the room bindings, stamped, and then handed to
// both delivery paths in one server-side script: the room's broadcast channel, every token's
// durable queue, and the inbound bus read by the chat logger. Either all of them receive the
// message or Publish reports failure.
package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/pubsub"
	"github.com/vovakirdan/wirechat-relay/internal/queue"
	"github.com/vovakirdan/wirechat-relay/internal/store/redisstore"
	"github.com/vovakirdan/wirechat-relay/internal/utils"
)

// DefaultBusTopic is the store channel that carries every accepted message onward.
const DefaultBusTopic = "bus:im2fish"

// appliedMarkTTL is how long a publish remembers it was applied, bounding the retry window.
const appliedMarkTTL = 5 * time.Minute

// fanoutScript hands one payload to every delivery path.
// KEYS[1] is the applied mark of this publish, KEYS[2..] are the token queues.
// ARGV is payload, backlog cap, room channel, bus channel, mark ttl in seconds.
// Returns 0 when the mark already exists, 1 when the payload was delivered.
var fanoutScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
for i = 2, #KEYS do
  local t = redis.call('TYPE', KEYS[i])
  if type(t) == 'table' then t = t.ok end
  if t ~= 'none' and t ~= 'list' then
    return redis.error_reply('WRONGTYPE queue ' .. KEYS[i] .. ' holds ' .. t)
  end
end
local cap = tonumber(ARGV[2])
for i = 2, #KEYS do
  redis.call('RPUSH', KEYS[i], ARGV[1])
  if cap > 0 then
    redis.call('LTRIM', KEYS[i], -cap, -1)
  end
end
redis.call('PUBLISH', ARGV[3], ARGV[1])
redis.call('PUBLISH', ARGV[4], ARGV[1])
redis.call('SET', KEYS[1], '1', 'EX', ARGV[5])
return 1
`)

// Producer identifies the kind of inbound poster.
type Producer int

const (
	// ProducerWeb is the anonymous web form.
	ProducerWeb Producer = iota
	// ProducerAPI is an authenticated API client.
	ProducerAPI
)

// Post is an inbound message before validation.
type Post struct {
	Producer Producer
	Room     string
	Sender   string // web nickname, or an API sender override
	Content  string
	Identity *auth.Identity // resolved upstream for API posts
}

// TokenLister lists the tokens that own durable queues.
type TokenLister interface {
	TokenIDs(ctx context.Context) ([]string, error)
}

// Options tweaks message stamping and hand-off.
type Options struct {
	Location       *time.Location
	CommandMatcher core.CommandMatcher
	BusTopic       string
	Now            func() time.Time
}

// Relay validates inbound posts and hands them to the bus.
type Relay struct {
	c        *redisstore.Client
	bindings *core.Bindings
	channel  *pubsub.Channel
	queue    *queue.Queue
	tokens   TokenLister
	log      *zerolog.Logger

	loc       *time.Location
	isCommand core.CommandMatcher
	busTopic  string
	now       func() time.Time

	locks roomLocks
}

// New creates a relay.
func New(
	c *redisstore.Client,
	bindings *core.Bindings,
	channel *pubsub.Channel,
	q *queue.Queue,
	tokens TokenLister,
	logger *zerolog.Logger,
	opts Options,
) *Relay {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.CommandMatcher == nil {
		opts.CommandMatcher = core.IsCommand
	}
	if opts.BusTopic == "" {
		opts.BusTopic = DefaultBusTopic
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Relay{
		c:         c,
		bindings:  bindings,
		channel:   channel,
		queue:     q,
		tokens:    tokens,
		log:       logger,
		loc:       opts.Location,
		isCommand: opts.CommandMatcher,
		busTopic:  opts.BusTopic,
		now:       opts.Now,
		locks:     roomLocks{locks: make(map[string]*sync.Mutex)},
	}
}

// Publish validates post and hands the resulting message to the bus exactly once.
// Validation failures are returned as core errors and are never retried.
func (r *Relay) Publish(ctx context.Context, post Post) (core.Message, error) {
	msg, err := r.build(post)
	if err != nil {
		return core.Message{}, err
	}

	payload, err := msg.Encode()
	if err != nil {
		return core.Message{}, err
	}

	unlock := r.locks.lock(msg.Room)
	defer unlock()

	tokenIDs, err := r.tokens.TokenIDs(ctx)
	if err != nil {
		return core.Message{}, fmt.Errorf("publish: %w", err)
	}

	// Every attempt carries the same publish id, so an attempt whose reply was lost
	// after the script ran is not applied twice.
	publishID := utils.NewID()
	_, err = redisstore.Retry(ctx, r.c.RetryPolicy(), func() (bool, error) {
		return r.fanout(ctx, publishID, msg.Room, payload, tokenIDs)
	})
	if err != nil {
		r.log.Error().Err(err).Str("room", msg.Room).Str("origin", string(msg.Origin)).Msg("publish failed")
		return core.Message{}, fmt.Errorf("publish: %w", err)
	}

	r.log.Debug().
		Str("room", msg.Room).
		Str("origin", string(msg.Origin)).
		Str("sender", msg.Sender).
		Int("queues", len(tokenIDs)).
		Msg("message relayed")

	return msg, nil
}

// fanout runs the delivery script once. It reports false when publishID was already applied.
func (r *Relay) fanout(ctx context.Context, publishID, room string, payload []byte, tokenIDs []string) (bool, error) {
	keys := make([]string, 0, len(tokenIDs)+1)
	keys = append(keys, r.c.Key("relay", "applied", publishID))
	for _, id := range tokenIDs {
		keys = append(keys, r.queue.Key(id))
	}

	n, err := fanoutScript.Run(ctx, r.c.Redis(), keys,
		payload,
		r.queue.MaxBacklog(),
		r.channel.Topic(room),
		r.c.Key(r.busTopic),
		int64(appliedMarkTTL/time.Second),
	).Int()
	if err != nil {
		return false, err
	}
	if n == 0 {
		r.log.Debug().Str("publish_id", publishID).Str("room", room).Msg("publish already applied")
		return false, nil
	}
	return true, nil
}

func (r *Relay) build(post Post) (core.Message, error) {
	binding, err := r.bindings.Lookup(post.Room)
	if err != nil {
		return core.Message{}, err
	}

	var origin core.Origin
	sender := strings.TrimSpace(post.Sender)

	switch post.Producer {
	case ProducerWeb:
		if !binding.WebPost {
			return core.Message{}, core.ErrPostingDisabled
		}
		if post.Content == "" {
			return core.Message{}, core.ErrEmptyContent
		}
		if !core.ValidSender(sender) {
			return core.Message{}, core.ErrInvalidSender
		}
		origin = core.OriginWeb
	case ProducerAPI:
		if post.Identity == nil {
			return core.Message{}, core.ErrUnauthorized
		}
		if post.Content == "" {
			return core.Message{}, core.ErrEmptyContent
		}
		if sender == "" {
			sender = post.Identity.Name
		}
		origin = core.APIOrigin(post.Identity.Name)
	default:
		return core.Message{}, core.ErrMalformedRequest
	}

	mtype := core.Classify(post.Content, r.isCommand)
	return core.NewMessage(origin, sender, binding.Name, post.Content, mtype, r.now(), r.loc), nil
}

// roomLocks serializes publishes per room so both delivery paths see the same order.
// Rooms come from a bounded binding table, so locks are never evicted.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *roomLocks) lock(room string) func() {
	l.mu.Lock()
	m, ok := l.locks[room]
	if !ok {
		m = &sync.Mutex{}
		l.locks[room] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
