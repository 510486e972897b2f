// Package queue implements per-token durable message queues on the shared store.
//
// Each token id owns one Redis list named queue:{token_id}. Producers append with RPUSH,
// optionally capped with LTRIM (oldest entries evicted first). Consumers read and clear
// the whole list in one MULTI/EXEC, so concurrent drains of the same token never see
// the same entry twice.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store/redisstore"
)

// waitSlice bounds a single BLPOP inside WaitAndDrain.
const waitSlice = time.Second

// Queue is the durable, at-least-once queue keyed by consumer token id.
type Queue struct {
	c          *redisstore.Client
	maxBacklog int64
	log        *zerolog.Logger
}

// New creates a queue. maxBacklog <= 0 leaves queues unbounded.
func New(c *redisstore.Client, maxBacklog int64, logger *zerolog.Logger) *Queue {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Queue{c: c, maxBacklog: maxBacklog, log: logger}
}

// Key returns the store key of a token's queue.
func (q *Queue) Key(tokenID string) string {
	return q.c.Key("queue", tokenID)
}

// MaxBacklog returns the per-queue cap, 0 when queues are unbounded.
func (q *Queue) MaxBacklog() int64 {
	if q.maxBacklog < 0 {
		return 0
	}
	return q.maxBacklog
}

// Enqueue appends msg to the token's queue.
func (q *Queue) Enqueue(ctx context.Context, tokenID string, msg core.Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}

	_, err = redisstore.Retry(ctx, q.c.RetryPolicy(), func() ([]redis.Cmder, error) {
		return q.c.Redis().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			q.EnqueueTx(ctx, pipe, tokenID, payload)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", tokenID, err)
	}
	return nil
}

// EnqueueTx queues the append of an encoded message on pipe.
// The caller executes the pipeline, usually as part of a larger transaction.
func (q *Queue) EnqueueTx(ctx context.Context, pipe redis.Pipeliner, tokenID string, payload []byte) {
	key := q.Key(tokenID)
	pipe.RPush(ctx, key, payload)
	if q.maxBacklog > 0 {
		pipe.LTrim(ctx, key, -q.maxBacklog, -1)
	}
}

// Pending returns the number of entries waiting in a token's queue.
func (q *Queue) Pending(ctx context.Context, tokenID string) (int64, error) {
	return redisstore.Retry(ctx, q.c.RetryPolicy(), func() (int64, error) {
		return q.c.Redis().LLen(ctx, q.Key(tokenID)).Result()
	})
}

// Drain removes and returns every pending message in order. It never blocks.
// Drains are attempted once: a retried MULTI whose reply was lost would drop entries.
func (q *Queue) Drain(ctx context.Context, tokenID string) ([]core.Message, error) {
	key := q.Key(tokenID)

	var entries *redis.StringSliceCmd
	_, err := redisstore.Retry(ctx, redisstore.RetryPolicy{Attempts: 1}, func() ([]redis.Cmder, error) {
		return q.c.Redis().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			entries = pipe.LRange(ctx, key, 0, -1)
			pipe.Del(ctx, key)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("drain %s: %w", tokenID, err)
	}

	return q.decode(tokenID, entries.Val()), nil
}

// WaitAndDrain behaves like Drain, but when the queue is empty it waits up to timeout
// for the first entry to arrive. A timeout yields an empty slice and no error.
// Timeouts are rounded up to whole seconds, the resolution of BLPOP.
func (q *Queue) WaitAndDrain(ctx context.Context, tokenID string, timeout time.Duration) ([]core.Message, error) {
	msgs, err := q.Drain(ctx, tokenID)
	if err != nil || len(msgs) > 0 {
		return msgs, err
	}

	res, err := q.wait(ctx, tokenID, blockTimeout(timeout))
	if err != nil {
		return nil, err
	}
	if res == nil {
		return []core.Message{}, nil
	}

	// res is [key, value].
	first := q.decode(tokenID, res[1:])

	rest, err := q.Drain(ctx, tokenID)
	if err != nil {
		// The popped entry is already gone from the store; hand it over and
		// leave the remainder for the next drain.
		q.log.Warn().Err(err).Str("token_id", tokenID).Msg("drain after wait failed")
		return first, nil
	}

	return append(first, rest...), nil
}

// wait blocks on BLPOP in short slices so a cancelled caller is released within one slice,
// without holding a pooled connection for the whole timeout. It returns nil on timeout.
func (q *Queue) wait(ctx context.Context, tokenID string, timeout time.Duration) ([]string, error) {
	key := q.Key(tokenID)
	deadline := time.Now().Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		res, err := q.c.Redis().BLPop(ctx, blockTimeout(min(remaining, waitSlice)), key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if redisstore.IsUnavailable(err) {
				return nil, fmt.Errorf("wait %s: %w: %w", tokenID, core.ErrStoreUnavailable, err)
			}
			return nil, fmt.Errorf("wait %s: %w", tokenID, err)
		}
		return res, nil
	}
}

func (q *Queue) decode(tokenID string, entries []string) []core.Message {
	msgs := make([]core.Message, 0, len(entries))
	for _, raw := range entries {
		msg, err := core.DecodeMessage([]byte(raw))
		if err != nil {
			q.log.Warn().Err(err).Str("token_id", tokenID).Msg("dropping malformed queue entry")
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func blockTimeout(timeout time.Duration) time.Duration {
	if timeout < time.Second {
		return time.Second
	}
	if rem := timeout % time.Second; rem != 0 {
		timeout += time.Second - rem
	}
	return timeout
}
