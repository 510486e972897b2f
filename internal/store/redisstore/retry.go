package redisstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"

	"github.com/vovakirdan/wirechat-relay/internal/core"
)

// RetryPolicy bounds local retries of store-unavailable failures.
type RetryPolicy struct {
	Attempts        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is used when nothing is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:        3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

// IsUnavailable reports whether err means the store could not be reached,
// as opposed to a reply error or a missing key.
func IsUnavailable(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	if errors.Is(err, core.ErrStoreUnavailable) {
		return true
	}
	if errors.Is(err, redis.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Retry runs op, retrying with exponential backoff while it fails with an unavailable store.
// Any other error is returned immediately. Exhausted retries surface as core.ErrStoreUnavailable.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func() (T, error)) (T, error) {
	attempts := policy.Attempts
	if attempts == 0 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}

	res, err := backoff.Retry(ctx, func() (T, error) {
		res, err := op()
		if err != nil && !IsUnavailable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(attempts))

	if err != nil && IsUnavailable(err) && !errors.Is(err, core.ErrStoreUnavailable) {
		return res, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return res, err
}
