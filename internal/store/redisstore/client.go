package redisstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures the connection to the shared store.
type Options struct {
	Addr       string
	UnixSocket string
	Password   string
	DB         int
	KeyPrefix  string
	Retry      RetryPolicy
}

// Client is the shared store handle used by queues, channels and token lookups.
// Subscriptions open their own connection through Redis().Subscribe and release it on close.
type Client struct {
	rdb    *redis.Client
	prefix string
	retry  RetryPolicy
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options) (*Client, error) {
	ropts := &redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		// Blocking reads (BLPOP, SUBSCRIBE) must stop as soon as the caller goes away.
		ContextTimeoutEnabled: true,
	}
	if opts.UnixSocket != "" {
		ropts.Network = "unix"
		ropts.Addr = opts.UnixSocket
	}

	c := NewFromClient(redis.NewClient(ropts), opts.KeyPrefix, opts.Retry)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := Retry(pingCtx, c.retry, func() (string, error) {
		return c.rdb.Ping(pingCtx).Result()
	}); err != nil {
		_ = c.rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return c, nil
}

// NewFromClient wraps an existing go-redis client.
// Useful for tests running against an in-process server.
func NewFromClient(rdb *redis.Client, keyPrefix string, retry RetryPolicy) *Client {
	return &Client{rdb: rdb, prefix: keyPrefix, retry: retry}
}

// Redis exposes the underlying go-redis client.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// RetryPolicy returns the retry policy for store-unavailable conditions.
func (c *Client) RetryPolicy() RetryPolicy {
	return c.retry
}

// Key builds a namespaced key, e.g. Key("queue", "tok1") -> "<prefix>queue:tok1".
func (c *Client) Key(parts ...string) string {
	return c.prefix + strings.Join(parts, ":")
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
