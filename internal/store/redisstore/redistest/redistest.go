// Package redistest starts an in-process Redis for tests.
package redistest

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vovakirdan/wirechat-relay/internal/store/redisstore"
)

// New starts a miniredis server and returns a store client connected to it.
// Both are closed when the test ends.
func New(t testing.TB) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr:                  mr.Addr(),
		ContextTimeoutEnabled: true,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	retry := redisstore.RetryPolicy{Attempts: 2, InitialInterval: 10 * time.Millisecond}
	return redisstore.NewFromClient(rdb, "", retry), mr
}
