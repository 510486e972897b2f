package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/pubsub"
	"github.com/vovakirdan/wirechat-relay/internal/queue"
	"github.com/vovakirdan/wirechat-relay/internal/relay"
	"github.com/vovakirdan/wirechat-relay/internal/session"
	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/store/redisstore"
	"github.com/vovakirdan/wirechat-relay/internal/store/redisstore/redistest"
)

type testEnv struct {
	server  *httptest.Server
	queue   *queue.Queue
	channel *pubsub.Channel
	mr      *miniredis.Miniredis
}

// startTestServer runs the full router against an in-process Redis with rooms
// general (web posting on), readonly (web posting off) and secret (private),
// and tokens tok1/s1 ("bot") and tok2/s2 ("logger").
func startTestServer(t *testing.T, pollTimeout time.Duration) *testEnv {
	t.Helper()

	gin.SetMode(gin.TestMode)

	c, mr := redistest.New(t)
	tokens := redisstore.NewTokenStore(c)
	for _, tok := range []store.Token{
		{ID: "tok1", Secret: "s1", Name: "bot"},
		{ID: "tok2", Secret: "s2", Name: "logger"},
	} {
		if err := tokens.PutToken(context.Background(), tok); err != nil {
			t.Fatalf("put token: %v", err)
		}
	}

	bindings := core.NewBindings([]core.RoomBinding{
		{Name: "general", WebPost: true},
		{Name: "readonly", WebPost: false},
		{Name: "secret", Private: true, WebPost: true},
	})

	disabledLogger := zerolog.New(nil)

	authService := auth.NewService(tokens, &disabledLogger)
	ch := pubsub.New(c, 0, &disabledLogger)
	q := queue.New(c, 0, &disabledLogger)
	r := relay.New(c, bindings, ch, q, authService, &disabledLogger, relay.Options{})

	router := NewRouter(Deps{
		Relay:    r,
		Poller:   session.NewPoller(q, bindings, pollTimeout, &disabledLogger),
		Auth:     authService,
		Channel:  ch,
		Bindings: bindings,
	}, &disabledLogger)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, queue: q, channel: ch, mr: mr}
}
