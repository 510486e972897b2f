package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/pubsub"
	"github.com/vovakirdan/wirechat-relay/internal/queue"
	"github.com/vovakirdan/wirechat-relay/internal/relay"
	"github.com/vovakirdan/wirechat-relay/internal/session"
	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/store/redisstore"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-relay/internal/transport/http"
)

// App wires together the relay core and the HTTP transport.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	redis           *redisstore.Client
	tokens          store.TokenStore
	bindings        *core.Bindings
	configPath      string
	log             *zerolog.Logger
}

// OpenStores connects to the shared store and opens the configured token backend.
// The caller closes both.
func OpenStores(ctx context.Context, cfg *config.Config) (*redisstore.Client, store.TokenStore, error) {
	rc, err := redisstore.New(ctx, redisstore.Options{
		Addr:       cfg.Redis.Addr,
		UnixSocket: cfg.Redis.UnixSocket,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		KeyPrefix:  cfg.Redis.KeyPrefix,
		Retry: redisstore.RetryPolicy{
			Attempts:        cfg.Retry.Attempts,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init redis: %w", err)
	}

	switch cfg.Tokens.Backend {
	case config.TokenBackendSQLite:
		st, err := sqlite.New(cfg.Tokens.DatabasePath)
		if err != nil {
			_ = rc.Close()
			return nil, nil, fmt.Errorf("init token store: %w", err)
		}
		return rc, st, nil
	default:
		return rc, redisstore.NewTokenStore(rc), nil
	}
}

// New constructs the application with provided configuration.
// configPath, when set, is watched for room binding changes.
func New(ctx context.Context, cfg *config.Config, configPath string, logger *zerolog.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	rc, tokens, err := OpenStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("redis", cfg.Redis.Addr).
		Str("token_backend", cfg.Tokens.Backend).
		Msg("stores initialized")

	bindings := core.NewBindings(cfg.Bindings())
	authService := auth.NewService(tokens, logger)
	channel := pubsub.New(rc, cfg.Stream.Buffer, logger)
	q := queue.New(rc, cfg.Queue.MaxBacklog, logger)
	r := relay.New(rc, bindings, channel, q, authService, logger, relay.Options{Location: loc})
	poller := session.NewPoller(q, bindings, cfg.Queue.PollTimeout, logger)

	gin.SetMode(gin.ReleaseMode)
	server := transporthttp.NewServer(transporthttp.Deps{
		Relay:    r,
		Poller:   poller,
		Auth:     authService,
		Channel:  channel,
		Bindings: bindings,
	}, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		redis:           rc,
		tokens:          tokens,
		bindings:        bindings,
		configPath:      configPath,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	if a.configPath != "" {
		err := config.Watch(a.log, a.configPath, func(cfg config.Config) {
			a.bindings.Replace(cfg.Bindings())
			a.log.Info().Strs("rooms", a.bindings.Public()).Msg("room bindings refreshed")
		})
		if err != nil {
			a.log.Warn().Err(err).Str("path", a.configPath).Msg("config watch disabled")
		}
	}

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("relay listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the token store and the shared store connection.
func (a *App) cleanup() {
	if a.tokens != nil {
		if err := a.tokens.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close token store")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
