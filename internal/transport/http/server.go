package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/relay"
	"github.com/vovakirdan/wirechat-relay/internal/session"
)

// Deps are the relay components served over HTTP.
type Deps struct {
	Relay    *relay.Relay
	Poller   *session.Poller
	Auth     *auth.Service
	Channel  session.Subscriber
	Bindings *core.Bindings
}

// NewServer builds an HTTP server with all relay routes.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(deps, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter registers the relay routes on a gin engine.
func NewRouter(deps Deps, logger *zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	messages := NewMessageHandlers(deps.Relay, deps.Poller, deps.Auth, deps.Bindings, logger)
	rooms := NewRoomHandlers(deps.Bindings)

	router.GET("/health", healthHandler)
	router.GET("/rooms", rooms.ListRooms)
	router.POST("/messages/:room/", messages.WebPost)
	router.GET("/msg_stream", gin.WrapH(NewStreamHandler(deps.Channel, deps.Bindings, logger)))

	api := router.Group("/api")
	api.GET("/messages", TokenAuthMiddleware(deps.Auth, logger), messages.Poll)
	api.POST("/messages/:room/", messages.APIPost)

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
