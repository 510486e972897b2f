package http

import (
	"context"
	"errors"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/pubsub"
	"github.com/vovakirdan/wirechat-relay/internal/session"
	"github.com/vovakirdan/wirechat-relay/internal/utils"
)

const (
	// selectTimeout bounds how long a client may stay connected without choosing a room.
	selectTimeout = 30 * time.Second
	// writeTimeout bounds a single frame write to a stream client.
	writeTimeout = 10 * time.Second
)

// StreamHandler upgrades HTTP connections and pushes one room's broadcasts to each of them.
type StreamHandler struct {
	channel  session.Subscriber
	bindings *core.Bindings
	log      *zerolog.Logger
}

// NewStreamHandler builds a new WebSocket handler.
func NewStreamHandler(channel session.Subscriber, bindings *core.Bindings, logger *zerolog.Logger) stdhttp.Handler {
	return &StreamHandler{channel: channel, bindings: bindings, log: logger}
}

func (h *StreamHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	streamID := utils.NewID()
	logger := h.log.With().Str("stream_id", streamID).Logger()

	st := session.NewStream(h.channel, h.bindings, &logger)
	defer st.Close()

	ctx := r.Context()

	selectCtx, cancel := context.WithTimeout(ctx, selectTimeout)
	_, payload, err := conn.Read(selectCtx)
	cancel()
	if err != nil {
		logger.Debug().Err(err).Msg("no room selection")
		return
	}

	if err := st.Select(ctx, payload); err != nil {
		logger.Debug().Err(err).Msg("room selection rejected")
		conn.Close(closeStatusForError(err), errorResponse(err).Message)
		return
	}

	if err := h.write(ctx, conn, []byte(proto.StreamAck)); err != nil {
		logger.Debug().Err(err).Msg("write ack")
		return
	}

	logger.Info().Str("room", st.Room()).Msg("stream subscribed")

	// Nothing more is expected from the client; a data frame closes the connection.
	ctx = conn.CloseRead(ctx)

	for {
		d, err := st.Next(ctx)
		if err != nil {
			if errors.Is(err, pubsub.ErrDisconnected) {
				logger.Info().Str("room", st.Room()).Msg("stream dropped by channel")
				conn.Close(websocket.StatusGoingAway, "subscription dropped")
				return
			}
			logger.Debug().Err(err).Msg("stream ended")
			return
		}

		if err := h.write(ctx, conn, d.Payload); err != nil {
			logger.Debug().Err(err).Msg("write broadcast")
			return
		}
	}
}

func (h *StreamHandler) write(ctx context.Context, conn *websocket.Conn, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
