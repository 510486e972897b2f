package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/relay"
	"github.com/vovakirdan/wirechat-relay/internal/session"
)

// MessageHandlers provides the posting and long-polling endpoints.
type MessageHandlers struct {
	relay       *relay.Relay
	poller      *session.Poller
	authService *auth.Service
	bindings    *core.Bindings
	log         *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(
	r *relay.Relay,
	poller *session.Poller,
	authService *auth.Service,
	bindings *core.Bindings,
	logger *zerolog.Logger,
) *MessageHandlers {
	return &MessageHandlers{
		relay:       r,
		poller:      poller,
		authService: authService,
		bindings:    bindings,
		log:         logger,
	}
}

// WebPost handles an anonymous post from the web form.
// The room and its web flag are checked before the body is read.
// POST /messages/:room/
func (h *MessageHandlers) WebPost(c *gin.Context) {
	room := c.Param("room")
	binding, err := h.bindings.Lookup(room)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	if !binding.WebPost {
		writeError(c, h.log, core.ErrPostingDisabled)
		return
	}

	var req proto.WebPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid web post body")
		writeError(c, h.log, core.ErrMalformedRequest)
		return
	}

	msg, err := h.relay.Publish(c.Request.Context(), relay.Post{
		Producer: relay.ProducerWeb,
		Room:     room,
		Sender:   req.Nickname,
		Content:  req.Content,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, proto.PostResponse{Status: "OK", Message: msg})
}

// APIPost handles a post from an authenticated API client.
// Credentials are checked after the room so unknown rooms report 404 to anyone.
// POST /api/messages/:room/
func (h *MessageHandlers) APIPost(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, proto.ErrorResponse{
			Error:   core.ErrCodeMalformedRequest,
			Message: "Cannot handle empty request",
		})
		return
	}

	var req proto.APIPostRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.log.Debug().Err(err).Msg("invalid api post body")
		writeError(c, h.log, core.ErrMalformedRequest)
		return
	}

	room := c.Param("room")
	if _, err := h.bindings.Lookup(room); err != nil {
		writeError(c, h.log, err)
		return
	}

	ident, ok := resolveIdentity(c, h.authService, h.log)
	if !ok {
		return
	}

	msg, err := h.relay.Publish(c.Request.Context(), relay.Post{
		Producer: relay.ProducerAPI,
		Room:     room,
		Sender:   req.Sender,
		Content:  req.Content,
		Identity: ident,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, proto.PostResponse{Status: "OK", Message: msg})
}

// Poll long-polls the caller's durable queue.
// GET /api/messages?room=
func (h *MessageHandlers) Poll(c *gin.Context) {
	ident, ok := identityFrom(c)
	if !ok {
		h.log.Error().Msg("identity not found in context")
		c.String(http.StatusForbidden, invalidTokenBody)
		return
	}

	msgs, err := h.poller.Poll(c.Request.Context(), ident.TokenID, c.Query("room"))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// The client went away mid-wait; nobody is left to answer.
			h.log.Debug().Str("token_id", ident.TokenID).Msg("poll abandoned by client")
			c.Abort()
			return
		}
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, proto.NewPollResponse(msgs))
}
