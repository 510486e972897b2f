package http

import (
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// invalidTokenBody is the plain-text reply to failed API authentication.
const invalidTokenBody = "Invalid Token"

func statusForError(err error) int {
	switch core.CodeOf(err) {
	case core.ErrCodeRoomNotFound:
		return http.StatusNotFound
	case core.ErrCodePostingDisabled, core.ErrCodeUnauthorized:
		return http.StatusForbidden
	case core.ErrCodeEmptyContent, core.ErrCodeInvalidSender, core.ErrCodeMalformedRequest:
		return http.StatusBadRequest
	case core.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(err error) proto.ErrorResponse {
	var ce *core.Error
	if errors.As(err, &ce) {
		return proto.ErrorResponse{Error: ce.Code, Message: ce.Message}
	}
	return proto.ErrorResponse{Error: "internal", Message: "internal server error"}
}

// writeError maps a relay error onto an HTTP reply. Unexpected errors are logged.
func writeError(c *gin.Context, logger *zerolog.Logger, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	} else {
		logger.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("request rejected")
	}
	c.JSON(status, errorResponse(err))
}

// closeStatusForError picks the close code sent to a stream client that is being dropped.
func closeStatusForError(err error) websocket.StatusCode {
	switch core.CodeOf(err) {
	case core.ErrCodeRoomNotFound, core.ErrCodeMalformedRequest:
		return websocket.StatusPolicyViolation
	case core.ErrCodeStoreUnavailable:
		return websocket.StatusTryAgainLater
	default:
		return websocket.StatusInternalError
	}
}
