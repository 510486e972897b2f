package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// RoomHandlers serves the room listing.
type RoomHandlers struct {
	bindings *core.Bindings
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(bindings *core.Bindings) *RoomHandlers {
	return &RoomHandlers{bindings: bindings}
}

// ListRooms returns every public room, sorted.
// GET /rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	rooms := h.bindings.Public()
	if rooms == nil {
		rooms = []string{}
	}
	c.JSON(http.StatusOK, proto.RoomsResponse{Rooms: rooms})
}
