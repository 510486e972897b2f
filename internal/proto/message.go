// Package proto holds the wire shapes exchanged with streaming, polling and posting clients.
// Broadcast and queued messages themselves travel as core.Message JSON.
package proto

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/vovakirdan/wirechat-relay/internal/core"
)

// StreamAck is sent once a streaming client is subscribed.
const StreamAck = "OK"

// RoomSelection is the first frame a streaming client sends.
type RoomSelection struct {
	Room string `json:"room"`
}

// ParseRoomSelection decodes a room-selection frame.
func ParseRoomSelection(data []byte) (RoomSelection, error) {
	var sel RoomSelection
	if err := json.Unmarshal(data, &sel); err != nil {
		return RoomSelection{}, err
	}
	sel.Room = strings.TrimSpace(sel.Room)
	if sel.Room == "" {
		return RoomSelection{}, errors.New("missing room")
	}
	return sel, nil
}

// PollResponse is the long-poll reply. Messages is never null on the wire.
type PollResponse struct {
	Messages []core.Message `json:"messages"`
}

// NewPollResponse wraps msgs, normalizing nil to an empty list.
func NewPollResponse(msgs []core.Message) PollResponse {
	if msgs == nil {
		msgs = []core.Message{}
	}
	return PollResponse{Messages: msgs}
}

// WebPostRequest is the body of an anonymous web post.
type WebPostRequest struct {
	Content  string `json:"content"`
	Nickname string `json:"nickname"`
}

// APIPostRequest is the body of an API client post. Sender overrides the token name.
type APIPostRequest struct {
	Content string `json:"content"`
	Sender  string `json:"sender,omitempty"`
}

// PostResponse acknowledges an accepted post.
type PostResponse struct {
	Status  string       `json:"status"`
	Message core.Message `json:"message"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RoomsResponse lists the public rooms.
type RoomsResponse struct {
	Rooms []string `json:"rooms"`
}
