package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Origin tags the producer a message came from.
type Origin string

const (
	// OriginWeb marks messages posted through the web form.
	OriginWeb Origin = "web"
	// OriginAPI prefixes messages posted by authenticated API clients.
	OriginAPI Origin = "api"
)

// APIOrigin returns the origin tag for an API client, e.g. "api-mybot".
func APIOrigin(appName string) Origin {
	return Origin(string(OriginAPI) + "-" + appName)
}

// IsAPI reports whether the origin belongs to an API client.
func (o Origin) IsAPI() bool {
	return o == OriginAPI || strings.HasPrefix(string(o), string(OriginAPI)+"-")
}

// MessageType classifies message content.
type MessageType string

const (
	// MessageText is plain chat text.
	MessageText MessageType = "text"
	// MessageCommand is content addressed to the bot layer.
	MessageCommand MessageType = "command"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// Message is the immutable record relayed between producers and consumers.
// Its JSON form is the unit carried over pub/sub channels and durable queues.
type Message struct {
	Origin    Origin      `json:"origin"`
	Sender    string      `json:"sender"`
	Room      string      `json:"room"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	Date      string      `json:"date"`
	Time      string      `json:"time"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessage stamps a message at ts, rendering date and time in loc.
func NewMessage(origin Origin, sender, room, content string, mtype MessageType, ts time.Time, loc *time.Location) Message {
	if loc == nil {
		loc = time.UTC
	}
	local := ts.In(loc)
	return Message{
		Origin:    origin,
		Sender:    sender,
		Room:      room,
		Content:   content,
		Type:      mtype,
		Date:      local.Format(dateLayout),
		Time:      local.Format(timeLayout),
		Timestamp: local,
	}
}

// Encode returns the wire form of the message.
func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// DecodeMessage parses the wire form produced by Encode.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}
