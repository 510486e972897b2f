package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

func dialStream(t *testing.T, ctx context.Context, env *testEnv) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(env.server.URL, "http", "ws", 1) + "/msg_stream"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func TestStreamReceivesWebPost(t *testing.T) {
	env := startTestServer(t, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialStream(t, ctx, env)
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"room":"general"}`)); err != nil {
		t.Fatalf("select room: %v", err)
	}

	_, ack, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if string(ack) != proto.StreamAck {
		t.Fatalf("expected OK, got %q", ack)
	}

	resp, err := http.Post(env.server.URL+"/messages/general/", "application/json",
		bytes.NewBufferString(`{"content":"hello","nickname":"alice"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("post failed: %d", resp.StatusCode)
	}

	typ, payload, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("expected text frame, got %v", typ)
	}

	var msg core.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("broadcast is not a message: %v", err)
	}
	if msg.Content != "hello" || msg.Sender != "alice" || msg.Room != "general" {
		t.Fatalf("unexpected broadcast: %+v", msg)
	}
}

func TestStreamClosesOnBadSelection(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "unknown room", payload: `{"room":"ghost"}`},
		{name: "private room", payload: `{"room":"secret"}`},
		{name: "malformed", payload: `general`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := startTestServer(t, time.Second)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			conn := dialStream(t, ctx, env)
			if err := conn.Write(ctx, websocket.MessageText, []byte(tt.payload)); err != nil {
				t.Fatalf("write: %v", err)
			}

			_, data, err := conn.Read(ctx)
			if err == nil {
				t.Fatalf("expected close, got frame %q", data)
			}
			if status := websocket.CloseStatus(err); status != websocket.StatusPolicyViolation {
				t.Fatalf("expected policy violation close, got %v (%v)", status, err)
			}
		})
	}
}

func TestStreamIsScopedToRoom(t *testing.T) {
	env := startTestServer(t, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialStream(t, ctx, env)
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"room":"readonly"}`)); err != nil {
		t.Fatalf("select room: %v", err)
	}
	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("read ack: %v", err)
	}

	for _, room := range []string{"general", "readonly"} {
		req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/api/messages/"+room+"/",
			bytes.NewBufferString(`{"content":"to `+room+`"}`))
		req.Header.Set("X-TOKEN-ID", "tok1")
		req.Header.Set("X-TOKEN-KEY", "s1")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
	}

	_, payload, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	var msg core.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Room != "readonly" || msg.Content != "to readonly" {
		t.Fatalf("expected only readonly traffic, got %+v", msg)
	}
}
