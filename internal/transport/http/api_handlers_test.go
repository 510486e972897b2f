package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

func doRequest(t *testing.T, method, url, body string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func tokenHeaders(id, key string) map[string]string {
	return map[string]string{"X-TOKEN-ID": id, "X-TOKEN-KEY": key}
}

func TestHealthEndpoint(t *testing.T) {
	env := startTestServer(t, time.Second)

	resp, body := doRequest(t, http.MethodGet, env.server.URL+"/health", "", nil)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("unexpected health reply: %d %q", resp.StatusCode, body)
	}
}

func TestListRooms(t *testing.T) {
	env := startTestServer(t, time.Second)

	resp, body := doRequest(t, http.MethodGet, env.server.URL+"/rooms", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var rooms proto.RoomsResponse
	if err := json.Unmarshal(body, &rooms); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rooms.Rooms) != 2 || rooms.Rooms[0] != "general" || rooms.Rooms[1] != "readonly" {
		t.Fatalf("expected public rooms only, got %v", rooms.Rooms)
	}
}

func TestWebPostStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		room   string
		body   string
		status int
		code   string
	}{
		{name: "accepted", room: "general", body: `{"content":"hello","nickname":"alice"}`, status: http.StatusOK},
		{name: "unknown room", room: "ghost", body: `{"content":"hello","nickname":"alice"}`, status: http.StatusNotFound, code: core.ErrCodeRoomNotFound},
		{name: "private room", room: "secret", body: `{"content":"hello","nickname":"alice"}`, status: http.StatusNotFound, code: core.ErrCodeRoomNotFound},
		{name: "web post disabled", room: "readonly", body: `{"content":"hello","nickname":"alice"}`, status: http.StatusForbidden, code: core.ErrCodePostingDisabled},
		{name: "web post disabled with bad json", room: "readonly", body: `{"content":`, status: http.StatusForbidden, code: core.ErrCodePostingDisabled},
		{name: "bad json", room: "general", body: `{"content":`, status: http.StatusBadRequest, code: core.ErrCodeMalformedRequest},
		{name: "empty content", room: "general", body: `{"content":"","nickname":"alice"}`, status: http.StatusBadRequest, code: core.ErrCodeEmptyContent},
		{name: "missing nickname", room: "general", body: `{"content":"hello"}`, status: http.StatusBadRequest, code: core.ErrCodeInvalidSender},
		{name: "symbol nickname", room: "general", body: `{"content":"hello","nickname":"#bot"}`, status: http.StatusBadRequest, code: core.ErrCodeInvalidSender},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := startTestServer(t, time.Second)

			resp, body := doRequest(t, http.MethodPost, env.server.URL+"/messages/"+tt.room+"/", tt.body, nil)
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, resp.StatusCode, body)
			}
			if tt.code == "" {
				return
			}

			var errResp proto.ErrorResponse
			if err := json.Unmarshal(body, &errResp); err != nil {
				t.Fatalf("unmarshal error body: %v", err)
			}
			if errResp.Error != tt.code {
				t.Fatalf("expected code %s, got %s", tt.code, errResp.Error)
			}
		})
	}
}

func TestWebPostThenPoll(t *testing.T) {
	env := startTestServer(t, 5*time.Second)

	resp, body := doRequest(t, http.MethodPost, env.server.URL+"/messages/general/", `{"content":"hello","nickname":"alice"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("post failed: %d %s", resp.StatusCode, body)
	}

	resp, body = doRequest(t, http.MethodGet, env.server.URL+"/api/messages?room=general", "", tokenHeaders("tok1", "s1"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("poll failed: %d %s", resp.StatusCode, body)
	}

	var poll proto.PollResponse
	if err := json.Unmarshal(body, &poll); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(poll.Messages) != 1 {
		t.Fatalf("expected one message, got %+v", poll.Messages)
	}
	m := poll.Messages[0]
	if m.Content != "hello" || m.Room != "general" || m.Sender != "alice" || m.Origin != core.OriginWeb {
		t.Fatalf("unexpected message: %+v", m)
	}
}

func TestPollWaitsForLatePost(t *testing.T) {
	env := startTestServer(t, 5*time.Second)

	time.AfterFunc(300*time.Millisecond, func() {
		req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/messages/general/",
			bytes.NewBufferString(`{"content":"late","nickname":"alice"}`))
		req.Header.Set("Content-Type", "application/json")
		if resp, err := http.DefaultClient.Do(req); err == nil {
			resp.Body.Close()
		}
	})

	// Credentials in the query string are accepted too.
	resp, body := doRequest(t, http.MethodGet, env.server.URL+"/api/messages?id=tok2&key=s2", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("poll failed: %d %s", resp.StatusCode, body)
	}

	var poll proto.PollResponse
	if err := json.Unmarshal(body, &poll); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(poll.Messages) != 1 || poll.Messages[0].Content != "late" {
		t.Fatalf("expected the late message, got %+v", poll.Messages)
	}
}

func TestPollTimeoutReturnsEmptyList(t *testing.T) {
	env := startTestServer(t, time.Second)

	resp, body := doRequest(t, http.MethodGet, env.server.URL+"/api/messages", "", tokenHeaders("tok1", "s1"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if string(bytes.TrimSpace(body)) != `{"messages":[]}` {
		t.Fatalf("expected empty list, got %s", body)
	}
}

func TestPollRejectsInvalidToken(t *testing.T) {
	env := startTestServer(t, time.Second)

	for _, headers := range []map[string]string{
		nil,
		tokenHeaders("tok1", "wrong"),
		tokenHeaders("nobody", "s1"),
	} {
		resp, body := doRequest(t, http.MethodGet, env.server.URL+"/api/messages", "", headers)
		if resp.StatusCode != http.StatusForbidden || string(body) != invalidTokenBody {
			t.Fatalf("expected 403 Invalid Token, got %d %q", resp.StatusCode, body)
		}
	}
}

func TestPollRejectsPrivateRoom(t *testing.T) {
	env := startTestServer(t, time.Second)

	resp, _ := doRequest(t, http.MethodGet, env.server.URL+"/api/messages?room=secret", "", tokenHeaders("tok1", "s1"))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAPIPost(t *testing.T) {
	env := startTestServer(t, time.Second)

	resp, body := doRequest(t, http.MethodPost, env.server.URL+"/api/messages/readonly/", `{"content":"/deploy"}`, tokenHeaders("tok1", "s1"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("api post failed: %d %s", resp.StatusCode, body)
	}

	var posted proto.PostResponse
	if err := json.Unmarshal(body, &posted); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if posted.Message.Origin != "api-bot" || posted.Message.Sender != "bot" || posted.Message.Type != core.MessageCommand {
		t.Fatalf("unexpected message: %+v", posted.Message)
	}

	msgs, err := env.queue.Drain(context.Background(), "tok2")
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "/deploy" {
		t.Fatalf("expected message in tok2 queue, got %+v", msgs)
	}
}

func TestAPIPostRejections(t *testing.T) {
	tests := []struct {
		name    string
		room    string
		body    string
		headers map[string]string
		status  int
	}{
		{name: "empty body", room: "general", body: "", headers: tokenHeaders("tok1", "s1"), status: http.StatusBadRequest},
		{name: "bad json", room: "general", body: `not json`, headers: tokenHeaders("tok1", "s1"), status: http.StatusBadRequest},
		{name: "unknown room before auth", room: "ghost", body: `{"content":"x"}`, headers: nil, status: http.StatusNotFound},
		{name: "invalid secret", room: "general", body: `{"content":"x"}`, headers: tokenHeaders("tok1", "nope"), status: http.StatusForbidden},
		{name: "empty content", room: "general", body: `{"content":""}`, headers: tokenHeaders("tok1", "s1"), status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := startTestServer(t, time.Second)

			resp, body := doRequest(t, http.MethodPost, env.server.URL+"/api/messages/"+tt.room+"/", tt.body, tt.headers)
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, resp.StatusCode, body)
			}

			n, err := env.queue.Pending(context.Background(), "tok2")
			if err != nil {
				t.Fatalf("pending: %v", err)
			}
			if n != 0 {
				t.Fatalf("rejected post must not be enqueued, got %d", n)
			}
		})
	}
}

func TestStoreUnavailableIs503(t *testing.T) {
	env := startTestServer(t, time.Second)
	env.mr.Close()

	resp, body := doRequest(t, http.MethodPost, env.server.URL+"/messages/general/", `{"content":"hello","nickname":"alice"}`, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", resp.StatusCode, body)
	}
}
