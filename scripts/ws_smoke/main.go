package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

// run subscribes to a room, posts one message through the web form and waits for it on
// the stream. With -token-id/-token-key it then long-polls the token's queue for it too.
func run() error {
	base := flag.String("base", "http://localhost:8080", "relay base URL")
	nick := flag.String("nick", "tester", "nickname for the web post")
	room := flag.String("room", "general", "room name")
	text := flag.String("text", "hello from smoke test", "message text to send")
	tokenID := flag.String("token-id", "", "API token id for the long-poll check")
	tokenKey := flag.String("token-key", "", "API token secret for the long-poll check")
	timeout := flag.Duration("timeout", 15*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	streamURL := strings.Replace(strings.TrimSuffix(*base, "/"), "http", "ws", 1) + "/msg_stream"
	conn, _, err := websocket.Dial(ctx, streamURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := wsjson.Write(ctx, conn, proto.RoomSelection{Room: *room}); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	_, ack, err := conn.Read(ctx)
	if err != nil {
		return fmt.Errorf("read ack: %w", err)
	}
	fmt.Printf("Subscribed: %s\n", ack)

	payload, err := json.Marshal(proto.WebPostRequest{Content: *text, Nickname: *nick})
	if err != nil {
		return fmt.Errorf("marshal post: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(*base, "/")+"/messages/"+*room+"/", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("post: status %d", resp.StatusCode)
	}

	for {
		var msg core.Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		fmt.Printf("Received broadcast: room=%s sender=%s content=%q\n", msg.Room, msg.Sender, msg.Content)
		if msg.Content == *text && msg.Sender == *nick {
			break
		}
	}

	if *tokenID == "" {
		return nil
	}

	pollReq, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(*base, "/")+"/api/messages?room="+*room, nil)
	if err != nil {
		return err
	}
	pollReq.Header.Set("X-TOKEN-ID", *tokenID)
	pollReq.Header.Set("X-TOKEN-KEY", *tokenKey)
	pollResp, err := http.DefaultClient.Do(pollReq)
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	defer pollResp.Body.Close()
	if pollResp.StatusCode != http.StatusOK {
		return fmt.Errorf("poll: status %d", pollResp.StatusCode)
	}

	var poll proto.PollResponse
	if err := json.NewDecoder(pollResp.Body).Decode(&poll); err != nil {
		return fmt.Errorf("decode poll: %w", err)
	}
	fmt.Printf("Polled %d message(s)\n", len(poll.Messages))
	for _, m := range poll.Messages {
		if m.Content == *text {
			return nil
		}
	}
	return fmt.Errorf("posted message missing from poll response")
}
