package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	logger := zerolog.Nop()

	cfg, resolved, err := Load(&logger, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("expected %s, got %s", path, resolved)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}

	if cfg.Addr != ":8080" || cfg.Queue.PollTimeout != 10*time.Second || cfg.Stream.Buffer != 64 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	bindings := cfg.Bindings()
	if len(bindings) != 1 || bindings[0].Name != "general" || !bindings[0].WebPost || bindings[0].Private {
		t.Fatalf("unexpected default bindings: %+v", bindings)
	}

	// The written file must load back to the same values.
	again, _, err := Load(&logger, path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.ReadHeaderTimeout != cfg.ReadHeaderTimeout || again.Retry != cfg.Retry {
		t.Fatalf("round trip mismatch: %+v vs %+v", again, cfg)
	}
}

func TestLoadRoomsAndPrivateRooms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
addr: ":9000"
rooms:
  linux: {}
  ops:
    web_post: false
  staff:
    web_post: true
private_rooms: [staff]
queue:
  max_backlog: 500
  poll_timeout: 3s
`)

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Fatalf("expected addr override, got %s", cfg.Addr)
	}
	if cfg.Queue.MaxBacklog != 500 || cfg.Queue.PollTimeout != 3*time.Second {
		t.Fatalf("unexpected queue config: %+v", cfg.Queue)
	}

	got := cfg.Bindings()
	if len(got) != 3 {
		t.Fatalf("expected the file's rooms to replace the defaults, got %+v", got)
	}

	byName := make(map[string]struct{ private, web bool })
	for _, b := range got {
		byName[b.Name] = struct{ private, web bool }{b.Private, b.WebPost}
	}
	if r := byName["linux"]; r.private || !r.web {
		t.Fatalf("linux: expected public with web post, got %+v", r)
	}
	if r := byName["ops"]; r.private || r.web {
		t.Fatalf("ops: expected web post disabled, got %+v", r)
	}
	if r := byName["staff"]; !r.private {
		t.Fatalf("staff: expected private, got %+v", r)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "redis:\n  addr: file:6379\n")
	t.Setenv("RELAY_REDIS_ADDR", "env:6379")
	t.Setenv("RELAY_LOG_LEVEL", "debug")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Redis.Addr != "env:6379" {
		t.Fatalf("expected env override, got %s", cfg.Redis.Addr)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected debug, got %s", cfg.LogLevel)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown backend", body: "tokens:\n  backend: etcd\n"},
		{name: "bad timezone", body: "timezone: Mars/Olympus\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			writeFile(t, path, tt.body)
			if _, _, err := Load(nil, path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestUpdateFromKeepsZeroValues(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Addr: ":1234"})

	if cfg.Addr != ":1234" {
		t.Fatalf("expected addr override, got %s", cfg.Addr)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Fatalf("zero override must not clear shutdown timeout")
	}
}

func TestWatchReportsRoomChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "rooms:\n  general:\n    web_post: true\n")

	changes := make(chan Config, 4)
	if err := Watch(nil, path, func(cfg Config) { changes <- cfg }); err != nil {
		t.Fatalf("watch: %v", err)
	}

	writeFile(t, path, "rooms:\n  general:\n    web_post: false\n  random:\n    web_post: true\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if len(cfg.Rooms) == 2 {
				return
			}
		case <-deadline:
			t.Fatalf("expected reload with two rooms")
		}
	}
}
