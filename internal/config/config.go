package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/core"
)

// Config holds relay configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`
	Timezone          string        `mapstructure:"timezone" yaml:"timezone"`

	Redis        RedisConfig           `mapstructure:"redis" yaml:"redis"`
	Rooms        map[string]RoomConfig `mapstructure:"rooms" yaml:"rooms"`
	PrivateRooms []string              `mapstructure:"private_rooms" yaml:"private_rooms"`
	Queue        QueueConfig           `mapstructure:"queue" yaml:"queue"`
	Stream       StreamConfig          `mapstructure:"stream" yaml:"stream"`
	Retry        RetryConfig           `mapstructure:"retry" yaml:"retry"`
	Tokens       TokensConfig          `mapstructure:"tokens" yaml:"tokens"`
}

// RedisConfig locates the shared store.
type RedisConfig struct {
	Addr       string `mapstructure:"addr" yaml:"addr"`
	UnixSocket string `mapstructure:"unix_socket" yaml:"unix_socket,omitempty"`
	Password   string `mapstructure:"password" yaml:"password,omitempty"`
	DB         int    `mapstructure:"db" yaml:"db"`
	KeyPrefix  string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`
}

// RoomConfig is one bound room. WebPost defaults to true when unset.
type RoomConfig struct {
	WebPost *bool `mapstructure:"web_post" yaml:"web_post,omitempty"`
}

// QueueConfig tunes the durable per-token queues.
type QueueConfig struct {
	MaxBacklog  int64         `mapstructure:"max_backlog" yaml:"max_backlog"`
	PollTimeout time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
}

// StreamConfig tunes push subscribers.
type StreamConfig struct {
	Buffer int `mapstructure:"buffer" yaml:"buffer"`
}

// RetryConfig bounds retries of store-unavailable conditions.
type RetryConfig struct {
	Attempts        uint          `mapstructure:"attempts" yaml:"attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
}

// TokensConfig selects where API tokens live.
type TokensConfig struct {
	Backend      string `mapstructure:"backend" yaml:"backend"`
	DatabasePath string `mapstructure:"database_path" yaml:"database_path,omitempty"`
}

// Token backends.
const (
	TokenBackendRedis  = "redis"
	TokenBackendSQLite = "sqlite"
)

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		Timezone:          "UTC",
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Rooms: map[string]RoomConfig{
			"general": {WebPost: boolPtr(true)},
		},
		Queue: QueueConfig{
			PollTimeout: 10 * time.Second,
		},
		Stream: StreamConfig{
			Buffer: 64,
		},
		Retry: RetryConfig{
			Attempts:        3,
			InitialInterval: 50 * time.Millisecond,
			MaxInterval:     time.Second,
		},
		Tokens: TokensConfig{
			Backend:      TokenBackendRedis,
			DatabasePath: "relay.db",
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.Redis.Addr != "" {
		c.Redis.Addr = other.Redis.Addr
	}
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	switch c.Tokens.Backend {
	case TokenBackendRedis, TokenBackendSQLite:
	default:
		return fmt.Errorf("unknown tokens.backend %q", c.Tokens.Backend)
	}
	if c.Tokens.Backend == TokenBackendSQLite && c.Tokens.DatabasePath == "" {
		return fmt.Errorf("tokens.database_path is required for the sqlite backend")
	}
	if c.Redis.Addr == "" && c.Redis.UnixSocket == "" {
		return fmt.Errorf("redis.addr or redis.unix_socket is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the timezone used to stamp messages.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Bindings converts the room table into core bindings, marking private rooms.
// Private rooms that are not bound are ignored.
func (c Config) Bindings() []core.RoomBinding {
	private := make(map[string]bool, len(c.PrivateRooms))
	for _, r := range c.PrivateRooms {
		private[r] = true
	}

	names := make([]string, 0, len(c.Rooms))
	for name := range c.Rooms {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]core.RoomBinding, 0, len(names))
	for _, name := range names {
		rc := c.Rooms[name]
		webPost := true
		if rc.WebPost != nil {
			webPost = *rc.WebPost
		}
		out = append(out, core.RoomBinding{
			Name:    name,
			Private: private[name],
			WebPost: webPost,
		})
	}
	return out
}

func boolPtr(b bool) *bool {
	return &b
}
