package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "RELAY"
	envConfigDefaultPath = "RELAY_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
//
// Viper folds map keys to lower case, so room ids in the file must be lower case.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	v := newViper()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, Default()); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return Default(), configPath, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return cfg, configPath, err
	}

	return cfg, configPath, nil
}

// Watch re-reads the config file whenever it changes and hands every valid result to onChange.
// Invalid edits are logged and skipped, leaving the previous configuration in effect.
func Watch(logger *zerolog.Logger, path string, onChange func(Config)) error {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			if logger != nil {
				logger.Warn().Err(err).Str("path", e.Name).Msg("ignoring invalid config change")
			}
			return
		}
		if logger != nil {
			logger.Info().Str("path", e.Name).Str("op", e.Op.String()).Msg("config reloaded")
		}
		onChange(cfg)
	})
	v.WatchConfig()

	return nil
}

func newViper() *viper.Viper {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("read_header_timeout", cfg.ReadHeaderTimeout)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("timezone", cfg.Timezone)
	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.unix_socket", cfg.Redis.UnixSocket)
	v.SetDefault("redis.password", cfg.Redis.Password)
	v.SetDefault("redis.db", cfg.Redis.DB)
	v.SetDefault("redis.key_prefix", cfg.Redis.KeyPrefix)
	v.SetDefault("queue.max_backlog", cfg.Queue.MaxBacklog)
	v.SetDefault("queue.poll_timeout", cfg.Queue.PollTimeout)
	v.SetDefault("stream.buffer", cfg.Stream.Buffer)
	v.SetDefault("retry.attempts", cfg.Retry.Attempts)
	v.SetDefault("retry.initial_interval", cfg.Retry.InitialInterval)
	v.SetDefault("retry.max_interval", cfg.Retry.MaxInterval)
	v.SetDefault("tokens.backend", cfg.Tokens.Backend)
	v.SetDefault("tokens.database_path", cfg.Tokens.DatabasePath)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func decode(v *viper.Viper) (Config, error) {
	cfg := Default()
	// A room table in the file replaces the default one instead of merging into it.
	if v.IsSet("rooms") {
		cfg.Rooms = nil
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	// Rooms bound with an empty body ("general: {}") carry no leaf keys and are
	// dropped by Unmarshal; restore them from the raw table.
	if raw, ok := v.Get("rooms").(map[string]any); ok {
		if cfg.Rooms == nil {
			cfg.Rooms = make(map[string]RoomConfig, len(raw))
		}
		for name := range raw {
			if _, ok := cfg.Rooms[name]; !ok {
				cfg.Rooms[name] = RoomConfig{}
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
