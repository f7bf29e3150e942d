// Package config holds the process-wide settings for aigen: defaults, an
// optional TOML file and AIGEN_* environment overrides, applied in that order.
// Command-line flags are applied on top by cmd/aigen.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ravi-parthasarathy/aigen/pkg/chat"
	"github.com/ravi-parthasarathy/aigen/pkg/llm"
)

// Cache backends.
const (
	CacheFile  = "file"
	CacheRedis = "redis"
)

// ChatConfig configures ChatCall nodes.
type ChatConfig struct {
	DefaultModel  string `toml:"default_model"`
	DefaultRole   string `toml:"default_role"`
	MaxTokens     int    `toml:"max_tokens"`
	MaxImageBytes int64  `toml:"max_image_bytes"`
	Mock          bool   `toml:"mock"`
	MockReply     string `toml:"mock_reply"`
}

// CacheConfig selects where chat sessions cache their history.
type CacheConfig struct {
	Backend     string   `toml:"backend"` // "file" or "redis"
	Dir         string   `toml:"dir"`
	RedisAddr   string   `toml:"redis_addr"`
	RedisPrefix string   `toml:"redis_prefix"`
	RedisTTL    Duration `toml:"redis_ttl"`
}

// ServerConfig configures `aigen serve`.
type ServerConfig struct {
	Addr             string   `toml:"addr"`
	AllowedOrigins   []string `toml:"allowed_origins"`
	BatchConcurrency int      `toml:"batch_concurrency"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// Config is resolved once at startup and passed down.
type Config struct {
	Chat       ChatConfig   `toml:"chat"`
	Cache      CacheConfig  `toml:"cache"`
	Server     ServerConfig `toml:"server"`
	Log        LogConfig    `toml:"log"`
	Checkpoint string       `toml:"checkpoint"`
}

// Duration is a time.Duration written as a string ("1h30m") in TOML.
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Chat: ChatConfig{
			DefaultModel: llm.DefaultModel,
			DefaultRole:  string(llm.DefaultRole),
			MaxTokens:    chat.DefaultMaxTokens,
			MockReply:    chat.MockReply,
		},
		Cache: CacheConfig{
			Backend:     CacheFile,
			Dir:         chat.DefaultCacheDir,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "aigen:history:",
		},
		Server: ServerConfig{
			Addr:             "127.0.0.1:8000",
			AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
			BatchConcurrency: 1,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load returns Default() overlaid with the TOML file at path (skipped when
// path is empty) and then with AIGEN_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config %s: %w", path, err)
			}
			return nil, fmt.Errorf("config %s: parse: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	str("AIGEN_MODEL", &c.Chat.DefaultModel)
	str("AIGEN_ROLE", &c.Chat.DefaultRole)
	str("AIGEN_MOCK_REPLY", &c.Chat.MockReply)
	str("AIGEN_CACHE_BACKEND", &c.Cache.Backend)
	str("AIGEN_CACHE_DIR", &c.Cache.Dir)
	str("AIGEN_REDIS_ADDR", &c.Cache.RedisAddr)
	str("AIGEN_SERVER_ADDR", &c.Server.Addr)
	str("AIGEN_LOG_LEVEL", &c.Log.Level)
	str("AIGEN_LOG_FORMAT", &c.Log.Format)
	str("AIGEN_CHECKPOINT", &c.Checkpoint)

	if v := os.Getenv("AIGEN_MOCK"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AIGEN_MOCK: %w", err)
		}
		c.Chat.Mock = b
	}
	if v := os.Getenv("AIGEN_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AIGEN_MAX_TOKENS: %w", err)
		}
		c.Chat.MaxTokens = n
	}
	if v := os.Getenv("AIGEN_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
	return nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if c.Chat.MaxTokens <= 0 {
		return fmt.Errorf("chat.max_tokens must be positive, got %d", c.Chat.MaxTokens)
	}
	if c.Chat.DefaultRole != "" && !llm.ValidRole(c.Chat.DefaultRole) {
		return fmt.Errorf("chat.default_role %q is not one of user, system, assistant", c.Chat.DefaultRole)
	}
	if c.Chat.DefaultModel != "" {
		if _, _, err := llm.ParseModelID(c.Chat.DefaultModel); err != nil {
			return fmt.Errorf("chat.default_model: %w", err)
		}
	}
	switch c.Cache.Backend {
	case CacheFile, CacheRedis:
	default:
		return fmt.Errorf("cache.backend must be %q or %q, got %q", CacheFile, CacheRedis, c.Cache.Backend)
	}
	if c.Server.BatchConcurrency < 1 {
		return fmt.Errorf("server.batch_concurrency must be at least 1, got %d", c.Server.BatchConcurrency)
	}
	return nil
}
