// Package config loads the weft.yaml file shared by the CLI commands.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/weft/internal/logging"
)

// DefaultFile is the configuration file looked up in the working directory.
const DefaultFile = "weft.yaml"

// EnvEncryptionKey overrides encryption.key when set.
const EnvEncryptionKey = "WEFT_ENCRYPTION_KEY"

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Config is the content of weft.yaml.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Encryption EncryptionConfig `yaml:"encryption"`
	// PIIPatterns are regular expressions masked out of saved metadata.
	PIIPatterns []string `yaml:"pii_patterns"`
	Components  string   `yaml:"components"`
	Library     string   `yaml:"library"`
	LogLevel    string   `yaml:"log_level"`
	// LogFormat is text or json.
	LogFormat string `yaml:"log_format"`
}

type ServerConfig struct {
	Addr         string `yaml:"addr"`
	MCPAddr      string `yaml:"mcp_addr"`
	StreamBuffer int    `yaml:"stream_buffer"`
	Metrics      bool   `yaml:"metrics"`
}

type StoreConfig struct {
	Backend string        `yaml:"backend"`
	Path    string        `yaml:"path"`
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
	// GCInterval drives badger value log collection.
	GCInterval time.Duration `yaml:"gc_interval"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
	// Lock enables the distributed workspace lock.
	Lock    bool          `yaml:"lock"`
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// EncryptionConfig holds 32-byte keys, hex or base64 encoded.
type EncryptionConfig struct {
	Key          string   `yaml:"key"`
	FallbackKeys []string `yaml:"fallback_keys"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			MCPAddr:      ":8081",
			StreamBuffer: 64,
			Metrics:      true,
		},
		Store: StoreConfig{
			Backend: BackendMemory,
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Prefix:  "weft:workspace:",
				LockTTL: 30 * time.Second,
			},
			GCInterval: 5 * time.Minute,
		},
		Components: "components.yaml",
		Library:    "core",
		LogLevel:   "info",
		LogFormat:  string(logging.FormatText),
	}
}

// Load reads path on top of the defaults. A missing file is only an error
// when it was asked for explicitly; an empty path looks up DefaultFile.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if key := os.Getenv(EnvEncryptionKey); key != "" {
		cfg.Encryption.Key = key
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendRedis:
	case BackendFile, BackendSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s backend", c.Store.Backend)
		}
	case BackendBadger:
		// An empty path runs badger in memory.
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Redis.Lock && c.Store.Backend != BackendRedis && c.Store.Redis.Addr == "" {
		return errors.New("store.redis.addr is required for the distributed lock")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		return err
	}
	if _, _, err := c.EncryptionKeys(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return lvl, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// EncryptionKeys decodes the active and fallback keys. A nil active key
// means encryption is off.
func (c *Config) EncryptionKeys() (active []byte, fallback [][]byte, err error) {
	if c.Encryption.Key == "" {
		if len(c.Encryption.FallbackKeys) > 0 {
			return nil, nil, errors.New("encryption.fallback_keys requires encryption.key")
		}
		return nil, nil, nil
	}
	if active, err = decodeKey(c.Encryption.Key); err != nil {
		return nil, nil, fmt.Errorf("encryption.key: %w", err)
	}
	for i, k := range c.Encryption.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("encryption.fallback_keys[%d]: %w", i, err)
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if key, err := hex.DecodeString(s); err == nil && len(key) == 32 {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(s); err == nil && len(key) == 32 {
		return key, nil
	}
	return nil, errors.New("expected 32 bytes, hex or base64 encoded")
}
