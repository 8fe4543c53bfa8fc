package config

import (
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "weft.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
store:
  backend: redis
  ttl: 1h
  redis:
    addr: "redis:6379"
    lock: true
log_level: debug
pii_patterns: ["\\d{3}-\\d{2}-\\d{4}"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, ":8081", cfg.Server.MCPAddr, "unset keys keep their default")
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, time.Hour, cfg.Store.TTL)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	assert.True(t, cfg.Store.Redis.Lock)
	assert.Equal(t, 30*time.Second, cfg.Store.Redis.LockTTL)
	assert.Len(t, cfg.PIIPatterns, 1)

	lvl, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestLoad_Missing(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)

	_, err = Load("nope.yaml")
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"backend":    "store:\n  backend: etcd\n",
		"file path":  "store:\n  backend: file\n",
		"log level":  "log_level: loud\n",
		"log format": "log_format: xml\n",
		"key":        "encryption:\n  key: short\n",
		"fallback":   "encryption:\n  fallback_keys: [abc]\n",
		"yaml":       "server: [",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestEncryptionKeys(t *testing.T) {
	hexKey := strings.Repeat("ab", 32)
	b64Key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))

	cfg := Default()
	cfg.Encryption = EncryptionConfig{Key: hexKey, FallbackKeys: []string{b64Key}}
	active, fallback, err := cfg.EncryptionKeys()
	require.NoError(t, err)
	assert.Len(t, active, 32)
	require.Len(t, fallback, 1)
	assert.Equal(t, []byte(strings.Repeat("k", 32)), fallback[0])

	cfg.Encryption = EncryptionConfig{}
	active, _, err = cfg.EncryptionKeys()
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestLoad_EnvKey(t *testing.T) {
	t.Setenv(EnvEncryptionKey, strings.Repeat("01", 32))
	cfg, err := Load(writeConfig(t, "store:\n  backend: memory\n"))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("01", 32), cfg.Encryption.Key)
}

func TestLoad_SampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "examples", "config", "weft.yaml"))
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 128, cfg.Server.StreamBuffer)
}
