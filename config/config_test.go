package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	assert.Equal(t, err, nil)

	assert.Equal(t, cfg.Nats.StreamName, "CHAT")
	assert.Equal(t, cfg.RetryInterval, 5*time.Second)
	assert.Equal(t, cfg.PongWait, 60*time.Second)
	assert.Equal(t, cfg.PingPeriod, 54*time.Second)
	assert.Equal(t, cfg.Session.EventBuffer, 256)
	assert.Equal(t, cfg.Relay.Enabled, false)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.yaml")
	content := []byte("nats:\n  url: nats://backbone:4222\nsession:\n  retry_interval_ms: 250\nrelay:\n  enabled: true\n")
	assert.Equal(t, os.WriteFile(path, content, 0o600), nil)

	t.Setenv("CHAT_SERVER_ADDR", ":9999")

	cfg, err := Load(path)
	assert.Equal(t, err, nil)
	assert.Equal(t, cfg.Nats.URL, "nats://backbone:4222")
	assert.Equal(t, cfg.RetryInterval, 250*time.Millisecond)
	assert.Equal(t, cfg.Relay.Enabled, true)
	assert.Equal(t, cfg.Server.Addr, ":9999")
}

func TestLoadRejectsBadRetryInterval(t *testing.T) {
	t.Setenv("CHAT_SESSION_RETRY_INTERVAL_MS", "0")

	_, err := Load("")
	assert.NotEqual(t, err, nil)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NotEqual(t, err, nil)
}
