package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgconfig "github.com/weiawesome/wes-io-chat/pkg/config"
)

func TestLoadDefaults(t *testing.T) {
	v, err := pkgconfig.Load(t.TempDir(), "missing")
	require.NoError(t, err)

	cfg, err := load(v)
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "redis", cfg.PubSub.Driver)
	assert.Equal(t, 54*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, 256, cfg.WebSocket.SendBuffer)
	assert.EqualValues(t, 8192, cfg.WebSocket.MaxMessageSize)
	assert.Equal(t, 3, cfg.Assistant.MaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.Assistant.VisibilityTimeout)
	assert.Equal(t, "Generating a response...", cfg.Assistant.Placeholder)
	assert.Equal(t, 20, cfg.LLM.MemoryWindow)
	assert.Equal(t, 168*time.Hour, cfg.LLM.MemoryTTL)
	assert.Equal(t, DefaultSystemPrompt, cfg.LLM.SystemPrompt)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Search.Enabled)
	assert.Equal(t, []string{"http://localhost:9200"}, cfg.Search.Addresses)
	assert.Equal(t, "chat-rooms", cfg.Search.Index)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("server:\n  port: 9000\nassistant:\n  timeout: 5s\npubsub:\n  driver: kafka\n  kafka:\n    brokers: k1:9092\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("REDIS_ADDRESS", "redis:6380")

	v, err := pkgconfig.Load(dir, "config")
	require.NoError(t, err)
	cfg, err := load(v)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Assistant.Timeout)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)

	bus := cfg.PubSubBus()
	assert.Equal(t, "kafka", bus.Driver)
	assert.Equal(t, "k1:9092", bus.Kafka.Brokers)
	assert.Equal(t, "redis:6380", bus.Redis.Address)
}
