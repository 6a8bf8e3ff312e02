package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
service:
  name: engine-test
storage:
  driver: sqlite
  path: /tmp/engine.db
brokers:
  - name: zerodha
    enabled: true
    api_key: key
    base_delay: 250ms
    max_attempts: 3
  - name: upstox
    enabled: false
pipeline:
  history_limit: 600
kafka:
  brokers: ["localhost:9092"]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "values.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "engine-test", cfg.Service.Name)
	assert.Equal(t, 600, cfg.Pipeline.HistoryLimit)
	assert.Equal(t, 50, cfg.Pipeline.FastEMA)
	assert.Equal(t, 200, cfg.Pipeline.SlowEMA)
	assert.Equal(t, "signals", cfg.Kafka.Topic)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)

	z, ok := cfg.Broker("zerodha")
	require.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, z.BaseDelay)
	assert.Equal(t, 3, z.MaxAttempts)
	assert.Equal(t, time.Minute, z.HealthInterval)
	assert.Equal(t, 20*time.Second, z.PingInterval)

	u, ok := cfg.Broker("upstox")
	require.True(t, ok)
	assert.False(t, u.Enabled)
	assert.Equal(t, 5, u.MaxAttempts)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(databaseDSN, "postgres://u:p@db:5432/engine")
	t.Setenv(tokenTelegramENV, "tg-token")
	t.Setenv("ENGINE_STORAGE_DRIVER", "postgres")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://u:p@db:5432/engine", cfg.Storage.DSN)
	assert.Equal(t, "tg-token", cfg.Telegram.Token)
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 500, cfg.Pipeline.HistoryLimit)
	assert.Empty(t, cfg.Brokers)
}

func TestValidate(t *testing.T) {
	_, err := Load(writeConfig(t, "storage:\n  driver: mongo\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "pipeline:\n  history_limit: 100\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "brokers:\n  - name: a\n  - name: a\n"))
	assert.Error(t, err)
}
