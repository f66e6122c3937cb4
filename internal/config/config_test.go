package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetenv removes k for the duration of the test; t.Setenv restores it afterwards.
func unsetenv(t *testing.T, k string) {
	t.Helper()
	t.Setenv(k, "")
	require.NoError(t, os.Unsetenv(k))
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	for _, k := range []string{"APP_ENV", "APP_PORT", "DATA_FILE", "INDEX_FILE", "BODY_LIMIT", "LOG_LEVEL", "SHUTDOWN_TIMEOUT"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, Config{
		Env:             "dev",
		Port:            "3000",
		DataFile:        "data/data.json",
		IndexFile:       "index.html",
		BodyLimit:       "100K",
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
	}, cfg)
}

func TestLoad_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("APP_PORT=8081\nDATA_FILE=/tmp/forms.json\n"), 0o644))
	t.Setenv("ENV_FILE", path)
	unsetenv(t, "APP_PORT")
	t.Setenv("DATA_FILE", "/var/lib/forms.json") // environment wins over the file

	cfg := Load()
	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, "/var/lib/forms.json", cfg.DataFile)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_BOOL", "yes")
	t.Setenv("X_INT", "nope")
	t.Setenv("X_DUR", "250ms")
	assert.True(t, envBool("X_BOOL", false))
	assert.Equal(t, 7, envInt("X_INT", 7))
	assert.Equal(t, 250*time.Millisecond, envDur("X_DUR", time.Second))
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, parseMethods(" get, ,head"))
}

func TestLoadRateLimitConfig_Normalizes(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	cfg := LoadRateLimitConfig()
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 10*time.Second, cfg.TTL)
	assert.Equal(t, "ip_route", cfg.KeyStrategy)
}

func TestLoadQueueConfig(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "amqp://u:p@broker:5672/")
	t.Setenv("QUEUE_PREFETCH", "-3")
	cfg := LoadQueueConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "amqp://u:p@broker:5672/", cfg.URL)
	assert.Equal(t, "form.submitted", cfg.Name)
	assert.Equal(t, 1, cfg.Prefetch)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_TTL", "-1s")
	cfg := LoadCacheConfig()
	assert.True(t, cfg.Methods["GET"])
	assert.Equal(t, 30*time.Second, cfg.TTL)
}
