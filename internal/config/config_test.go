package config

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/storeperf/internal/core/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Contains(t, cfg.DatabaseURL, "postgres://")
	assert.Equal(t, 1, cfg.QueueMaxConcurrent)
	assert.Equal(t, time.Second, cfg.QueueRequestDelay)
	assert.Equal(t, 3, cfg.RetryMax)
	assert.Equal(t, time.Second, cfg.RetryInitialDelay)
	assert.Equal(t, 7*24*time.Hour, cfg.ChunkSize)
	assert.Equal(t, 14*24*time.Hour, cfg.ChunkThreshold)
	assert.Equal(t, 30*24*time.Hour, cfg.FullSyncWindow)
	assert.Equal(t, 7*24*time.Hour, cfg.IncrementalWindow)
	assert.Equal(t, 3, cfg.SyncAttempts)
	assert.Equal(t, 5*time.Second, cfg.StoreSyncDelay)
	assert.Equal(t, 24*time.Hour, cfg.ScheduleInterval)
	assert.Equal(t, 8, cfg.BackgroundTaskLimit)
	assert.Equal(t, 30*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 100, cfg.UpstreamPerPage)
	assert.True(t, cfg.UseAnalytics)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("QUEUE_MAX_CONCURRENT", "4")
	t.Setenv("QUEUE_REQUEST_DELAY", "250ms")
	t.Setenv("FULL_SYNC_WINDOW", "48h")
	t.Setenv("USE_ANALYTICS", "false")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 4, cfg.QueueMaxConcurrent)
	assert.Equal(t, 250*time.Millisecond, cfg.QueueRequestDelay)
	assert.Equal(t, 48*time.Hour, cfg.FullSyncWindow)
	assert.False(t, cfg.UseAnalytics)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("SYNC_ATTEMPTS", "many")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "parse env:"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"zero concurrency", "QUEUE_MAX_CONCURRENT", "0"},
		{"negative retries", "RETRY_MAX", "-1"},
		{"zero attempts", "SYNC_ATTEMPTS", "0"},
		{"zero task limit", "BACKGROUND_TASK_LIMIT", "0"},
		{"page size too large", "UPSTREAM_PER_PAGE", "250"},
		{"zero chunk", "CHUNK_SIZE", "0s"},
		{"negative delay", "STORE_SYNC_DELAY", "-1s"},
		{"zero interval", "SCHEDULE_INTERVAL", "0s"},
		{"bad level", "LOG_LEVEL", "verbose"},
		{"bad format", "LOG_FORMAT", "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestValidate_ZeroRetriesAllowed(t *testing.T) {
	t.Setenv("RETRY_MAX", "0")
	t.Setenv("QUEUE_REQUEST_DELAY", "0s")

	_, err := Load()
	assert.NoError(t, err)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]string{
		"debug":   "DEBUG",
		"INFO":    "INFO",
		"":        "INFO",
		"warning": "WARN",
		"error":   "ERROR",
	} {
		level, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, level.String())
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{LogLevel: "warn", LogFormat: "json"}
	logger := cfg.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "store_id", "s1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "shown", record["msg"])
	assert.Equal(t, "s1", record["store_id"])
	assert.Equal(t, "storeperf", record["service"])

	buf.Reset()
	text := (&Config{LogLevel: "debug"}).NewLogger(&buf)
	text.Debug("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}
