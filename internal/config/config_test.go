package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "files.db", cfg.DBPath)
	assert.Equal(t, int64(1048576), cfg.ChunkBytes)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 200, cfg.ListLimit)
	assert.Equal(t, time.Duration(0), cfg.KeepUploadsFor)
	assert.Equal(t, "0.0.0.0:5000", cfg.Web.BindAddress)
	assert.Equal(t, "us-east-1", cfg.S3.Region)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("CHUNK_BYTES", "4096")
	t.Setenv("WEB_BIND_ADDRESS", "127.0.0.1:8080")
	t.Setenv("S3_PATH_STYLE", "true")
	t.Setenv("KEEP_UPLOADS_FOR", "48h")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, int64(4096), cfg.ChunkBytes)
	assert.Equal(t, "127.0.0.1:8080", cfg.Web.BindAddress)
	assert.True(t, cfg.S3.PathStyle)
	assert.Equal(t, 48*time.Hour, cfg.KeepUploadsFor)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"zero chunk", "CHUNK_BYTES", "0"},
		{"window below chunk", "MAX_WINDOW_BYTES", "10"},
		{"window without overlap room", "MAX_WINDOW_BYTES", "1048576"},
		{"zero list limit", "LIST_LIMIT", "0"},
		{"not a number", "CHUNK_BYTES", "lots"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.in}
		assert.Equal(t, tt.want, cfg.SlogLevel())
	}
}
