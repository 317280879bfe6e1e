package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 4201, cfg.Port)
	assert.Equal(t, "./data.db", cfg.DatabasePath)
	assert.Equal(t, 256, cfg.WebhookQueueSize)
	assert.Equal(t, 4, cfg.BatchWorkers)
	assert.Equal(t, 3, cfg.BatchMaxRetries429)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("DATABASE_PATH", "/var/lib/segments.db")
	t.Setenv("STRAVA_CLIENT_ID", "abc")
	t.Setenv("STRAVA_CLIENT_SECRET", "def")
	t.Setenv("METRICS_ENABLED", "true")
	t.Setenv("WEBHOOK_QUEUE_SIZE", "64")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "/var/lib/segments.db", cfg.DatabasePath)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, 64, cfg.WebhookQueueSize)
	assert.True(t, cfg.HasStravaCredentials())
}

func TestHasStravaCredentials(t *testing.T) {
	cfg := &Config{StravaClientID: "abc"}
	assert.False(t, cfg.HasStravaCredentials())

	cfg.StravaClientSecret = "def"
	assert.True(t, cfg.HasStravaCredentials())
}

func TestCallbackURL(t *testing.T) {
	cfg := &Config{}
	assert.Empty(t, cfg.CallbackURL())

	cfg.PublicBaseURL = "https://segments.example.club"
	assert.Equal(t, "https://segments.example.club/webhook-callback", cfg.CallbackURL())
}
