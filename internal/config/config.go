package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Host string `env:"HOST" envDefault:"localhost"`
	Port int    `env:"PORT" envDefault:"4201"`

	// Public base URL used to build the webhook callback address,
	// e.g. "https://segments.example.club"
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`

	// Database configuration
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data.db"`

	// Strava API configuration
	StravaClientID     string `env:"STRAVA_CLIENT_ID"`
	StravaClientSecret string `env:"STRAVA_CLIENT_SECRET"`
	StravaVerifyToken  string `env:"STRAVA_VERIFY_TOKEN"`

	// Admin API configuration
	AdminAPIKey string `env:"ADMIN_API_KEY"`

	// Webhook processing
	WebhookQueueSize int `env:"WEBHOOK_QUEUE_SIZE" envDefault:"256"`

	// Batch fetch
	BatchWorkers       int `env:"BATCH_WORKERS" envDefault:"4"`
	BatchMaxRetries429 int `env:"BATCH_MAX_RETRIES_429" envDefault:"3"`

	// Metrics configuration
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"false"`
	MetricsHost    string `env:"METRICS_HOST" envDefault:"localhost"`
	MetricsPort    int    `env:"METRICS_PORT" envDefault:"4202"`

	// Logging configuration
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first when present.
func Load() (*Config, error) {
	// Missing .env is the normal case in production
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg, nil
}

// HasStravaCredentials reports whether the provider credentials needed
// for token refresh and webhook subscriptions are configured. Their
// absence disables those features but is not fatal.
func (c *Config) HasStravaCredentials() bool {
	return c.StravaClientID != "" && c.StravaClientSecret != ""
}

// CallbackURL returns the externally reachable webhook callback address,
// or "" if no public base URL is configured.
func (c *Config) CallbackURL() string {
	if c.PublicBaseURL == "" {
		return ""
	}
	return c.PublicBaseURL + "/webhook-callback"
}
