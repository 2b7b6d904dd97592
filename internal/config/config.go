package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/p-blackswan/engagement-guard/internal/models"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort    int    `envconfig:"HTTP_PORT" default:"8080"` // health + metrics

	// Storage
	DBPath            string        `envconfig:"DB_PATH" default:"guard.db"`
	RetentionInterval time.Duration `envconfig:"RETENTION_INTERVAL" default:"1h"`

	// Account
	AccountAge  string `envconfig:"ACCOUNT_AGE" default:"under_3_months"`
	SpeedTier   string `envconfig:"SPEED_TIER" default:"ultra_slow"`
	WarmupStart string `envconfig:"WARMUP_START"` // RFC3339; empty = first boot
	Timezone    string `envconfig:"TIMEZONE" default:"UTC"`

	// Detection
	MarkersPath            string        `envconfig:"MARKERS_PATH"` // YAML; empty = built-in list
	ScanInterval           time.Duration `envconfig:"SCAN_INTERVAL" default:"30s"`
	BaselineActionDuration time.Duration `envconfig:"BASELINE_ACTION_DURATION" default:"3s"`

	// Slack (optional, alerts go to the log only when unset)
	SlackWebhookURL string `envconfig:"SLACK_WEBHOOK_URL"`
	SlackBotToken   string `envconfig:"SLACK_BOT_TOKEN"`
	SlackChannel    string `envconfig:"SLACK_CHANNEL"`

	// API
	APIListenAddr     string `envconfig:"API_LISTEN_ADDR" default:":8090"`
	APIAuthMode       string `envconfig:"API_AUTH_MODE" default:"api-key"`
	APIKey            string `envconfig:"API_KEY"`
	APICORSOrigins    string `envconfig:"API_CORS_ORIGINS"`
	APIRateLimitRPS   int    `envconfig:"API_RATE_LIMIT_RPS" default:"50"`
	APIRateLimitBurst int    `envconfig:"API_RATE_LIMIT_BURST" default:"100"`
}

// SlackEnabled returns true if any Slack delivery path is configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackWebhookURL != "" || (c.SlackBotToken != "" && c.SlackChannel != "")
}

// Age returns the parsed account age bracket. Unknown values map to the
// strictest bracket.
func (c *Config) Age() models.AccountAge {
	return models.ParseAccountAge(c.AccountAge)
}

// Tier returns the parsed speed tier. Unknown values map to ultra_slow.
func (c *Config) Tier() models.SpeedTier {
	return models.ParseSpeedTier(c.SpeedTier)
}

// WarmupStartTime parses WARMUP_START. ok is false when unset.
func (c *Config) WarmupStartTime() (t time.Time, ok bool, err error) {
	if strings.TrimSpace(c.WarmupStart) == "" {
		return time.Time{}, false, nil
	}
	t, err = time.Parse(time.RFC3339, strings.TrimSpace(c.WarmupStart))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid WARMUP_START: %w", err)
	}
	return t, true, nil
}

// Location loads TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// CORSOrigins returns the parsed list of allowed origins.
func (c *Config) CORSOrigins() []string {
	if c.APICORSOrigins == "" {
		return nil
	}
	parts := strings.Split(c.APICORSOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, o := range parts {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if c.ScanInterval < time.Second {
		return fmt.Errorf("SCAN_INTERVAL must be at least 1s, got %s", c.ScanInterval)
	}
	if c.BaselineActionDuration <= 0 {
		return fmt.Errorf("BASELINE_ACTION_DURATION must be positive")
	}
	if c.APIAuthMode == "api-key" && c.APIKey == "" && c.Environment != "development" {
		return fmt.Errorf("API_KEY is required when API_AUTH_MODE=api-key outside development")
	}
	if _, _, err := c.WarmupStartTime(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return LoadWithPrefix("")
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}
