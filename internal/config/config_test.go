// Package config tests.
package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/engagement-guard/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, ":8090", cfg.APIListenAddr)
	assert.Equal(t, 30*time.Second, cfg.ScanInterval)
	assert.Equal(t, 3*time.Second, cfg.BaselineActionDuration)
	assert.Equal(t, models.AgeUnder3Months, cfg.Age())
	assert.Equal(t, models.SpeedUltraSlow, cfg.Tier())
	assert.False(t, cfg.SlackEnabled())

	_, ok, err := cfg.WarmupStartTime()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoad_Custom(t *testing.T) {
	os.Clearenv()
	t.Setenv("ACCOUNT_AGE", "6-12 months")
	t.Setenv("SPEED_TIER", "Medium")
	t.Setenv("WARMUP_START", "2026-04-20T08:00:00Z")
	t.Setenv("SCAN_INTERVAL", "45s")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.example/x")
	t.Setenv("API_CORS_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, models.Age6To12Months, cfg.Age())
	assert.Equal(t, models.SpeedMedium, cfg.Tier())
	assert.Equal(t, 45*time.Second, cfg.ScanInterval)
	assert.True(t, cfg.SlackEnabled())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins())

	start, ok, err := cfg.WarmupStartTime()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2026, 4, 20, 8, 0, 0, 0, time.UTC), start.UTC())
}

func TestLoad_UnknownTierIsStrictest(t *testing.T) {
	os.Clearenv()
	t.Setenv("SPEED_TIER", "ludicrous")
	t.Setenv("ACCOUNT_AGE", "ancient")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, models.SpeedUltraSlow, cfg.Tier())
	assert.Equal(t, models.AgeUnder3Months, cfg.Age())
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"bad warmup start":      {"WARMUP_START": "yesterday"},
		"scan interval too low": {"SCAN_INTERVAL": "10ms"},
		"bad duration":          {"SCAN_INTERVAL": "soon"},
		"bad timezone":          {"TIMEZONE": "Mars/Olympus"},
		"prod without api key":  {"ENVIRONMENT": "production"},
	}
	for name, envs := range cases {
		t.Run(name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range envs {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_ProductionWithKey(t *testing.T) {
	os.Clearenv()
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("API_KEY", "secret")
	_, err := Load()
	assert.NoError(t, err)
}

func TestSlackEnabled_BotNeedsChannel(t *testing.T) {
	cfg := &Config{SlackBotToken: "xoxb-1"}
	assert.False(t, cfg.SlackEnabled())
	cfg.SlackChannel = "C123"
	assert.True(t, cfg.SlackEnabled())
}
