package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sprintdeck", cfg.Gateway.Namespace)
	assert.Equal(t, 10*time.Second, cfg.Gateway.DefaultTimeout)
	assert.Equal(t, 50, cfg.Gateway.ErrorThresholdPercentage)
	assert.Equal(t, 30*time.Second, cfg.Gateway.ResetTimeout)
	assert.Equal(t, 10, cfg.Gateway.VolumeThreshold)
	assert.Equal(t, 10*time.Second, cfg.Gateway.WindowSize)
	assert.Equal(t, 10, cfg.Gateway.WindowBuckets)
	assert.Equal(t, 2*time.Minute, cfg.Gateway.StateTTL)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("GATEWAY_DEFAULT_TIMEOUT", "250ms")
	t.Setenv("GATEWAY_ERROR_THRESHOLD_PERCENTAGE", "75")
	t.Setenv("GATEWAY_VOLUME_THRESHOLD", "20")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.sprintdeck.io, https://admin.sprintdeck.io")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Gateway.DefaultTimeout)
	assert.Equal(t, 75, cfg.Gateway.ErrorThresholdPercentage)
	assert.Equal(t, 20, cfg.Gateway.VolumeThreshold)
	assert.Equal(t, []string{"https://app.sprintdeck.io", "https://admin.sprintdeck.io"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Tracing.Enabled)
}

func TestLoadInvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("GATEWAY_WINDOW_SIZE", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Gateway.WindowSize)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"threshold over 100", func(c *Config) { c.Gateway.ErrorThresholdPercentage = 101 }},
		{"zero volume threshold", func(c *Config) { c.Gateway.VolumeThreshold = 0 }},
		{"zero window buckets", func(c *Config) { c.Gateway.WindowBuckets = 0 }},
		{"zero window size", func(c *Config) { c.Gateway.WindowSize = 0 }},
		{"zero state ttl", func(c *Config) { c.Gateway.StateTTL = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
