package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LEGALEASE_ENV", "test")
	t.Setenv("API_ADDR", "")
	t.Setenv("LEGALEASE_AI_TIMEOUT_SECONDS", "")

	cfg := Load()

	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 60*time.Second, cfg.AITimeout)
	assert.Equal(t, "documents", cfg.Storage.DocumentsBucket)
	assert.False(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LEGALEASE_ENV", "production")
	t.Setenv("API_ADDR", ":9999")
	t.Setenv("LEGALEASE_AI_TIMEOUT_SECONDS", "5")
	t.Setenv("STORAGE_USE_SSL", "true")
	t.Setenv("LEGALEASE_CONVERT_RATE_LIMIT", "not-a-number")

	cfg := Load()

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.AITimeout)
	assert.True(t, cfg.Storage.UseSSL)
	assert.Equal(t, 20, cfg.ConvertRateLimit)
}
