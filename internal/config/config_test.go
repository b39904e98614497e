package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":9117", cfg.Listen, "Default listen address should be :9117")
	assert.NotEmpty(t, cfg.APIKey, "Default API key should be set")
	assert.NotEmpty(t, cfg.DataDir, "Default data dir should be set")
	assert.NotEmpty(t, cfg.OutputDir, "Default output dir should be set")
	assert.Equal(t, 5, cfg.Engine.MaxRetries, "Default engine retries should be 5")
	assert.Equal(t, 5*time.Second, cfg.Engine.RetryDelay, "Default retry delay should be 5 seconds")
	assert.Equal(t, 30*time.Second, cfg.Reconciler.PollInterval, "Default poll interval should be 30 seconds")
	assert.Equal(t, 10*time.Second, cfg.Verify.Timeout, "Default verify timeout should be 10 seconds")
	assert.Equal(t, 10*time.Minute, cfg.Verify.Freshness, "Default verdict freshness should be 10 minutes")
}

func TestZeroOr(t *testing.T) {
	assert.Equal(t, "fallback", zeroOr("", "fallback"))
	assert.Equal(t, "value", zeroOr("value", "fallback"))
	assert.Equal(t, 7, zeroOr(0, 7))
	assert.Equal(t, 3, zeroOr(3, 7))
	assert.Equal(t, time.Minute, zeroOr(time.Duration(0), time.Minute))

	def := &EngineConfig{DeviceName: "default"}
	assert.Equal(t, def, zeroOr(nil, def))

	set := &EngineConfig{DeviceName: "mine"}
	assert.Equal(t, set, zeroOr(set, def))
}
