package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "content-generation", cfg.Queue.Name)
	assert.Equal(t, 60*time.Second, cfg.Queue.InitialDelay)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Queue.BackoffBase)
	assert.True(t, cfg.Queue.SingleFlight)
	assert.Equal(t, 1, cfg.Worker.Concurrency)
	assert.Equal(t, "gemini-1.5-flash", cfg.Gemini.Model)
	assert.InDelta(t, 0.7, cfg.Gemini.Temperature, 0.001)
	assert.Equal(t, 1024, cfg.Gemini.MaxTokens)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("QUEUE_INITIAL_DELAY", "5s")
	t.Setenv("QUEUE_MAX_ATTEMPTS", "5")
	t.Setenv("GENERATION_PROVIDER", "MOCK")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Queue.InitialDelay)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, "mock", cfg.Generation.Provider)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_SecretFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gemini_key")
	require.NoError(t, os.WriteFile(path, []byte("  secret-key\n"), 0o600))

	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.Gemini.APIKey)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Run("max attempts", func(t *testing.T) {
		t.Setenv("QUEUE_MAX_ATTEMPTS", "0")
		_, err := Load()
		assert.ErrorContains(t, err, "queue.max_attempts")
	})

	t.Run("provider", func(t *testing.T) {
		t.Setenv("GENERATION_PROVIDER", "openai")
		_, err := Load()
		assert.ErrorContains(t, err, "generation.provider")
	})
}

func TestR2Config_IsConfigured(t *testing.T) {
	assert.False(t, R2Config{}.IsConfigured())
	assert.True(t, R2Config{
		AccountID:       "acc",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		BucketName:      "bucket",
	}.IsConfigured())
}
