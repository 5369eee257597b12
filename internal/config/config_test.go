package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnvDefaults(t *testing.T) {
	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Batch.Size)
	assert.Equal(t, int64(10<<20), cfg.Batch.MaxDownloadBytes)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "data/mirror.db", cfg.System.DBPath)
	assert.Equal(t, "info", cfg.System.LogLevel)
	assert.Contains(t, cfg.Policy.AllowedMimeTypes, "image/jpeg")
}

func TestNewFromEnvOverrides(t *testing.T) {
	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LSKY_API_URL", "https://img.example.com/api/v1")
	t.Setenv("POLICY_EXCLUDED_CONTEXTS", "avatar, gravatar ,")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Batch.Size)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "https://img.example.com/api/v1", cfg.Lsky.APIURL)
	assert.Equal(t, []string{"avatar", "gravatar"}, cfg.Policy.ExcludedContexts)
}

func TestNewFromEnvInvalidBatchSize(t *testing.T) {
	t.Setenv("BATCH_SIZE", "-1")
	_, err := NewFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_SIZE")
}

func TestNewFromEnvMissingLskyCredentialsIsNotFatal(t *testing.T) {
	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.Empty(t, cfg.Lsky.APIURL)
	assert.Empty(t, cfg.Lsky.Token)
}

func TestWithRuntimeSettingsOption(t *testing.T) {
	cfg, err := NewFromEnv(WithRuntimeSettings(RuntimeSettings{
		LskyAPIURL: "https://img.example.com/api/v1",
		LskyToken:  "file-token",
		BatchSize:  50,
	}))
	require.NoError(t, err)

	assert.Equal(t, "https://img.example.com/api/v1", cfg.Lsky.APIURL)
	assert.Equal(t, "file-token", cfg.Lsky.Token)
	assert.Equal(t, 50, cfg.Batch.Size)

	// Zero-value fields leave the environment values alone.
	cfg, err = NewFromEnv(WithRuntimeSettings(RuntimeSettings{}))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Batch.Size)
}
