package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() RuntimeSettings {
	return RuntimeSettings{
		LskyAPIURL: "https://img.example.com/api/v1",
		LskyToken:  "token",
		BatchSize:  10,
	}
}

func TestRuntimeSettingsValidate(t *testing.T) {
	require.NoError(t, validSettings().Validate())

	s := validSettings()
	s.LskyAPIURL = " "
	assert.Error(t, s.Validate())

	s = validSettings()
	s.LskyToken = ""
	assert.Error(t, s.Validate())

	s = validSettings()
	s.BatchSize = 0
	assert.Error(t, s.Validate())

	s = validSettings()
	s.CronExpr = "not a cron"
	assert.Error(t, s.Validate())

	s = validSettings()
	s.CronExpr = "*/30 * * * *"
	assert.NoError(t, s.Validate())
}

func TestRuntimeSettingsFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	settings := validSettings()
	settings.CronExpr = "0 4 * * *"

	require.NoError(t, WriteRuntimeSettingsFile(path, settings))

	loaded, err := LoadRuntimeSettingsFile(path)
	require.NoError(t, err)
	assert.Equal(t, settings, loaded)

	// No .tmp file is left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestLoadRuntimeSettingsFileMissing(t *testing.T) {
	_, err := LoadRuntimeSettingsFile(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestLoadRuntimeSettingsFileInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))

	_, err := LoadRuntimeSettingsFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid settings file")
}

func TestRuntimeSettingsStoreUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store, err := NewRuntimeSettingsStore(path, validSettings())
	require.NoError(t, err)

	got, err := store.GetRuntimeSettings()
	require.NoError(t, err)
	assert.Equal(t, validSettings(), got)

	next := validSettings()
	next.BatchSize = 42
	saved, err := store.UpdateRuntimeSettings(next)
	require.NoError(t, err)
	assert.Equal(t, 42, saved.BatchSize)

	loaded, err := LoadRuntimeSettingsFile(path)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.BatchSize)

	// Invalid updates change nothing.
	bad := validSettings()
	bad.BatchSize = -1
	_, err = store.UpdateRuntimeSettings(bad)
	require.Error(t, err)
	got, err = store.GetRuntimeSettings()
	require.NoError(t, err)
	assert.Equal(t, 42, got.BatchSize)
}

func TestNewRuntimeSettingsStoreRejectsInvalidInitial(t *testing.T) {
	_, err := NewRuntimeSettingsStore(filepath.Join(t.TempDir(), "s.json"), RuntimeSettings{})
	require.Error(t, err)
}
