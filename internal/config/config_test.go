package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulkdl/internal/download"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATA_DIR", "/var/lib/bulkdl")
	t.Setenv("DOWNLOAD_DIR", "")

	cfg := LoadConfig()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "/var/lib/bulkdl", cfg.DataDir)
	assert.Equal(t, "./downloads", cfg.DownloadDir)
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":      slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"Error": slog.LevelError,
		"loud":  slog.LevelInfo,
	}
	for input, expected := range tests {
		assert.Equal(t, expected, parseLogLevel(input), input)
	}
}

func TestLoadSettingsCreatesDefaults(t *testing.T) {
	dataDir := t.TempDir()
	folder := t.TempDir()

	store, err := LoadSettings(dataDir, folder)
	require.NoError(t, err)

	settings := store.Get()
	assert.Equal(t, DefaultSettings(folder), settings)
	assert.Equal(t, download.DefaultConfig(), settings.Engine())
	assert.True(t, store.SaveHistory())

	data, err := os.ReadFile(filepath.Join(dataDir, settingsFileName))
	require.NoError(t, err)
	var onDisk Settings
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, settings, onDisk)
}

func TestLoadSettingsDropsInvalidFields(t *testing.T) {
	dataDir := t.TempDir()
	folder := t.TempDir()
	content := `{
		"defaultSaveFolder": "/does/not/exist",
		"sameTimeDownloads": 2,
		"overrideFile": "true",
		"maxDuplicationFileName": -4,
		"timeout": 1500,
		"saveDownloadHistory": false
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, settingsFileName), []byte(content), 0o644))

	store, err := LoadSettings(dataDir, folder)
	require.NoError(t, err)

	settings := store.Get()
	assert.Equal(t, folder, settings.DefaultSaveFolder)
	assert.Equal(t, 2, settings.SameTimeDownloads)
	assert.False(t, settings.OverrideFile)
	assert.Equal(t, download.DefaultMaxDuplicationFileName, settings.MaxDuplicationFileName)
	assert.Equal(t, 1500*time.Millisecond, settings.Engine().Timeout)
	assert.False(t, settings.SaveDownloadHistory)
}

func TestSettingsUpdatePersists(t *testing.T) {
	dataDir := t.TempDir()
	store, err := LoadSettings(dataDir, t.TempDir())
	require.NoError(t, err)

	newFolder := t.TempDir()
	updated, err := store.Update(map[string]any{
		"defaultSaveFolder": newFolder,
		"overrideFile":      true,
		"timeout":           float64(250),
	})
	require.NoError(t, err)
	assert.Equal(t, newFolder, updated.DefaultSaveFolder)
	assert.True(t, updated.OverrideFile)
	assert.Equal(t, 250, updated.Timeout)

	reloaded, err := LoadSettings(dataDir, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, updated, reloaded.Get())
}

func TestEnginePatchRoundTrip(t *testing.T) {
	settings := DefaultSettings("/downloads")
	settings.SameTimeDownloads = 3
	settings.Timeout = 900

	cfg := download.DefaultConfig().Merge(settings.EnginePatch())
	assert.Equal(t, settings.Engine(), cfg)
}

func TestLoadSettingsKeepsCorruptFile(t *testing.T) {
	dataDir := t.TempDir()
	folder := t.TempDir()
	path := filepath.Join(dataDir, settingsFileName)
	corrupt := []byte(`{"sameTimeDownloads": 2,`)
	require.NoError(t, os.WriteFile(path, corrupt, 0o644))

	store, err := LoadSettings(dataDir, folder)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(folder), store.Get())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, corrupt, data)
}
