package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bulkdl/internal/download"
)

const settingsFileName = "app.config.json"

// Settings is the persisted application configuration. The engine fields
// follow download.Config; the timeout is kept in milliseconds.
type Settings struct {
	DefaultSaveFolder      string `json:"defaultSaveFolder"`
	SameTimeDownloads      int    `json:"sameTimeDownloads"`
	OverrideFile           bool   `json:"overrideFile"`
	MaxDuplicationFileName int    `json:"maxDuplicationFileName"`
	Timeout                int    `json:"timeout"`
	SaveDownloadHistory    bool   `json:"saveDownloadHistory"`
}

func DefaultSettings(defaultSaveFolder string) Settings {
	s := Settings{DefaultSaveFolder: defaultSaveFolder, SaveDownloadHistory: true}
	return s.withEngine(download.DefaultConfig())
}

// Engine returns the engine part of the settings.
func (s Settings) Engine() download.Config {
	return download.Config{
		SameTimeDownloads:      s.SameTimeDownloads,
		OverrideFile:           s.OverrideFile,
		MaxDuplicationFileName: s.MaxDuplicationFileName,
		Timeout:                time.Duration(s.Timeout) * time.Millisecond,
	}
}

// EnginePatch is the engine part in the shape accepted by Downloader.LoadConfig.
func (s Settings) EnginePatch() map[string]any {
	return map[string]any{
		"sameTimeDownloads":      s.SameTimeDownloads,
		"overrideFile":           s.OverrideFile,
		"maxDuplicationFileName": s.MaxDuplicationFileName,
		"timeout":                s.Timeout,
	}
}

func (s Settings) withEngine(cfg download.Config) Settings {
	s.SameTimeDownloads = cfg.SameTimeDownloads
	s.OverrideFile = cfg.OverrideFile
	s.MaxDuplicationFileName = cfg.MaxDuplicationFileName
	s.Timeout = int(cfg.Timeout / time.Millisecond)
	return s
}

// Merge applies the valid fields of raw. Invalid values are dropped: engine
// fields are validated by download.Config, the folder must be an existing
// directory and the history flag a boolean.
func (s Settings) Merge(raw map[string]any) Settings {
	s = s.withEngine(s.Engine().Merge(raw))
	if folder, ok := raw["defaultSaveFolder"].(string); ok && isDir(folder) {
		if abs, err := filepath.Abs(folder); err == nil {
			folder = abs
		}
		s.DefaultSaveFolder = folder
	}
	if v, ok := raw["saveDownloadHistory"].(bool); ok {
		s.SaveDownloadHistory = v
	}
	return s
}

// SettingsStore keeps the settings file and its current content.
type SettingsStore struct {
	mu      sync.RWMutex
	path    string
	current Settings
}

// LoadSettings reads DATA_DIR/app.config.json, merging it over the defaults.
// A missing file is created with the defaults. A file that does not hold a
// JSON object is left untouched and the defaults are used.
func LoadSettings(dataDir, defaultSaveFolder string) (*SettingsStore, error) {
	if err := os.MkdirAll(dataDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	if abs, err := filepath.Abs(defaultSaveFolder); err == nil {
		defaultSaveFolder = abs
	}

	store := &SettingsStore{
		path:    filepath.Join(dataDir, settingsFileName),
		current: DefaultSettings(defaultSaveFolder),
	}

	data, err := os.ReadFile(store.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read settings: %w", err)
	default:
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
			// Keep the file for the user to fix; it is rewritten on the next update.
			slog.Warn("Settings file is not a JSON object, using defaults", "path", store.path, "error", err)
			return store, nil
		}
		store.current = store.current.Merge(raw)
	}

	if err := store.save(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *SettingsStore) SaveHistory() bool {
	return s.Get().SaveDownloadHistory
}

// Update merges raw into the current settings and writes them back.
func (s *SettingsStore) Update(raw map[string]any) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = s.current.Merge(raw)
	if err := s.saveLocked(); err != nil {
		return s.current, err
	}
	return s.current, nil
}

func (s *SettingsStore) save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *SettingsStore) saveLocked() error {
	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

func isDir(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
