package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
)

const DefaultRuntimeSettingsFile = "data/settings.json"

// RuntimeSettings is the subset of configuration that can be changed through
// the HTTP API without restarting the service.
type RuntimeSettings struct {
	LskyAPIURL string `json:"lsky_api_url"`
	LskyToken  string `json:"lsky_token"`
	BatchSize  int    `json:"batch_size"`
	CronExpr   string `json:"cron_expr"`
}

func RuntimeSettingsFilePath() string {
	return getEnvString("SETTINGS_FILE", DefaultRuntimeSettingsFile)
}

func (s RuntimeSettings) Validate() error {
	if strings.TrimSpace(s.LskyAPIURL) == "" {
		return fmt.Errorf("lsky_api_url is required")
	}
	if strings.TrimSpace(s.LskyToken) == "" {
		return fmt.Errorf("lsky_token is required")
	}
	if s.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if strings.TrimSpace(s.CronExpr) != "" {
		if _, err := cron.ParseStandard(s.CronExpr); err != nil {
			return fmt.Errorf("invalid cron_expr: %w", err)
		}
	}
	return nil
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		LskyAPIURL: c.Lsky.APIURL,
		LskyToken:  c.Lsky.Token,
		BatchSize:  c.Batch.Size,
		CronExpr:   c.Batch.CronExpr,
	}
}

func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if strings.TrimSpace(settings.LskyAPIURL) != "" {
			c.Lsky.APIURL = settings.LskyAPIURL
		}
		if strings.TrimSpace(settings.LskyToken) != "" {
			c.Lsky.Token = settings.LskyToken
		}
		if settings.BatchSize > 0 {
			c.Batch.Size = settings.BatchSize
		}
		if strings.TrimSpace(settings.CronExpr) != "" {
			c.Batch.CronExpr = settings.CronExpr
		}
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}
