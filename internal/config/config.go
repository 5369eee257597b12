package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mirrorkit/lsky-mirror/pkg/log"
)

// Config holds all application configuration.
// Supports environment variables with sensible defaults.
//
// Environment Variables:
// Lsky Configuration:
// - LSKY_API_URL: Base URL of the Lsky Pro API (e.g. https://img.example.com/api/v1)
// - LSKY_TOKEN: Bearer token for the Lsky Pro API
// - LSKY_TIMEOUT: Upload request timeout in seconds (default: 60)
//
// Batch Configuration:
// - BATCH_SIZE: Rows processed per batch pass (default: 10)
// - DOWNLOAD_TIMEOUT: Remote image download timeout in seconds (default: 30)
// - MAX_DOWNLOAD_BYTES: Maximum remote image size in bytes (default: 10485760)
// - CRON_EXPR: Optional cron expression for automatic migration runs
//
// HTTP Configuration:
// - HTTP_ADDR: Listen address (default: :8080)
// - ADMIN_TOKEN: Bearer token required on /api/ endpoints (empty disables auth)
//
// System Configuration:
// - DB_PATH: SQLite database path (default: data/mirror.db)
// - LOG_LEVEL: debug|info|warn|error (default: info)

type Config struct {
	Lsky   LskyConfig   `json:"lsky"`
	Batch  BatchConfig  `json:"batch"`
	HTTP   HTTPConfig   `json:"http"`
	Policy PolicyConfig `json:"policy"`
	System SystemConfig `json:"system"`
}

// LskyConfig holds the configuration for the Lsky Pro upload client.
type LskyConfig struct {
	APIURL  string `json:"api_url"`
	Token   string `json:"token"`
	Timeout int    `json:"timeout"`
}

// BatchConfig holds the configuration for the batch engines.
type BatchConfig struct {
	Size             int    `json:"size"`
	DownloadTimeout  int    `json:"download_timeout"`
	MaxDownloadBytes int64  `json:"max_download_bytes"`
	CronExpr         string `json:"cron_expr"`
}

type HTTPConfig struct {
	Addr       string `json:"addr"`
	AdminToken string `json:"admin_token"`
}

// PolicyConfig drives the exclusion policy for attachment uploads.
type PolicyConfig struct {
	AllowedMimeTypes      []string `json:"allowed_mime_types"`
	ExcludedContexts      []string `json:"excluded_contexts"`
	ExcludedPathFragments []string `json:"excluded_path_fragments"`
}

type SystemConfig struct {
	DBPath   string `json:"db_path"`
	LogLevel string `json:"log_level"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// New creates a Config from the environment, loading a .env file when present.
func New(opts ...Option) (*Config, error) {
	_ = godotenv.Load()
	return NewFromEnv(opts...)
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		Lsky: LskyConfig{
			APIURL:  getEnvString("LSKY_API_URL", ""),
			Token:   getEnvString("LSKY_TOKEN", ""),
			Timeout: getEnvInt("LSKY_TIMEOUT", 60),
		},
		Batch: BatchConfig{
			Size:             getEnvInt("BATCH_SIZE", 10),
			DownloadTimeout:  getEnvInt("DOWNLOAD_TIMEOUT", 30),
			MaxDownloadBytes: getEnvInt64("MAX_DOWNLOAD_BYTES", 10<<20),
			CronExpr:         getEnvString("CRON_EXPR", ""),
		},
		HTTP: HTTPConfig{
			Addr:       getEnvString("HTTP_ADDR", ":8080"),
			AdminToken: getEnvString("ADMIN_TOKEN", ""),
		},
		Policy: PolicyConfig{
			AllowedMimeTypes:      getEnvList("POLICY_ALLOWED_MIMES", defaultAllowedMimes()),
			ExcludedContexts:      getEnvList("POLICY_EXCLUDED_CONTEXTS", []string{"avatar", "profile"}),
			ExcludedPathFragments: getEnvList("POLICY_EXCLUDED_PATHS", []string{"/admin/"}),
		},
		System: SystemConfig{
			DBPath:   getEnvString("DB_PATH", "data/mirror.db"),
			LogLevel: getEnvString("LOG_LEVEL", "info"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config loaded: batch_size=%d http_addr=%s db_path=%s",
		config.Batch.Size, config.HTTP.Addr, config.System.DBPath)

	return config, nil
}

// validate checks structural configuration. A missing Lsky URL or token is not
// a boot failure: the upload client reports it per item instead.
func (c *Config) validate() error {
	if c.Batch.Size <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive")
	}
	if c.Batch.MaxDownloadBytes <= 0 {
		return fmt.Errorf("MAX_DOWNLOAD_BYTES must be positive")
	}
	if strings.TrimSpace(c.System.DBPath) == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	return nil
}

func defaultAllowedMimes() []string {
	return []string{
		"image/jpeg",
		"image/png",
		"image/gif",
		"image/webp",
		"image/bmp",
		"image/svg+xml",
		"image/avif",
	}
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvList gets a comma-separated list from environment variables with default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	ret := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			ret = append(ret, trimmed)
		}
	}
	if len(ret) == 0 {
		return defaultValue
	}
	return ret
}
