// Package config loads and exposes application configuration (TOML).
//
// Precedence is resolved once, at load time: environment variables override
// file values, which override built-in defaults. CLI flag overrides are
// applied by the caller on the returned value before anything else sees it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath     = "config.toml"
	DefaultBaseURL        = "https://api.intercom.io"
	DefaultAPIVersion     = "2.8"
	DefaultBatchSize      = 15
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 2
	DefaultBackoffFactor  = 2.0
	DefaultMaxBackoff     = 60
	DefaultFormat         = "markdown"
	DefaultCacheFile      = "raw_conversations.json"
	DefaultIDsFile        = "conversation_ids.txt"
	DefaultTimeOffset     = 2
)

// Environment variable names recognized by Load. A token from the
// environment always wins over the file value.
const (
	EnvAPIToken   = "INTERCOM_API_TOKEN"
	EnvBaseURL    = "INTERCOM_BASE_URL"
	EnvAPIVersion = "INTERCOM_API_VERSION"
	EnvFormat     = "EXPORT_FORMAT"
	EnvBatchSize  = "BATCH_SIZE"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log      LogConfig      `toml:"log"`
	Intercom IntercomConfig `toml:"intercom"`
	Export   ExportConfig   `toml:"export"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// IntercomConfig holds API credentials, endpoint, and fetch tuning knobs.
type IntercomConfig struct {
	APIToken              string  `toml:"api_token"`
	BaseURL               string  `toml:"base_url"`
	APIVersion            string  `toml:"api_version"`
	BatchSize             int     `toml:"batch_size"`
	MaxRetries            int     `toml:"max_retries"`
	InitialBackoffSeconds int     `toml:"initial_backoff_seconds"`
	BackoffFactor         float64 `toml:"backoff_factor"`
	MaxBackoffSeconds     int     `toml:"max_backoff_seconds"`
}

// InitialBackoff returns the first retry wait as a duration.
func (c IntercomConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffSeconds) * time.Second
}

// MaxBackoff returns the retry wait ceiling as a duration.
func (c IntercomConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffSeconds) * time.Second
}

// ExportConfig holds output format, paths, and formatter options.
type ExportConfig struct {
	Format          string `toml:"format"`
	Output          string `toml:"output"`
	CacheFile       string `toml:"cache_file"`
	IDsFile         string `toml:"ids_file"`
	IncludeHeaders  bool   `toml:"include_headers"`
	FlattenMessages bool   `toml:"flatten_messages"`
	JSONIndent      int    `toml:"json_indent"`
	TimeOffsetHours int    `toml:"time_offset_hours"`
}

// TimeOffset returns the fixed shift applied to every normalized timestamp.
func (c ExportConfig) TimeOffset() time.Duration {
	return time.Duration(c.TimeOffsetHours) * time.Hour
}

// Load reads and parses the TOML config file at path, applies default values
// for missing fields, then applies environment overrides. A missing file is
// not an error; the defaults plus environment are returned.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Intercom: IntercomConfig{
			BaseURL:               DefaultBaseURL,
			APIVersion:            DefaultAPIVersion,
			BatchSize:             DefaultBatchSize,
			MaxRetries:            DefaultMaxRetries,
			InitialBackoffSeconds: DefaultInitialBackoff,
			BackoffFactor:         DefaultBackoffFactor,
			MaxBackoffSeconds:     DefaultMaxBackoff,
		},
		Export: ExportConfig{
			Format:          DefaultFormat,
			CacheFile:       DefaultCacheFile,
			IDsFile:         DefaultIDsFile,
			IncludeHeaders:  true,
			JSONIndent:      2,
			TimeOffsetHours: DefaultTimeOffset,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// failures deep in the fetch loop.
func (c Config) Validate() error {
	if c.Intercom.BatchSize < 0 {
		return fmt.Errorf("intercom.batch_size must not be negative, got %d", c.Intercom.BatchSize)
	}
	if c.Intercom.MaxRetries < 1 {
		return fmt.Errorf("intercom.max_retries must be at least 1, got %d", c.Intercom.MaxRetries)
	}
	if c.Intercom.BackoffFactor < 1 {
		return fmt.Errorf("intercom.backoff_factor must be at least 1, got %g", c.Intercom.BackoffFactor)
	}
	if strings.TrimSpace(c.Export.Format) == "" {
		return fmt.Errorf("export.format is required")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvAPIToken)); v != "" {
		cfg.Intercom.APIToken = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		cfg.Intercom.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAPIVersion)); v != "" {
		cfg.Intercom.APIVersion = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvFormat)); v != "" {
		cfg.Export.Format = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBatchSize)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Intercom.BatchSize = n
		}
	}
}
