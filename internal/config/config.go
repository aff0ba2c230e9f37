// Package config loads worksite settings from WORKSITE_* environment
// variables, optionally seeded from .env files.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"worksite/internal/blob"
	"worksite/internal/cache"
	cachecore "worksite/internal/cache/core"
	"worksite/internal/directory"
	"worksite/internal/importer"
	"worksite/internal/logging"
)

// Prefix is prepended to every environment variable name.
const Prefix = "WORKSITE_"

// DefaultEnvFiles are read, when present, before the environment is parsed.
var DefaultEnvFiles = []string{".env", ".env.local"}

// CacheOptions configures the local snapshot backend.
type CacheOptions struct {
	Driver      string `env:"CACHE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"CACHE_SQLITE_PATH" envDefault:"worksite-cache.db"`
	PostgresDSN string `env:"CACHE_POSTGRES_DSN"`
	MaxBytes    int64  `env:"CACHE_MAX_BYTES" envDefault:"0"`
}

// LogOptions configures zap.
type LogOptions struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Format      string `env:"LOG_FORMAT" envDefault:"console"`
	Development bool   `env:"LOG_DEVELOPMENT" envDefault:"false"`
}

// ImportOptions configures the spreadsheet import.
type ImportOptions struct {
	URL            string        `env:"IMPORT_URL"`
	HeaderScanRows int           `env:"IMPORT_HEADER_SCAN_ROWS" envDefault:"20"`
	MaxImageBytes  int64         `env:"IMPORT_MAX_IMAGE_BYTES" envDefault:"5242880"`
	Debounce       time.Duration `env:"IMPORT_WATCH_DEBOUNCE" envDefault:"500ms"`
	HTTPTimeout    time.Duration `env:"IMPORT_HTTP_TIMEOUT" envDefault:"60s"`
}

// DirectoryOptions configures the linked directory.
type DirectoryOptions struct {
	// Locator is a path, s3://bucket/prefix or memory:name picked on connect.
	Locator       string        `env:"DIRECTORY"`
	PromptTimeout time.Duration `env:"DIRECTORY_PROMPT_TIMEOUT" envDefault:"30s"`
	Watch         bool          `env:"DIRECTORY_WATCH" envDefault:"true"`
}

// S3Options fill in what s3:// locators do not carry. Credentials come from
// the standard AWS chain.
type S3Options struct {
	Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	Endpoint  string `env:"S3_ENDPOINT"`
	PathStyle bool   `env:"S3_PATH_STYLE" envDefault:"false"`
}

// Config is the full worksite configuration.
type Config struct {
	Cache     CacheOptions
	Log       LogOptions
	Import    ImportOptions
	Directory DirectoryOptions
	S3        S3Options
}

// LoadEnv loads the env files that exist and reports how many were read.
// Variables already set in the process win.
func LoadEnv(files []string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if info, err := os.Stat(f); err == nil && !info.IsDir() {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads env files, parses the environment and validates the result.
// Nil files means DefaultEnvFiles.
func Load(files []string) (*Config, error) {
	if files == nil {
		files = DefaultEnvFiles
	}
	if _, err := LoadEnv(files); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}
	return Parse()
}

// Parse reads the process environment only.
func Parse() (*Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Prefix: Prefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch cachecore.Driver(strings.ToLower(c.Cache.Driver)) {
	case cachecore.DriverSQLite:
		if c.Cache.SQLitePath == "" {
			return fmt.Errorf("%w: %sCACHE_SQLITE_PATH is required for the sqlite cache", ErrInvalid, Prefix)
		}
	case cachecore.DriverPostgres:
		if c.Cache.PostgresDSN == "" {
			return fmt.Errorf("%w: %sCACHE_POSTGRES_DSN is required for the postgres cache", ErrInvalid, Prefix)
		}
	case cachecore.DriverMemory:
	default:
		return fmt.Errorf("%w: unknown cache driver %q", ErrInvalid, c.Cache.Driver)
	}
	if c.Cache.MaxBytes < 0 {
		return fmt.Errorf("%w: cache max bytes must not be negative", ErrInvalid)
	}
	if f := c.Log.Format; f != "json" && f != "console" {
		return fmt.Errorf("%w: log format must be json or console, got %q", ErrInvalid, f)
	}
	if c.Import.HeaderScanRows <= 0 {
		return fmt.Errorf("%w: header scan rows must be positive", ErrInvalid)
	}
	if c.Import.MaxImageBytes <= 0 {
		return fmt.Errorf("%w: max image bytes must be positive", ErrInvalid)
	}
	if c.Directory.PromptTimeout <= 0 {
		return fmt.Errorf("%w: prompt timeout must be positive", ErrInvalid)
	}
	return nil
}

// Logging returns the zap configuration.
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format, Development: c.Log.Development}
}

// CacheBackend returns the cache backend selection.
func (c *Config) CacheBackend() cache.BackendConfig {
	return cache.BackendConfig{
		Driver:      cachecore.Driver(strings.ToLower(c.Cache.Driver)),
		SQLitePath:  c.Cache.SQLitePath,
		PostgresDSN: c.Cache.PostgresDSN,
		MaxBytes:    c.Cache.MaxBytes,
	}
}

// Importer returns pipeline options.
func (c *Config) Importer() importer.Options {
	return importer.Options{HeaderScanRows: c.Import.HeaderScanRows, MaxImageBytes: c.Import.MaxImageBytes}
}

// S3Defaults returns blob settings applied to s3:// locators.
func (c *Config) S3Defaults() blob.Config {
	return blob.Config{Driver: blob.DriverS3, Region: c.S3.Region, Endpoint: c.S3.Endpoint, PathStyle: c.S3.PathStyle}
}

// Opener opens directory handles, filling S3 fields the handle leaves empty.
func (c *Config) Opener() directory.Opener {
	return func(ctx context.Context, h directory.Handle) (blob.Store, error) {
		if h.Driver == blob.DriverS3 {
			if h.Region == "" {
				h.Region = c.S3.Region
			}
			if h.Endpoint == "" {
				h.Endpoint = c.S3.Endpoint
				h.PathStyle = h.PathStyle || c.S3.PathStyle
			}
		}
		return directory.OpenBlob(ctx, h)
	}
}
