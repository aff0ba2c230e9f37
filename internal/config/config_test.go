package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	cachecore "worksite/internal/cache/core"
)

func TestParseDefaults(t *testing.T) {
	c, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Cache.Driver != "sqlite" || c.Cache.SQLitePath != "worksite-cache.db" {
		t.Fatalf("unexpected cache defaults %+v", c.Cache)
	}
	if c.Import.HeaderScanRows != 20 || c.Import.MaxImageBytes != 5<<20 {
		t.Fatalf("unexpected import defaults %+v", c.Import)
	}
	if c.Import.Debounce != 500*time.Millisecond || c.Directory.PromptTimeout != 30*time.Second {
		t.Fatalf("unexpected durations %+v %+v", c.Import, c.Directory)
	}
	if !c.Directory.Watch {
		t.Fatalf("directory watch should default on")
	}
}

func TestParsePrefixedVariables(t *testing.T) {
	t.Setenv("WORKSITE_CACHE_DRIVER", "Memory")
	t.Setenv("WORKSITE_CACHE_MAX_BYTES", "4096")
	t.Setenv("WORKSITE_IMPORT_URL", "s3://exports/schedule.xlsx")
	t.Setenv("WORKSITE_S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("WORKSITE_S3_PATH_STYLE", "true")
	t.Setenv("CACHE_DRIVER", "postgres")

	c, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	backend := c.CacheBackend()
	if backend.Driver != cachecore.DriverMemory || backend.MaxBytes != 4096 {
		t.Fatalf("unexpected backend %+v", backend)
	}
	if c.Import.URL != "s3://exports/schedule.xlsx" {
		t.Fatalf("import url %q", c.Import.URL)
	}
	s3 := c.S3Defaults()
	if s3.Endpoint != "http://localhost:9000" || !s3.PathStyle || s3.Region != "us-east-1" {
		t.Fatalf("unexpected s3 defaults %+v", s3)
	}
}

func TestValidateRejectsBadCombinations(t *testing.T) {
	cases := map[string]map[string]string{
		"postgres without dsn": {"WORKSITE_CACHE_DRIVER": "postgres"},
		"unknown driver":       {"WORKSITE_CACHE_DRIVER": "redis"},
		"bad log format":       {"WORKSITE_LOG_FORMAT": "xml"},
		"zero scan rows":       {"WORKSITE_IMPORT_HEADER_SCAN_ROWS": "0"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			if _, err := Parse(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoadReadsEnvFilesWithoutOverriding(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "WORKSITE_IMPORT_URL=https://example.com/a.xlsx\nWORKSITE_LOG_LEVEL=debug\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("WORKSITE_LOG_LEVEL", "warn")
	// godotenv sets variables directly; register them for cleanup.
	t.Setenv("WORKSITE_IMPORT_URL", "")
	_ = os.Unsetenv("WORKSITE_IMPORT_URL")

	n, err := LoadEnv([]string{envFile, filepath.Join(dir, ".env.local")})
	if err != nil || n != 1 {
		t.Fatalf("LoadEnv: n=%d err=%v", n, err)
	}
	c, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Import.URL != "https://example.com/a.xlsx" {
		t.Fatalf("env file value not loaded: %q", c.Import.URL)
	}
	if c.Log.Level != "warn" {
		t.Fatalf("process environment must win, got %q", c.Log.Level)
	}
	if got := c.Logging(); got.Level != "warn" || got.Format != "console" {
		t.Fatalf("unexpected logging config %+v", got)
	}
}
