package cache

import (
	"context"
	"fmt"
	"strings"

	"worksite/internal/cache/core"
	memorycache "worksite/internal/infra/cache/memory"
	"worksite/internal/infra/cache/postgres"
	"worksite/internal/infra/cache/sqlite"
)

// BackendConfig selects and configures a cache backend.
type BackendConfig struct {
	Driver      core.Driver
	SQLitePath  string
	PostgresDSN string
	MaxBytes    int64
}

// OpenBackend constructs the backend named by cfg.Driver. An empty driver
// selects sqlite.
func OpenBackend(ctx context.Context, cfg BackendConfig) (core.Backend, error) {
	driver := core.Driver(strings.ToLower(strings.TrimSpace(string(cfg.Driver))))
	switch driver {
	case "", core.DriverSQLite:
		return sqlite.NewStore(ctx, cfg.SQLitePath, cfg.MaxBytes)
	case core.DriverPostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN, cfg.MaxBytes)
	case core.DriverMemory:
		return NewMemoryBackend(cfg.MaxBytes), nil
	default:
		return nil, fmt.Errorf("unsupported cache driver %q", cfg.Driver)
	}
}

// NewMemoryBackend returns a process-local backend, used by tests and by
// the memory driver.
func NewMemoryBackend(maxBytes int64) core.Backend { return memorycache.New(maxBytes) }
