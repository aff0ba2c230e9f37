// Package core defines the key-value backend contract behind the cache layer.
package core

import (
	"context"
	"errors"
)

// Driver identifies a cache backend implementation.
type Driver string

// Supported cache drivers.
const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverMemory   Driver = "memory"
)

// ErrQuotaExceeded is returned when a write would take the backend above its
// configured byte budget. Nothing is written when it is returned.
var ErrQuotaExceeded = errors.New("cache quota exceeded")

// Backend stores opaque payloads under string keys.
type Backend interface {
	// Load returns every stored key. An empty backend yields an empty map.
	Load(ctx context.Context) (map[string][]byte, error)
	// Save writes entries atomically: either every key is replaced or none is.
	Save(ctx context.Context, entries map[string][]byte) error
	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	Driver() Driver
	Close() error
}

// ProjectedSize returns the total payload size after entries replace their
// counterparts in existing.
func ProjectedSize(existing map[string]int, entries map[string][]byte) int64 {
	var total int64
	for k, n := range existing {
		if _, replaced := entries[k]; replaced {
			continue
		}
		total += int64(n)
	}
	for _, v := range entries {
		total += int64(len(v))
	}
	return total
}

// CheckQuota returns ErrQuotaExceeded when applying entries over existing would
// exceed maxBytes. A non-positive maxBytes disables the check.
func CheckQuota(maxBytes int64, existing map[string]int, entries map[string][]byte) error {
	if maxBytes <= 0 {
		return nil
	}
	if ProjectedSize(existing, entries) > maxBytes {
		return ErrQuotaExceeded
	}
	return nil
}
