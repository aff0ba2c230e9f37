// Package memory provides an in-process cache backend for tests and ephemeral
// sessions. An optional byte quota emulates constrained local storage.
package memory

import (
	"context"
	"sync"

	"worksite/internal/cache/core"
)

// Store keeps cache payloads in a map.
type Store struct {
	mu       sync.RWMutex
	entries  map[string][]byte
	maxBytes int64
}

var _ core.Backend = (*Store)(nil)

// New constructs a memory backend. maxBytes <= 0 means unlimited.
func New(maxBytes int64) *Store {
	return &Store{entries: make(map[string][]byte), maxBytes: maxBytes}
}

// Driver implements core.Backend.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Load implements core.Backend.
func (s *Store) Load(context.Context) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, len(s.entries))
	for k, v := range s.entries {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

// Save implements core.Backend.
func (s *Store) Save(_ context.Context, entries map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make(map[string]int, len(s.entries))
	for k, v := range s.entries {
		sizes[k] = len(v)
	}
	if err := core.CheckQuota(s.maxBytes, sizes, entries); err != nil {
		return err
	}
	for k, v := range entries {
		s.entries[k] = append([]byte(nil), v...)
	}
	return nil
}

// Delete implements core.Backend.
func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

// Close implements core.Backend.
func (s *Store) Close() error { return nil }
