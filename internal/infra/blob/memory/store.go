// Package memory keeps objects in process memory. Tests use it as a linked
// directory that can be made to refuse writes.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"worksite/internal/blob/core"
)

type object struct {
	data []byte
	info core.Info
}

// Store implements core.Store over a map.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
	rev     uint64
	// FailWrites makes every Put fail, the way a revoked grant does.
	FailWrites bool
}

// New returns an empty store.
func New() *Store { return &Store{objects: make(map[string]object)} }

func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put replaces key with the bytes read from r.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return core.Info{}, fmt.Errorf("memory store %s: write refused", key)
	}
	s.rev++
	info := core.Info{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		Revision:     strconv.FormatUint(s.rev, 10),
		LastModified: time.Now().UTC(),
	}
	s.objects[key] = object{data: data, info: info}
	return info, nil
}

// Get returns a reader over a private copy of the object.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, nil, fmt.Errorf("memory store %s: %w", key, core.ErrNotFound)
	}
	return obj.info, io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), nil
}

func (s *Store) Stat(_ context.Context, key string) (core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return core.Info{}, fmt.Errorf("memory store %s: %w", key, core.ErrNotFound)
	}
	return obj.info, nil
}
