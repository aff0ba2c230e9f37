package blob

import (
	memorystore "worksite/internal/infra/blob/memory"
)

// MemoryStore is exposed so tests can make writes fail.
type MemoryStore = memorystore.Store

// NewMemory returns an empty in-memory Store.
func NewMemory() Store { return memorystore.New() }

// NewMemoryStore returns the concrete in-memory store.
func NewMemoryStore() *MemoryStore { return memorystore.New() }
