package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"worksite/internal/cache/core"
)

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "cache.db")
	store, err := NewStore(ctx, path, 0)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Save(ctx, map[string][]byte{"projects": []byte(`[{"id":"p1"}]`), "import_url": []byte(`"https://x"`)}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewStore(ctx, path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	got, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got["projects"]) != `[{"id":"p1"}]` || string(got["import_url"]) != `"https://x"` {
		t.Fatalf("unexpected payloads: %v", got)
	}
	if reopened.Path() != path || reopened.Driver() != core.DriverSQLite {
		t.Fatalf("unexpected metadata")
	}
}

func TestStoreQuota(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(ctx, filepath.Join(t.TempDir(), "cache.db"), 20)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Save(ctx, map[string][]byte{"a": make([]byte, 15)}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	err = store.Save(ctx, map[string][]byte{"b": make([]byte, 10)})
	if !errors.Is(err, core.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	got, _ := store.Load(ctx)
	if _, ok := got["b"]; ok {
		t.Fatalf("over-quota write must not persist")
	}
	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Save(ctx, map[string][]byte{"b": make([]byte, 10)}); err != nil {
		t.Fatalf("Save after delete: %v", err)
	}
}
