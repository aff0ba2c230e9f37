package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"worksite/internal/cache/core"
	"worksite/internal/infra/cache/postgres/testutil"
)

func openStub(t *testing.T, maxBytes int64) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "", maxBytes)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn
}

func TestNewStoreEnsuresStateTable(t *testing.T) {
	store, conn := openStub(t, 0)
	if store.Driver() != core.DriverPostgres {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE IF NOT EXISTS STATE") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected state table DDL, got %v", conn.Execs)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store, conn := openStub(t, 0)
	ctx := context.Background()
	if err := store.Save(ctx, map[string][]byte{"projects": []byte(`[]`), "users": []byte(`[{"id":"u1"}]`)}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, map[string][]byte{"projects": []byte(`[{"id":"p1"}]`)}); err != nil {
		t.Fatalf("Save again: %v", err)
	}
	if payload, ok := conn.Payload("projects"); !ok || string(payload) != `[{"id":"p1"}]` {
		t.Fatalf("expected upserted payload, got %s", payload)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || string(got["users"]) != `[{"id":"u1"}]` {
		t.Fatalf("unexpected load result: %v", got)
	}
	if err := store.Delete(ctx, "users"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := conn.Payload("users"); ok {
		t.Fatalf("expected users bucket removed")
	}
}

func TestSaveRejectsOverQuotaWithoutWriting(t *testing.T) {
	store, conn := openStub(t, 16)
	ctx := context.Background()
	if err := store.Save(ctx, map[string][]byte{"a": []byte("0123456789")}); err != nil {
		t.Fatalf("Save within quota: %v", err)
	}
	err := store.Save(ctx, map[string][]byte{"b": []byte("0123456789")})
	if !errors.Is(err, core.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if _, ok := conn.Payload("b"); ok {
		t.Fatalf("expected no partial write")
	}
	if conn.RolledBack != 1 {
		t.Fatalf("expected the rejected save to roll back once, got %d", conn.RolledBack)
	}
	if err := store.Save(ctx, map[string][]byte{"a": []byte("0123456789abcdef")}); err != nil {
		t.Fatalf("replacing a key within quota should succeed: %v", err)
	}
}

func TestSaveCommitFailureRollsBack(t *testing.T) {
	store, conn := openStub(t, 0)
	conn.FailCommit = true
	err := store.Save(context.Background(), map[string][]byte{"projects": []byte(`[]`)})
	if err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit error, got %v", err)
	}
	if _, ok := conn.Payload("projects"); ok {
		t.Fatalf("expected rollback to discard the write")
	}
}

func TestNewStorePingFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailExec = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "postgres://example", 0); err == nil {
		t.Fatalf("expected ping failure")
	}
}
