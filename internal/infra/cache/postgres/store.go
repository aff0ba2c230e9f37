// Package postgres provides a Postgres cache backend for installations that
// share one database across workstations.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"worksite/internal/cache/core"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/worksite?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists cache payloads as JSONB rows.
type Store struct {
	db       *sql.DB
	mu       sync.Mutex
	maxBytes int64
}

var _ core.Backend = (*Store)(nil)

// NewStore opens a Postgres-backed cache using dsn (falls back to defaultDSN)
// and ensures the state table exists.
func NewStore(ctx context.Context, dsn string, maxBytes int64) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureStateTable(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db, maxBytes: maxBytes}, nil
}

func ensureStateTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure state table: %w", err)
	}
	return nil
}

// Driver implements core.Backend.
func (s *Store) Driver() core.Driver { return core.DriverPostgres }

// Load implements core.Backend.
func (s *Store) Load(ctx context.Context) (map[string][]byte, error) {
	return loadState(ctx, s.db)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadState(ctx context.Context, q queryer) (map[string][]byte, error) {
	rows, err := q.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return nil, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]byte)
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		out[bucket] = payload
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state: %w", err)
	}
	return out, nil
}

// Save implements core.Backend. All entries are written in one transaction.
func (s *Store) Save(ctx context.Context, entries map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if s.maxBytes > 0 {
		current, err := loadState(ctx, tx)
		if err != nil {
			return err
		}
		sizes := make(map[string]int, len(current))
		for k, v := range current {
			sizes[k] = len(v)
		}
		if err := core.CheckQuota(s.maxBytes, sizes, entries); err != nil {
			return err
		}
	}
	for bucket, data := range entries {
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// Delete implements core.Backend.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM state WHERE bucket=$1`, k); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}
	return nil
}

// Close implements core.Backend.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
