// Package sqlite provides the default on-disk cache backend: a single SQLite
// table of JSON payloads keyed by bucket.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"worksite/internal/cache/core"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const defaultPath = "worksite-cache.db"

// Store persists cache payloads to SQLite.
type Store struct {
	db       *sql.DB
	mu       sync.Mutex
	path     string
	maxBytes int64
}

var _ core.Backend = (*Store)(nil)

// NewStore opens (creating when needed) the SQLite cache at path.
func NewStore(ctx context.Context, path string, maxBytes int64) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection keeps the file lock with this process and makes :memory: usable
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return &Store{db: db, path: path, maxBytes: maxBytes}, nil
}

// Driver implements core.Backend.
func (s *Store) Driver() core.Driver { return core.DriverSQLite }

// Load implements core.Backend.
func (s *Store) Load(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return nil, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string][]byte)
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out[bucket] = payload
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state: %w", err)
	}
	return out, nil
}

// Save implements core.Backend. All entries are written in one transaction.
func (s *Store) Save(ctx context.Context, entries map[string][]byte) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if s.maxBytes > 0 {
		sizes, err := bucketSizes(ctx, tx)
		if err != nil {
			return err
		}
		if err := core.CheckQuota(s.maxBytes, sizes, entries); err != nil {
			return err
		}
	}
	for bucket, data := range entries {
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func bucketSizes(ctx context.Context, tx *sql.Tx) (map[string]int, error) {
	rows, err := tx.QueryContext(ctx, `SELECT bucket, length(payload) FROM state`)
	if err != nil {
		return nil, fmt.Errorf("select sizes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	sizes := make(map[string]int)
	for rows.Next() {
		var bucket string
		var n int
		if err := rows.Scan(&bucket, &n); err != nil {
			return nil, fmt.Errorf("scan size: %w", err)
		}
		sizes[bucket] = n
	}
	return sizes, rows.Err()
}

// Delete implements core.Backend.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM state WHERE bucket=?`, k); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}
	return nil
}

// Close implements core.Backend.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
