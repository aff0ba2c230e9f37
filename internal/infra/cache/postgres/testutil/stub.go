// Package testutil provides a stub database for postgres cache tests. It
// understands only the statements the cache issues against its state table.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
)

var stubSeq uint64

// StubConn keeps the state table as bucket -> payload and records every
// statement it executes.
type StubConn struct {
	Execs      []string
	State      map[string][]byte
	FailExec   bool
	FailCommit bool
	RolledBack int
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{State: make(map[string][]byte)}
	name := fmt.Sprintf("stubpg%d", atomic.AddUint64(&stubSeq, 1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Payload returns the stored payload of bucket.
func (c *StubConn) Payload(bucket string) ([]byte, bool) {
	b, ok := c.State[bucket]
	return b, ok
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailExec {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx. Writes made inside the transaction
// are discarded on rollback or a failed commit.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return &stubTx{conn: c, saved: maps.Clone(c.State)}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	upper := strings.ToUpper(query)
	switch {
	case strings.HasPrefix(upper, "INSERT INTO STATE"):
		if len(args) != 2 {
			return nil, fmt.Errorf("upsert wants 2 args, got %d", len(args))
		}
		payload, _ := args[1].Value.([]byte)
		c.State[fmt.Sprint(args[0].Value)] = slices.Clone(payload)
	case strings.HasPrefix(upper, "DELETE FROM STATE"):
		if len(args) != 1 {
			return nil, fmt.Errorf("delete wants 1 arg, got %d", len(args))
		}
		delete(c.State, fmt.Sprint(args[0].Value))
	}
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext for SELECT bucket, payload.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if !strings.HasPrefix(strings.ToUpper(query), "SELECT BUCKET, PAYLOAD FROM STATE") {
		return nil, fmt.Errorf("unexpected query: %s", query)
	}
	return &stubRows{buckets: slices.Sorted(maps.Keys(c.State)), state: c.State}, nil
}

type stubTx struct {
	conn  *StubConn
	saved map[string][]byte
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		t.conn.State = t.saved
		return fmt.Errorf("commit fail")
	}
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.State = t.saved
	t.conn.RolledBack++
	return nil
}

type stubRows struct {
	buckets []string
	state   map[string][]byte
}

func (r *stubRows) Columns() []string { return []string{"bucket", "payload"} }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if len(r.buckets) == 0 {
		return io.EOF
	}
	dest[0], dest[1] = r.buckets[0], r.state[r.buckets[0]]
	r.buckets = r.buckets[1:]
	return nil
}
