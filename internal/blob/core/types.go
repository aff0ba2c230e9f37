// Package core defines the object store contract the directory channel
// writes db.json through.
package core

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"time"
)

// Driver names a store implementation.
type Driver string

// Store drivers.
const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

// PutOptions tunes a write.
type PutOptions struct {
	ContentType string
}

// Info describes a stored object. Revision changes on every replace and is
// opaque to callers.
type Info struct {
	Key          string
	Size         int64
	ContentType  string
	Revision     string
	LastModified time.Time
}

// Store is a flat key space where each Put replaces the whole object and a
// concurrent reader sees either the old or the new bytes, never a mix.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get opens the object. Missing keys satisfy IsNotFound.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	// Stat reports object metadata without reading it. Missing keys satisfy
	// IsNotFound; any other error means the store itself is unreachable.
	Stat(ctx context.Context, key string) (Info, error)
	Driver() Driver
}

// ErrNotFound is returned, possibly wrapped, for a missing key.
var ErrNotFound = errors.New("blob: not found")

// IsNotFound reports whether err means the key does not exist, whichever
// driver produced it.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}
