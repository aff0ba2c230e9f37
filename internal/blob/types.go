// Package blob is the storage seam behind a linked directory: a local path,
// an S3 prefix or process memory.
package blob

import (
	"worksite/internal/blob/core"
)

// Aliases so callers import blob only.
type (
	Driver     = core.Driver
	PutOptions = core.PutOptions
	Info       = core.Info
	Store      = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// ErrNotFound is returned, possibly wrapped, for a missing key.
var ErrNotFound = core.ErrNotFound

// IsNotFound reports whether err means the key does not exist.
func IsNotFound(err error) bool { return core.IsNotFound(err) }
