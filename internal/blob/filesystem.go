package blob

import (
	"worksite/internal/infra/blob/fs"
)

// ErrRootUnavailable reports that a directory store's root is gone.
var ErrRootUnavailable = fs.ErrRootUnavailable

// NewFilesystem returns a Store writing under root.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}
