// Package fs stores objects as files under a linked directory on disk.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"

	"worksite/internal/blob/core"
)

// ErrRootUnavailable is returned once the linked directory has been removed
// or replaced by a file. It never satisfies core.IsNotFound, so a vanished
// directory reads as an I/O failure rather than an empty one.
var ErrRootUnavailable = errors.New("directory unavailable")

// Store implements core.Store. Keys are slash separated paths relative to
// root.
type Store struct {
	root string
}

// New returns a store rooted at root, creating the directory when missing.
func New(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("fs store: empty root")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// Root is the directory objects are written under.
func (s *Store) Root() string { return s.root }

// Put writes through a temp file and rename.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	path, err := s.resolve(key)
	if err != nil {
		return core.Info{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return core.Info{}, err
	}
	if err := atomic.WriteFile(path, r); err != nil {
		return core.Info{}, fmt.Errorf("write %s: %w", key, err)
	}
	st, err := os.Stat(path)
	if err != nil {
		return core.Info{}, err
	}
	info := describe(key, st)
	if opts.ContentType != "" {
		info.ContentType = opts.ContentType
	}
	return info, nil
}

func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	f, err := os.Open(path) // #nosec G304 -- resolve keeps path under root
	if err != nil {
		return core.Info{}, nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return core.Info{}, nil, err
	}
	return describe(key, st), f, nil
}

func (s *Store) Stat(_ context.Context, key string) (core.Info, error) {
	path, err := s.resolve(key)
	if err != nil {
		return core.Info{}, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return core.Info{}, err
	}
	return describe(key, st), nil
}

// resolve maps key to a path under root after checking the root still
// exists.
func (s *Store) resolve(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("fs store: empty key")
	}
	if strings.HasPrefix(key, "/") || filepath.IsAbs(key) {
		return "", fmt.Errorf("fs store: absolute key %q", key)
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("fs store: key %q escapes the directory", key)
	}
	st, err := os.Stat(s.root)
	switch {
	case err != nil:
		return "", fmt.Errorf("%w: %s: %v", ErrRootUnavailable, s.root, err)
	case !st.IsDir():
		return "", fmt.Errorf("%w: %s is not a directory", ErrRootUnavailable, s.root)
	}
	return filepath.Join(s.root, clean), nil
}

func describe(key string, st os.FileInfo) core.Info {
	return core.Info{
		Key:          key,
		Size:         st.Size(),
		ContentType:  mime.TypeByExtension(filepath.Ext(key)),
		Revision:     strconv.FormatInt(st.ModTime().UnixNano(), 36) + "-" + strconv.FormatInt(st.Size(), 36),
		LastModified: st.ModTime().UTC(),
	}
}
