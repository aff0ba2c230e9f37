package blob

import (
	"context"
	"io"
	"strings"
)

// prefixed keeps one site's db.json apart from others sharing a bucket.
type prefixed struct {
	inner  Store
	prefix string
}

// WithPrefix scopes store so every key lives under prefix. An empty prefix
// returns store unchanged.
func WithPrefix(store Store, prefix string) Store {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return store
	}
	return &prefixed{inner: store, prefix: prefix + "/"}
}

func (p *prefixed) Driver() Driver { return p.inner.Driver() }

func (p *prefixed) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	info, err := p.inner.Put(ctx, p.prefix+key, r, opts)
	info.Key = key
	return info, err
}

func (p *prefixed) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	info, rc, err := p.inner.Get(ctx, p.prefix+key)
	info.Key = key
	return info, rc, err
}

func (p *prefixed) Stat(ctx context.Context, key string) (Info, error) {
	info, err := p.inner.Stat(ctx, p.prefix+key)
	info.Key = key
	return info, err
}
