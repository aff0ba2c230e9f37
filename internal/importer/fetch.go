package importer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"worksite/internal/blob"
)

// Fetcher opens an import source locator: an http(s) URL, an s3://bucket/key
// object or a local path.
type Fetcher struct {
	Client *http.Client
	// OpenBlob builds the store for s3:// locators. Nil uses blob.Open.
	OpenBlob func(ctx context.Context, cfg blob.Config) (blob.Store, error)
	// S3 carries region and endpoint defaults for s3:// locators.
	S3 blob.Config
}

// Fetch returns a reader over the workbook bytes.
func (f *Fetcher) Fetch(ctx context.Context, locator string) (io.ReadCloser, error) {
	locator = strings.TrimSpace(locator)
	switch {
	case locator == "":
		return nil, fmt.Errorf("fetch: empty locator")
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		return f.fetchHTTP(ctx, locator)
	case strings.HasPrefix(locator, "s3://"):
		return f.fetchS3(ctx, locator)
	default:
		file, err := os.Open(strings.TrimPrefix(locator, "file://")) // #nosec G304 -- operator supplied path
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", locator, err)
		}
		return file, nil
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, url string) (io.ReadCloser, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}
	return resp.Body, nil
}

func (f *Fetcher) fetchS3(ctx context.Context, locator string) (io.ReadCloser, error) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(locator, "s3://"), "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("fetch %s: want s3://bucket/key", locator)
	}
	cfg := f.S3
	cfg.Driver = blob.DriverS3
	cfg.Bucket = bucket
	cfg.Prefix = ""
	open := f.OpenBlob
	if open == nil {
		open = blob.Open
	}
	store, err := open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", locator, err)
	}
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", locator, err)
	}
	return rc, nil
}
