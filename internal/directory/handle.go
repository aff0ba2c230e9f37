package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"worksite/internal/blob"
)

// Handle locates a linked directory. It is the capability reference that is
// persisted across restarts; holding one grants nothing by itself.
type Handle struct {
	Driver    blob.Driver `json:"driver"`
	Root      string      `json:"root,omitempty"`
	Bucket    string      `json:"bucket,omitempty"`
	Prefix    string      `json:"prefix,omitempty"`
	Region    string      `json:"region,omitempty"`
	Endpoint  string      `json:"endpoint,omitempty"`
	PathStyle bool        `json:"pathStyle,omitempty"`
}

// ParseLocator turns a user-supplied locator into a Handle. Supported forms are
// s3://bucket/prefix, memory:name and plain filesystem paths.
func ParseLocator(locator string) (Handle, error) {
	locator = strings.TrimSpace(locator)
	switch {
	case locator == "":
		return Handle{}, errors.New("empty directory locator")
	case strings.HasPrefix(locator, "s3://"):
		rest := strings.TrimPrefix(locator, "s3://")
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return Handle{}, fmt.Errorf("s3 locator %q has no bucket", locator)
		}
		return Handle{Driver: blob.DriverS3, Bucket: bucket, Prefix: strings.Trim(prefix, "/")}, nil
	case strings.HasPrefix(locator, "memory:"):
		return Handle{Driver: blob.DriverMemory, Root: strings.TrimPrefix(locator, "memory:")}, nil
	default:
		abs, err := filepath.Abs(locator)
		if err != nil {
			return Handle{}, err
		}
		return Handle{Driver: blob.DriverFilesystem, Root: abs}, nil
	}
}

// String renders the handle as a locator.
func (h Handle) String() string {
	switch h.Driver {
	case blob.DriverS3:
		if h.Prefix == "" {
			return "s3://" + h.Bucket
		}
		return "s3://" + h.Bucket + "/" + h.Prefix
	case blob.DriverMemory:
		return "memory:" + h.Root
	default:
		return h.Root
	}
}

// BlobConfig maps the handle onto a blob store configuration.
func (h Handle) BlobConfig() blob.Config {
	return blob.Config{
		Driver:    h.Driver,
		Root:      h.Root,
		Bucket:    h.Bucket,
		Prefix:    h.Prefix,
		Region:    h.Region,
		Endpoint:  h.Endpoint,
		PathStyle: h.PathStyle,
	}
}

func encodeHandle(h Handle) ([]byte, error) { return json.Marshal(h) }

func decodeHandle(data []byte) (Handle, error) {
	var h Handle
	if err := json.Unmarshal(data, &h); err != nil {
		return Handle{}, fmt.Errorf("decode directory handle: %w", err)
	}
	if h.Driver == "" {
		return Handle{}, errors.New("decode directory handle: missing driver")
	}
	return h, nil
}

// Picker acquires a handle in response to a user gesture.
type Picker interface {
	Pick(ctx context.Context) (Handle, error)
}

// PickerFunc adapts a function to Picker.
type PickerFunc func(ctx context.Context) (Handle, error)

// Pick calls f.
func (f PickerFunc) Pick(ctx context.Context) (Handle, error) { return f(ctx) }

// StaticPicker always returns the same handle.
func StaticPicker(h Handle) Picker {
	return PickerFunc(func(context.Context) (Handle, error) { return h, nil })
}

// Prompter asks whether the held handle may be elevated to read-write. An
// implementation may never answer; the channel bounds the wait.
type Prompter interface {
	Prompt(ctx context.Context, h Handle) (bool, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, h Handle) (bool, error)

// Prompt calls f.
func (f PrompterFunc) Prompt(ctx context.Context, h Handle) (bool, error) { return f(ctx, h) }

// AutoGrant grants every request.
var AutoGrant Prompter = PrompterFunc(func(context.Context, Handle) (bool, error) { return true, nil })

// HandleStore persists the handle reference. cache.Layer implements it.
type HandleStore interface {
	SaveHandle(ctx context.Context, data []byte) error
	LoadHandle(ctx context.Context) ([]byte, bool, error)
	ClearHandle(ctx context.Context) error
}

// Opener turns a granted handle into a blob store.
type Opener func(ctx context.Context, h Handle) (blob.Store, error)

// OpenBlob is the default Opener.
func OpenBlob(ctx context.Context, h Handle) (blob.Store, error) {
	return blob.Open(ctx, h.BlobConfig())
}
