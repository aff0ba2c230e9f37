package blob

import (
	"context"
	"fmt"
)

// Config selects and parameterises a blob.Store.
type Config struct {
	Driver    Driver
	Root      string // fs driver directory
	Bucket    string // s3 bucket
	Prefix    string // key prefix applied by every driver
	Region    string
	Endpoint  string
	PathStyle bool
}

// Open builds the Store described by cfg. An empty driver selects fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case "", DriverFilesystem:
		store, err = NewFilesystem(cfg.Root)
	case DriverS3:
		store, err = NewS3(ctx, S3Config{
			Region:    cfg.Region,
			Bucket:    cfg.Bucket,
			Endpoint:  cfg.Endpoint,
			PathStyle: cfg.PathStyle,
		})
	case DriverMemory:
		store = NewMemory()
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return WithPrefix(store, cfg.Prefix), nil
}
