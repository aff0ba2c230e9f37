package blob

import (
	"context"

	infraS3 "worksite/internal/infra/blob/s3"
)

// S3Config configures an S3 or MinIO bucket store.
type S3Config = infraS3.Config

// NewS3 returns a Store over one bucket.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3ForTests returns an S3 store whose HTTP transport is served from
// memory, for tests in other packages.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
