// Package s3 stores objects in one S3 or MinIO bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"worksite/internal/blob/core"
)

// Config selects the bucket. Static keys are optional; without them the
// default AWS credential chain applies.
type Config struct {
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
}

// Store implements core.Store over a single bucket.
type Store struct {
	client *s3.Client
	bucket string
}

// New builds the SDK client described by cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 store: bucket required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 store: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverS3 }

// Put uploads the object in one PutObject call, which S3 applies
// atomically.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	in := &s3.PutObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key), Body: r}
	if opts.ContentType != "" {
		in.ContentType = aws.String(opts.ContentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return core.Info{}, fmt.Errorf("s3 put %s/%s: %w", s.bucket, key, err)
	}
	return s.Stat(ctx, key)
}

func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return core.Info{}, nil, s.wrap("get", key, err)
	}
	info := objectInfo(key, out.ContentLength, out.ContentType, out.ETag, out.LastModified)
	return info, out.Body, nil
}

func (s *Store) Stat(ctx context.Context, key string) (core.Info, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return core.Info{}, s.wrap("head", key, err)
	}
	return objectInfo(key, out.ContentLength, out.ContentType, out.ETag, out.LastModified), nil
}

func objectInfo(key string, size *int64, contentType, etag *string, modified *time.Time) core.Info {
	return core.Info{
		Key:          key,
		Size:         aws.ToInt64(size),
		ContentType:  aws.ToString(contentType),
		Revision:     strings.Trim(aws.ToString(etag), `"`),
		LastModified: aws.ToTime(modified).UTC(),
	}
}

// wrap folds the SDK's not-found shapes into core.ErrNotFound. HEAD
// responses carry no body, so a bare 404 only shows up as a status code.
func (s *Store) wrap(op, key string, err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var resp *awshttp.ResponseError
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) ||
		(errors.As(err, &resp) && resp.HTTPStatusCode() == http.StatusNotFound) {
		return fmt.Errorf("s3 %s %s/%s: %w", op, s.bucket, key, core.ErrNotFound)
	}
	return fmt.Errorf("s3 %s %s/%s: %w", op, s.bucket, key, err)
}
