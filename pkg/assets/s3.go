package assets

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the slice of the S3 client used by S3Source.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source serves resources from an S3 bucket. Useful when the inspection
// page and its assets are published alongside the service's other artifacts
// instead of being baked into the binary.
type S3Source struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Source creates an S3Source over an existing client.
func NewS3Source(client S3API, bucket, prefix string) *S3Source {
	return &S3Source{client: client, bucket: bucket, prefix: prefix}
}

// NewS3SourceFromURL creates an S3Source from an "s3://bucket/prefix" URL
// using the default AWS credential chain.
func NewS3SourceFromURL(ctx context.Context, raw string) (*S3Source, error) {
	rest := strings.TrimPrefix(raw, "s3://")
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return nil, fmt.Errorf("assets: invalid s3 root %q", raw)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("assets: load aws config: %w", err)
	}
	return NewS3Source(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// Load fetches the object at prefix + name.
func (s *S3Source) Load(ctx context.Context, name string) ([]byte, error) {
	rel, ok := sanitize(name)
	if !ok {
		return nil, ErrNotFound
	}

	key := rel
	if s.prefix != "" {
		key = strings.TrimSuffix(s.prefix, "/") + "/" + rel
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("assets: get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("assets: read s3://%s/%s: %w", s.bucket, key, err)
	}
	return body, nil
}
