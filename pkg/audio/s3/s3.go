// Package s3 serves audio objects from Amazon S3 (or any S3-compatible store)
// for "s3://bucket/key" URIs.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/MrWong99/vibejournal/pkg/audio"
)

var _ audio.Source = (*Source)(nil)

// GetObjectAPI is the subset of [s3.Client] used by [Source].
type GetObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Source opens "s3://" URIs.
type Source struct {
	client GetObjectAPI
}

// New loads the default AWS configuration for region and returns a Source.
// An empty region defers to the environment (AWS_REGION).
func New(ctx context.Context, region string) (*Source, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 source: load aws config: %w", err)
	}
	return NewWithClient(s3.NewFromConfig(cfg)), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(c GetObjectAPI) *Source {
	return &Source{client: c}
}

// Open implements [audio.Source].
func (s *Source) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, key, err := splitURI(uri)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 source: get %s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

func splitURI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("s3 source: parse %q: %w", uri, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("s3 source: %w: %q", audio.ErrUnsupportedScheme, u.Scheme)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", errors.New("s3 source: URI must be s3://bucket/key")
	}
	return u.Host, key, nil
}
