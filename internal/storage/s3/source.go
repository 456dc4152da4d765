package s3

import (
	"context"
	stderr "errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// GetObjectAPI is the part of the S3 client the source uses.
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Source reads cache values from objects under a bucket prefix.
type Source struct {
	client GetObjectAPI
	bucket string
	prefix string
}

// New creates a source over an existing client.
func New(client GetObjectAPI, bucket, prefix string) (*Source, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name cannot be empty")
	}
	return &Source{client: client, bucket: bucket, prefix: prefix}, nil
}

// NewFromConfig creates the client and the source in one step.
func NewFromConfig(ctx context.Context, cfg *Config) (*Source, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name cannot be empty")
	}
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(client, cfg.Bucket, cfg.Prefix)
}

// Bucket returns the bucket name.
func (s *Source) Bucket() string { return s.bucket }

// ObjectKey maps a cache key to its object key.
func (s *Source) ObjectKey(key string) string { return s.prefix + key }

// Fetch implements types.RemoteSource. A missing object is not-found.
func (s *Source) Fetch(ctx context.Context, key string) ([]byte, bool, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.ObjectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("GetObject failed for %s: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, true, nil
}

func isNotFound(err error) bool {
	if isErrorType[*s3types.NoSuchKey](err) || isErrorType[*s3types.NotFound](err) {
		return true
	}
	var apiErr smithy.APIError
	if stderr.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return stderr.As(err, &target)
}
