package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/awsclients"
	"github.com/SulemanHamdani/satellite-pipeline-with-aws/internal/errcode"
)

// Store wraps the S3 client calls the tile processor needs: uploading
// fetched imagery and downloading it back when a checkpoint already
// exists.
type Store struct {
	client awsclients.S3Client
	bucket string
	region string
}

// New builds a Store bound to bucket.
func New(client awsclients.S3Client, bucket, region string) *Store {
	return &Store{client: client, bucket: bucket, region: region}
}

// Bucket returns the configured bucket name.
func (s *Store) Bucket() string { return s.bucket }

// Upload writes data to key under the configured bucket with contentType.
func (s *Store) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return &StoreError{Code: errcode.S3PutFailed, Err: fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)}
	}
	return nil
}

// Download reads the object at key back from the configured bucket.
// Used on retry when a checkpoint already recorded a successful upload,
// so the tile processor can skip re-fetching from the imagery API.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return nil, &StoreError{Code: errcode.S3GetFailed, Err: fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &StoreError{Code: errcode.S3GetFailed, Err: fmt.Errorf("read s3://%s/%s: %w", s.bucket, key, err)}
	}
	return data, nil
}

// URL builds the virtual-hosted-style URL for key under the configured
// bucket and region.
func (s *Store) URL(key string) string {
	return URL(s.bucket, key, s.region)
}

// StoreError wraps an S3 failure with its error taxonomy code.
type StoreError struct {
	Code errcode.Code
	Err  error
}

func (e *StoreError) Error() string { return fmt.Sprintf("%s: %v", e.Code, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }
