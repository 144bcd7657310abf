// Package blobstore implements the S3-compatible object store the
// Machinist and Archivist pipelines read originals from and write
// derivatives and preservation bundles to.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"archivehub/internal/config"
	"archivehub/internal/errs"
)

// BucketLabel identifies which configured bucket a key lives in.
type BucketLabel string

const (
	BucketStandard BucketLabel = "standard"
	BucketArchive  BucketLabel = "archive"
)

// Store wraps an S3 client bound to the two configured buckets.
type Store struct {
	client         *s3.Client
	standardBucket string
	archiveBucket  string
}

// New builds a Store using the same custom-endpoint-resolver pattern the
// teacher uses for S3-compatible object stores (MinIO, B2, etc).
func New(ctx context.Context, cfg config.Config) (*Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.BlobRegion),
	}
	if cfg.BlobEndpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.BlobEndpoint,
					HostnameImmutable: cfg.BlobPathStyle,
					SigningRegion:     cfg.BlobRegion,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.BlobPathStyle
	})
	return &Store{
		client:         client,
		standardBucket: cfg.BlobBucketStandard,
		archiveBucket:  cfg.BlobBucketArchive,
	}, nil
}

func (s *Store) bucketFor(label BucketLabel) string {
	if label == BucketArchive {
		return s.archiveBucket
	}
	return s.standardBucket
}

// Exists reports whether key is already present in the given bucket,
// backing the "exists?-then-skip" idempotency the derivative and
// preservation-bundle steps rely on.
func (s *Store) Exists(ctx context.Context, label BucketLabel, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucketFor(label)),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, &errs.StoreError{Transient: true, Message: "head object " + key, Cause: err}
}

// isNotFound matches both the typed NotFound error HeadObject returns and
// the generic 404 status code response error GetObject/HeadObject can
// surface through smithy's HTTP transport.
func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 404
	}
	return false
}

// Put uploads body to key in the given bucket.
func (s *Store) Put(ctx context.Context, label BucketLabel, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketFor(label)),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return &errs.StoreError{Transient: true, Message: "put object " + key, Cause: err}
	}
	return nil
}

// PutIfAbsent uploads body only if key does not already exist, implementing
// the idempotent upload semantics spec section 4.6 requires for
// derivatives and the preservation bundle.
func (s *Store) PutIfAbsent(ctx context.Context, label BucketLabel, key string, body []byte, contentType string) (uploaded bool, err error) {
	exists, err := s.Exists(ctx, label, key)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := s.Put(ctx, label, key, body, contentType); err != nil {
		return false, err
	}
	return true, nil
}

// Get downloads key from the given bucket, bounded by maxBytes.
func (s *Store) Get(ctx context.Context, label BucketLabel, key string, maxBytes int64) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketFor(label)),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, &errs.ResourceError{Code: "not_found", Message: "object not found: " + key}
		}
		return nil, &errs.StoreError{Transient: true, Message: "get object " + key, Cause: err}
	}
	defer out.Body.Close()
	limited := io.LimitReader(out.Body, maxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, &errs.StoreError{Transient: true, Message: "read object body " + key, Cause: err}
	}
	if int64(len(data)) > maxBytes {
		return nil, &errs.ResourceError{Code: "object_too_large", Message: fmt.Sprintf("object %s exceeds %d bytes", key, maxBytes)}
	}
	return data, nil
}
