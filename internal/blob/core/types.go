// Package core defines core abstractions for blob storage backends
// used internally by higher-level services.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	// DriverFilesystem represents the local filesystem implementation.
	DriverFilesystem Driver = "fs" // local filesystem (dev)
	// DriverS3 represents an S3 / MinIO compatible implementation.
	DriverS3 Driver = "s3" // S3 / MinIO compatible (default)
	// DriverMemory represents an in-memory implementation typically used in tests.
	DriverMemory Driver = "memory" // in-memory (tests)
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string            // MIME type, optional
	Metadata    map[string]string // User metadata (small, flat key-value)
}

// Info describes a stored blob.
type Info struct {
	Bucket       string            `json:"bucket"`
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store provides a thin S3-like abstraction over named buckets.
type Store interface {
	Put(ctx context.Context, bucket, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, bucket, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, bucket, key string) (Info, error)
	// List returns every object whose key starts with prefix, ordered by key.
	List(ctx context.Context, bucket, prefix string) ([]Info, error)
	// Matches reports whether bucket/key exists with the given ETag. A missing
	// object or a different fingerprint is (false, nil).
	Matches(ctx context.Context, bucket, key, etag string) (bool, error)
	// Copy duplicates an object server side, replacing any existing target.
	Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (Info, error)
	Driver() Driver
}

var (
	// ErrUnsupported is returned when an optional capability is not available.
	ErrUnsupported = errors.New("blobstore: unsupported operation")
	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("blobstore: not found")
)
