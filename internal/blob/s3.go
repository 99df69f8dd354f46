package blob

import (
	"context"

	infraS3 "cellenics/internal/infra/blob/s3"
)

// S3Config re-exports the infra S3 configuration type.
type S3Config = infraS3.Config

// NewS3 constructs an S3-backed blob.Store from the provided configuration.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// OpenFromEnv constructs an S3 store using environment variables.
func OpenFromEnv(ctx context.Context) (Store, error) {
	return infraS3.OpenFromEnv(ctx)
}

// S3Mock re-exports the in-memory S3 transport fake.
type S3Mock = infraS3.Mock

// NewMockS3ForTests exposes the lightweight in-memory S3 fake for cross-package tests.
func NewMockS3ForTests() (Store, *S3Mock) { return infraS3.NewMockForTests() }
