package blob

import (
	"cellenics/internal/errs"
	"context"
	"fmt"
	"os"
)

// Config selects and parameterises a blob driver.
type Config struct {
	Driver Driver
	// FSRoot is the directory root when Driver is fs.
	FSRoot string
	S3     S3Config
}

// Open constructs the configured blob store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: blob driver %q", errs.ErrUnknownDriver, cfg.Driver)
	}
}

// OpenEnv selects a blob.Store implementation using environment variables.
//
//	CELLENICS_BLOB_DRIVER: s3|fs|memory (default s3)
//	CELLENICS_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	(S3 specific variables documented in the s3 driver)
func OpenEnv(ctx context.Context) (Store, error) {
	driver := os.Getenv("CELLENICS_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverS3)
	}
	switch Driver(driver) {
	case DriverS3:
		return OpenFromEnv(ctx)
	default:
		return Open(ctx, Config{Driver: Driver(driver), FSRoot: os.Getenv("CELLENICS_BLOB_FS_ROOT")})
	}
}
