package table

import (
	"cellenics/internal/errs"
	infraDynamo "cellenics/internal/infra/table/dynamodb"
	infraMemory "cellenics/internal/infra/table/memory"
	infraPostgres "cellenics/internal/infra/table/postgres"
	infraSQLite "cellenics/internal/infra/table/sqlite"
	"context"
	"fmt"
	"os"
)

// Config selects and parameterises a table driver.
type Config struct {
	Driver Driver
	// Region and Endpoint apply to the dynamodb driver.
	Region   string
	Endpoint string
	// DSN applies to the postgres driver.
	DSN string
	// Path applies to the sqlite driver.
	Path string
}

type (
	// MemoryStore is the in-memory driver, exposed for tests and dry runs.
	MemoryStore = infraMemory.Store
	// MemoryHooks inject failures into a MemoryStore.
	MemoryHooks = infraMemory.Hooks
)

// NewMemory returns an empty in-memory table store.
func NewMemory(resolve KeyResolver) *MemoryStore { return infraMemory.New(resolve) }

// ConfigFromEnv reads driver settings from the environment.
//
//	CELLENICS_TABLE_DRIVER: dynamodb|postgres|sqlite|memory (default dynamodb)
//	CELLENICS_REGION: AWS region for dynamodb
//	CELLENICS_TABLE_DYNAMODB_ENDPOINT: endpoint override (DynamoDB Local)
//	CELLENICS_TABLE_POSTGRES_DSN: DSN when driver=postgres
//	CELLENICS_TABLE_SQLITE_PATH: database file when driver=sqlite
func ConfigFromEnv() Config {
	driver := os.Getenv("CELLENICS_TABLE_DRIVER")
	if driver == "" {
		driver = string(DriverDynamoDB)
	}
	return Config{
		Driver:   Driver(driver),
		Region:   os.Getenv("CELLENICS_REGION"),
		Endpoint: os.Getenv("CELLENICS_TABLE_DYNAMODB_ENDPOINT"),
		DSN:      os.Getenv("CELLENICS_TABLE_POSTGRES_DSN"),
		Path:     os.Getenv("CELLENICS_TABLE_SQLITE_PATH"),
	}
}

// Open constructs the configured table store.
func Open(ctx context.Context, cfg Config, resolve KeyResolver) (Store, error) {
	switch cfg.Driver {
	case DriverDynamoDB:
		return infraDynamo.New(ctx, infraDynamo.Config{Region: cfg.Region, Endpoint: cfg.Endpoint}, resolve)
	case DriverPostgres:
		return infraPostgres.NewStore(ctx, cfg.DSN, resolve)
	case DriverSQLite:
		return infraSQLite.NewStore(ctx, cfg.Path, resolve)
	case DriverMemory:
		return NewMemory(resolve), nil
	default:
		return nil, fmt.Errorf("%w: table driver %q", errs.ErrUnknownDriver, cfg.Driver)
	}
}

// NewMockDynamoForTests exposes the DynamoDB protocol fake for cross-package tests.
func NewMockDynamoForTests(resolve KeyResolver) (Store, *infraDynamo.Mock) {
	return infraDynamo.NewMockForTests(resolve)
}
