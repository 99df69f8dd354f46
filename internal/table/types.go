// Package table re-exports the document-table abstractions and wraps the
// infra-backed drivers behind a single factory.
package table

import (
	"cellenics/internal/table/core"
)

type (
	// Driver identifies a table backend driver.
	Driver = core.Driver
	// Record is a single table item.
	Record = core.Record
	// Number is a decimal number value.
	Number = core.Number
	// StringSet is a string set value.
	StringSet = core.StringSet
	// NumberSet is a number set value.
	NumberSet = core.NumberSet
	// KeySchema names a table's key fields.
	KeySchema = core.KeySchema
	// KeyResolver maps physical table names to key schemas.
	KeyResolver = core.KeyResolver
	// Page is one page of a segment scan.
	Page = core.Page
	// Store is the interface for table backends.
	Store = core.Store
)

const (
	// DriverDynamoDB is the AWS DynamoDB driver.
	DriverDynamoDB = core.DriverDynamoDB
	// DriverPostgres is the Aurora/Postgres driver.
	DriverPostgres = core.DriverPostgres
	// DriverSQLite is the local SQLite driver.
	DriverSQLite = core.DriverSQLite
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

var (
	// ErrUnsupported indicates an operation isn't supported by a driver.
	ErrUnsupported = core.ErrUnsupported
	// ErrInvalidSegment indicates out of range segment arguments.
	ErrInvalidSegment = core.ErrInvalidSegment
)
