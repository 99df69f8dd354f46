// Package core defines the document-table abstractions shared by the table
// drivers and the replication engine.
package core

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
)

// Driver identifies a concrete table backend implementation.
type Driver string

const (
	// DriverDynamoDB represents the AWS DynamoDB implementation.
	DriverDynamoDB Driver = "dynamodb"
	// DriverPostgres represents the Aurora/Postgres document-table implementation.
	DriverPostgres Driver = "postgres"
	// DriverSQLite represents the local SQLite document-table implementation.
	DriverSQLite Driver = "sqlite"
	// DriverMemory represents an in-memory implementation typically used in tests.
	DriverMemory Driver = "memory"
)

// Record is a single item: field name to typed value. Values are one of nil,
// bool, string, Number, []byte, []any, map[string]any, StringSet or NumberSet.
type Record map[string]any

// Number is a decimal number kept in its textual form so it round-trips exactly.
type Number string

// StringSet is a set of strings.
type StringSet []string

// NumberSet is a set of numbers.
type NumberSet []Number

// KeySchema names the key fields of a table. Sort is empty for singly keyed tables.
type KeySchema struct {
	Partition string
	Sort      string
}

// KeyResolver returns the key schema for a physical table name.
type KeyResolver func(table string) (KeySchema, error)

// Page is one page of a segment scan. An empty Next means the segment is drained.
type Page struct {
	Records []Record
	Next    string
}

// Store is the table boundary used by the replication engine.
type Store interface {
	// GetItem returns the record with the given key. found is false when absent.
	GetItem(ctx context.Context, table string, key Record) (rec Record, found bool, err error)
	// Query returns every record whose partition key field equals value.
	Query(ctx context.Context, table, field string, value any) ([]Record, error)
	// ScanSegment reads one page of one of total disjoint segments, resuming at cursor.
	ScanSegment(ctx context.Context, table string, segment, total int, cursor string) (Page, error)
	// BatchWrite puts every record, replacing existing items with the same key.
	BatchWrite(ctx context.Context, table string, records []Record) error
	// Driver returns the configured backend driver.
	Driver() Driver
}

// ErrUnsupported is returned when a driver cannot serve an operation.
var ErrUnsupported = errors.New("table: unsupported operation")

// ErrInvalidSegment is returned for out of range segment arguments.
var ErrInvalidSegment = errors.New("table: invalid segment")

// CheckSegment validates segment scan arguments.
func CheckSegment(segment, total int) error {
	if total <= 0 || segment < 0 || segment >= total {
		return fmt.Errorf("%w: segment %d of %d", ErrInvalidSegment, segment, total)
	}
	return nil
}

// Bucket hashes a partition key into a stable non-negative bucket number. Drivers
// without native parallel scan assign segments as Bucket(pk) mod total.
func Bucket(pk string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(pk))
	return int64(h.Sum32() & 0x7fffffff)
}

// SegmentOf returns the scan segment owning pk.
func SegmentOf(pk string, total int) int {
	return int(Bucket(pk) % int64(total))
}

// KeyString renders a key field value. Only strings and numbers can be keys.
func KeyString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case Number:
		return string(t), nil
	}
	if n, ok := NumberOf(v); ok {
		return string(n), nil
	}
	return "", fmt.Errorf("unsupported key value %T", v)
}

// KeyOf extracts the partition and sort key strings of rec.
func (k KeySchema) KeyOf(rec Record) (pk, sk string, err error) {
	v, ok := rec[k.Partition]
	if !ok || v == nil {
		return "", "", fmt.Errorf("record missing partition key %q", k.Partition)
	}
	if pk, err = KeyString(v); err != nil {
		return "", "", err
	}
	if k.Sort == "" {
		return pk, "", nil
	}
	v, ok = rec[k.Sort]
	if !ok || v == nil {
		return "", "", fmt.Errorf("record missing sort key %q", k.Sort)
	}
	sk, err = KeyString(v)
	return pk, sk, err
}

// Location renders the key of rec in "pk" or "pk/sk" form for reporting.
func (k KeySchema) Location(rec Record) string {
	pk, sk, err := k.KeyOf(rec)
	if err != nil {
		return "?"
	}
	if sk == "" {
		return pk
	}
	return pk + "/" + sk
}

// NumberOf converts Go numeric values into a Number.
func NumberOf(v any) (Number, bool) {
	switch t := v.(type) {
	case Number:
		return t, true
	case int:
		return Number(strconv.Itoa(t)), true
	case int32:
		return Number(strconv.FormatInt(int64(t), 10)), true
	case int64:
		return Number(strconv.FormatInt(t, 10)), true
	case uint32:
		return Number(strconv.FormatUint(uint64(t), 10)), true
	case uint64:
		return Number(strconv.FormatUint(t, 10)), true
	case float32:
		return formatFloat(float64(t))
	case float64:
		return formatFloat(t)
	}
	return "", false
}

func formatFloat(f float64) (Number, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	return Number(strconv.FormatFloat(f, 'f', -1, 64)), true
}

// Clone returns a deep copy of rec.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies a record value, preserving its dynamic type.
func CloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = CloneValue(e)
		}
		return out
	case Record:
		return t.Clone()
	case StringSet:
		out := make(StringSet, len(t))
		copy(out, t)
		return out
	case NumberSet:
		out := make(NumberSet, len(t))
		copy(out, t)
		return out
	case []byte:
		out := make([]byte, len(t))
		copy(out, t)
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}
