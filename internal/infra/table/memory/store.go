// Package memory implements an in-memory table Store for tests and dry runs.
package memory

import (
	"cellenics/internal/table/core"
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
)

const defaultPageSize = 100

// Hooks inject failures into the store. A nil hook never fails.
type Hooks struct {
	// BatchWrite is consulted before each BatchWrite call.
	BatchWrite func(table string, records []core.Record) error
	// ScanSegment is consulted before each ScanSegment call.
	ScanSegment func(table string, segment int) error
	// GetItem is consulted before each GetItem call.
	GetItem func(table string, key core.Record) error
}

// Store implements core.Store backed by process memory.
type Store struct {
	mu       sync.RWMutex
	tables   map[string]map[string]core.Record
	resolve  core.KeyResolver
	pageSize int
	hooks    Hooks
	calls    atomic.Int64
}

// New returns an in-memory table store. resolve supplies key schemas for writes.
func New(resolve core.KeyResolver) *Store {
	return &Store{tables: make(map[string]map[string]core.Record), resolve: resolve, pageSize: defaultPageSize}
}

// SetPageSize changes the number of records returned per scan page.
func (s *Store) SetPageSize(n int) {
	if n > 0 {
		s.pageSize = n
	}
}

// SetHooks installs failure hooks.
func (s *Store) SetHooks(h Hooks) {
	s.mu.Lock()
	s.hooks = h
	s.mu.Unlock()
}

// Calls returns the number of boundary calls served so far.
func (s *Store) Calls() int64 { return s.calls.Load() }

// Driver returns the table driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

func itemKey(pk, sk string) string { return pk + "\x00" + sk }

// GetItem returns a copy of the record matching key.
func (s *Store) GetItem(ctx context.Context, table string, key core.Record) (core.Record, bool, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	hook := s.hooks.GetItem
	s.mu.RUnlock()
	if hook != nil {
		if err := hook(table, key); err != nil {
			return nil, false, err
		}
	}
	schema, err := s.resolve(table)
	if err != nil {
		return nil, false, err
	}
	pk, sk, err := schema.KeyOf(key)
	if err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tables[table][itemKey(pk, sk)]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

// Query returns copies of all records whose partition key equals value, ordered by sort key.
func (s *Store) Query(ctx context.Context, table, field string, value any) ([]core.Record, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	schema, err := s.resolve(table)
	if err != nil {
		return nil, err
	}
	if field != schema.Partition {
		return nil, fmt.Errorf("query %s on %q: %w", table, field, core.ErrUnsupported)
	}
	want, err := core.KeyString(value)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Record
	for _, k := range s.sortedKeys(table) {
		rec := s.tables[table][k]
		pk, _, _ := schema.KeyOf(rec)
		if pk == want {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// ScanSegment returns one page of records in segment. The cursor is the offset
// into the segment's key-ordered item list.
func (s *Store) ScanSegment(ctx context.Context, table string, segment, total int, cursor string) (core.Page, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return core.Page{}, err
	}
	if err := core.CheckSegment(segment, total); err != nil {
		return core.Page{}, err
	}
	s.mu.RLock()
	hook := s.hooks.ScanSegment
	s.mu.RUnlock()
	if hook != nil {
		if err := hook(table, segment); err != nil {
			return core.Page{}, err
		}
	}
	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return core.Page{}, fmt.Errorf("invalid cursor %q", cursor)
		}
		start = n
	}
	schema, err := s.resolve(table)
	if err != nil {
		return core.Page{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var members []core.Record
	for _, k := range s.sortedKeys(table) {
		rec := s.tables[table][k]
		pk, _, _ := schema.KeyOf(rec)
		if core.SegmentOf(pk, total) == segment {
			members = append(members, rec)
		}
	}
	if start >= len(members) {
		return core.Page{}, nil
	}
	end := start + s.pageSize
	page := core.Page{}
	if end < len(members) {
		page.Next = strconv.Itoa(end)
	} else {
		end = len(members)
	}
	for _, rec := range members[start:end] {
		page.Records = append(page.Records, rec.Clone())
	}
	return page, nil
}

// BatchWrite stores copies of records, replacing items with equal keys. The batch
// is validated before any record is applied so a failed batch leaves no partial write.
func (s *Store) BatchWrite(ctx context.Context, table string, records []core.Record) error {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	hook := s.hooks.BatchWrite
	s.mu.RUnlock()
	if hook != nil {
		if err := hook(table, records); err != nil {
			return err
		}
	}
	schema, err := s.resolve(table)
	if err != nil {
		return err
	}
	keys := make([]string, len(records))
	for i, rec := range records {
		pk, sk, err := schema.KeyOf(rec)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if _, err := core.EncodeRecord(rec); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		keys[i] = itemKey(pk, sk)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[table]
	if !ok {
		t = make(map[string]core.Record)
		s.tables[table] = t
	}
	for i, rec := range records {
		t[keys[i]] = rec.Clone()
	}
	return nil
}

// Len returns the number of records in table.
func (s *Store) Len(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

// sortedKeys must be called with mu held.
func (s *Store) sortedKeys(table string) []string {
	keys := make([]string, 0, len(s.tables[table]))
	for k := range s.tables[table] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
