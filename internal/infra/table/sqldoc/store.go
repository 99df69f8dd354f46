// Package sqldoc stores document-table records in a single SQL table so the
// SQLite and Postgres drivers share one implementation of the table boundary.
// Each row keeps the logical table name, the rendered key, a hash bucket used
// to split parallel scans into segments, and the record as typed JSON.
package sqldoc

import (
	"cellenics/internal/table/core"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const defaultPageSize = 100

// Dialect captures the differences between SQL engines.
type Dialect struct {
	Driver core.Driver
	// Numbered placeholders ($1, $2, ...) instead of '?'.
	Numbered bool
}

// SQLite is the modernc.org/sqlite dialect.
var SQLite = Dialect{Driver: core.DriverSQLite}

// Postgres is the pgx dialect.
var Postgres = Dialect{Driver: core.DriverPostgres, Numbered: true}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		tbl TEXT NOT NULL,
		pk TEXT NOT NULL,
		sk TEXT NOT NULL,
		bucket INTEGER NOT NULL,
		doc TEXT NOT NULL,
		PRIMARY KEY (tbl, pk, sk)
	)`,
	`CREATE INDEX IF NOT EXISTS items_bucket ON items (tbl, bucket)`,
}

// Store implements core.Store on top of database/sql.
type Store struct {
	db       *sql.DB
	dialect  Dialect
	resolve  core.KeyResolver
	pageSize int
}

// New wraps db, creating the items table when missing.
func New(ctx context.Context, db *sql.DB, dialect Dialect, resolve core.KeyResolver) (*Store, error) {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("ensure items table: %w", err)
		}
	}
	return &Store{db: db, dialect: dialect, resolve: resolve, pageSize: defaultPageSize}, nil
}

// SetPageSize changes the number of records returned per scan page.
func (s *Store) SetPageSize(n int) {
	if n > 0 {
		s.pageSize = n
	}
}

// Close closes the underlying handle.
func (s *Store) Close() error { return s.db.Close() }

// Driver returns the dialect's driver identifier.
func (s *Store) Driver() core.Driver { return s.dialect.Driver }

func (s *Store) rebind(query string) string {
	if !s.dialect.Numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// GetItem returns the record stored under key.
func (s *Store) GetItem(ctx context.Context, table string, key core.Record) (core.Record, bool, error) {
	ks, err := s.resolve(table)
	if err != nil {
		return nil, false, err
	}
	pk, sk, err := ks.KeyOf(key)
	if err != nil {
		return nil, false, err
	}
	var doc string
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT doc FROM items WHERE tbl = ? AND pk = ? AND sk = ?`), table, pk, sk).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", table, pk, err)
	}
	rec, err := core.UnmarshalRecord([]byte(doc))
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Query returns all records of one partition ordered by sort key.
func (s *Store) Query(ctx context.Context, table, field string, value any) ([]core.Record, error) {
	ks, err := s.resolve(table)
	if err != nil {
		return nil, err
	}
	if field != ks.Partition {
		return nil, fmt.Errorf("query %s on %q: %w", table, field, core.ErrUnsupported)
	}
	pk, err := core.KeyString(value)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT doc FROM items WHERE tbl = ? AND pk = ? ORDER BY sk`), table, pk)
	if err != nil {
		return nil, fmt.Errorf("query %s/%s: %w", table, pk, err)
	}
	defer func() { _ = rows.Close() }()
	var out []core.Record
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec, err := core.UnmarshalRecord([]byte(doc))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type cursor struct {
	PK string `json:"pk"`
	SK string `json:"sk"`
}

// ScanSegment pages through one hash-bucket segment using keyset pagination on (pk, sk).
func (s *Store) ScanSegment(ctx context.Context, table string, segment, total int, after string) (core.Page, error) {
	if err := core.CheckSegment(segment, total); err != nil {
		return core.Page{}, err
	}
	query := `SELECT pk, sk, doc FROM items WHERE tbl = ? AND bucket % ? = ?`
	args := []any{table, int64(total), int64(segment)}
	if after != "" {
		var c cursor
		if err := json.Unmarshal([]byte(after), &c); err != nil {
			return core.Page{}, fmt.Errorf("invalid cursor: %w", err)
		}
		query += ` AND (pk > ? OR (pk = ? AND sk > ?))`
		args = append(args, c.PK, c.PK, c.SK)
	}
	query += ` ORDER BY pk, sk LIMIT ?`
	args = append(args, int64(s.pageSize+1))

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return core.Page{}, fmt.Errorf("scan %s segment %d: %w", table, segment, err)
	}
	defer func() { _ = rows.Close() }()
	var page core.Page
	var last cursor
	more := false
	for rows.Next() {
		if len(page.Records) == s.pageSize {
			more = true
			break
		}
		var pk, sk, doc string
		if err := rows.Scan(&pk, &sk, &doc); err != nil {
			return core.Page{}, fmt.Errorf("scan row: %w", err)
		}
		rec, err := core.UnmarshalRecord([]byte(doc))
		if err != nil {
			return core.Page{}, err
		}
		page.Records = append(page.Records, rec)
		last = cursor{PK: pk, SK: sk}
	}
	if err := rows.Err(); err != nil {
		return core.Page{}, err
	}
	if more {
		next, err := json.Marshal(last)
		if err != nil {
			return core.Page{}, err
		}
		page.Next = string(next)
	}
	return page, nil
}

type row struct {
	pk, sk string
	doc    []byte
}

// BatchWrite upserts records inside one transaction.
func (s *Store) BatchWrite(ctx context.Context, table string, records []core.Record) error {
	if len(records) == 0 {
		return nil
	}
	ks, err := s.resolve(table)
	if err != nil {
		return err
	}
	rows := make([]row, 0, len(records))
	for i, rec := range records {
		pk, sk, err := ks.KeyOf(rec)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		doc, err := core.MarshalRecord(rec)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		rows = append(rows, row{pk: pk, sk: sk, doc: doc})
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	stmt := s.rebind(`INSERT INTO items (tbl, pk, sk, bucket, doc) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (tbl, pk, sk) DO UPDATE SET bucket = excluded.bucket, doc = excluded.doc`)
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, stmt, table, r.pk, r.sk, core.Bucket(r.pk), string(r.doc)); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", table, r.pk, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}
