// Package sqlite provides a local SQLite-backed document table used for
// development environments and tests.
package sqlite

import (
	"cellenics/internal/infra/table/sqldoc"
	"cellenics/internal/table/core"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Store is a sqldoc store on a SQLite file.
type Store struct {
	*sqldoc.Store
}

// NewStore opens (creating when needed) the SQLite database at path.
func NewStore(ctx context.Context, path string, resolve core.KeyResolver) (*Store, error) {
	if path == "" {
		path = "cellenics.db"
	}
	if !strings.HasPrefix(path, ":memory:") && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps :memory: databases shared and serialises writers
	db.SetMaxOpenConns(1)
	inner, err := sqldoc.New(ctx, db, sqldoc.SQLite, resolve)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: inner}, nil
}
