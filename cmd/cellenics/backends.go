package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"cellenics/internal/blob"
	"cellenics/internal/config"
	"cellenics/internal/entitymodel"
	"cellenics/internal/replicate"
	"cellenics/internal/table"
)

type backendCloser interface {
	replicate.Backends
	io.Closer
}

// storeBackends opens each store on first use, so refused runs never connect.
type storeBackends struct {
	cfg     *config.Config
	catalog *entitymodel.Catalog
	log     *slog.Logger

	mu     sync.Mutex
	tables map[string]table.Store
	blobs  blob.Store
}

func openBackends(cfg *config.Config, catalog *entitymodel.Catalog, log *slog.Logger) *storeBackends {
	return &storeBackends{cfg: cfg, catalog: catalog, log: log, tables: map[string]table.Store{}}
}

func (b *storeBackends) Tables(ctx context.Context, env string) (table.Store, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.tables[env]; ok {
		return s, nil
	}
	tc := b.cfg.TableConfig(env)
	s, err := table.Open(ctx, tc, b.catalog.KeyResolver(b.cfg.Rename(env)))
	if err != nil {
		return nil, err
	}
	b.log.Debug("opened table store", "env", env, "driver", tc.Driver)
	b.tables[env] = s
	return s, nil
}

func (b *storeBackends) Blobs(ctx context.Context) (blob.Store, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.blobs != nil {
		return b.blobs, nil
	}
	bc := b.cfg.BlobConfig()
	s, err := blob.Open(ctx, bc)
	if err != nil {
		return nil, err
	}
	b.log.Debug("opened blob store", "driver", bc.Driver)
	b.blobs = s
	return s, nil
}

// Close releases every opened store that holds a connection.
func (b *storeBackends) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errList []error
	for env, s := range b.tables {
		if c, ok := s.(io.Closer); ok {
			errList = append(errList, c.Close())
		}
		delete(b.tables, env)
	}
	return errors.Join(errList...)
}
