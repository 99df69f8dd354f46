package replicate

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"cellenics/internal/blob"
	"cellenics/internal/entitymodel"
	"cellenics/internal/table"

	"github.com/stretchr/testify/require"
)

const (
	origin      = "production"
	destination = "staging"
)

// backends serves one memory table store per environment and a shared blob store.
type backends struct {
	tables map[string]*table.MemoryStore
	blobs  *blob.MemoryStore
	opened atomic.Int64
}

func (b *backends) Tables(_ context.Context, env string) (table.Store, error) {
	b.opened.Add(1)
	s, ok := b.tables[env]
	if !ok {
		return nil, fmt.Errorf("no tables for %s", env)
	}
	return s, nil
}

func (b *backends) Blobs(context.Context) (blob.Store, error) {
	b.opened.Add(1)
	return b.blobs, nil
}

// calls counts every boundary call made on any store.
func (b *backends) calls() int64 {
	n := b.blobs.Calls()
	for _, s := range b.tables {
		n += s.Calls()
	}
	return n
}

func staged(name string) string { return strings.ReplaceAll(name, origin, destination) }

func newBackends(t *testing.T) *backends {
	t.Helper()
	resolve := entitymodel.Default().KeyResolver(func(s string) string { return s }, staged)
	b := &backends{
		tables: map[string]*table.MemoryStore{
			origin:      table.NewMemory(resolve),
			destination: table.NewMemory(resolve),
		},
		blobs: blob.NewMemory(),
	}
	seedProduction(t, b)
	return b
}

func seedProduction(t *testing.T, b *backends) {
	t.Helper()
	ctx := context.Background()
	src := b.tables[origin]
	write := func(tbl string, recs ...table.Record) {
		require.NoError(t, src.BatchWrite(ctx, tbl, recs))
	}
	write("experiments-production",
		table.Record{"experimentId": "e1", "projectId": "p1", "experimentName": "one", "meta": map[string]any{"organism": "hsa"}},
		table.Record{"experimentId": "e2", "projectId": "p2", "experimentName": "two"},
		table.Record{"experimentId": "e3", "projectId": "p1", "experimentName": "three"},
	)
	write("projects-production",
		table.Record{"projectUuid": "p1", "projects": map[string]any{
			"uuid": "p1", "name": "shared", "experiments": []any{"e1", "e3"}, "samples": []any{"s1"},
		}},
		table.Record{"projectUuid": "p2", "projects": map[string]any{
			"uuid": "p2", "name": "solo", "experiments": []any{"e2"}, "samples": []any{},
		}},
	)
	write("samples-production",
		table.Record{"experimentId": "e1", "projectUuid": "p1", "ids": []any{"s1"}, "samples": map[string]any{
			"s1": map[string]any{"uuid": "s1", "name": "WT", "projectUuid": "p1", "files": map[string]any{
				"barcodes10x": map[string]any{"sampleFileId": "f1", "valid": true},
			}},
		}},
	)
	write("sample-files-production",
		table.Record{"experimentId": "e1", "sampleFileId": "f1", "sampleId": "s1", "size": 10},
		table.Record{"experimentId": "e1", "sampleFileId": "f2", "sampleId": "s1", "size": 20},
	)
	write("experiment-executions-production",
		table.Record{"experimentId": "e1", "pipelineType": "qc", "stateMachineArn": "arn:qc"},
		table.Record{"experimentId": "e1", "pipelineType": "gem2s", "stateMachineArn": "arn:gem2s"},
	)
	write("plots-tables-production",
		table.Record{"experimentId": "e1", "plotUuid": "embeddingCategoricalMain", "config": map[string]any{"axes": "x"}},
	)

	put := func(container, key, body string) {
		_, err := b.blobs.Put(ctx, container, key, bytes.NewReader([]byte(body)), blob.PutOptions{})
		require.NoError(t, err)
	}
	put("biomage-source-production", "e1/r.rds", "r1")
	put("biomage-source-production", "e10/r.rds", "not e1")
	put("biomage-source-production", "e2/r.rds", "r2")
	put("processed-matrix-production", "e1/matrix.rds", "m1")
	put("cell-sets-production", "e1", "cellsets")
	put("biomage-originals-production", "p1/s1/matrix.mtx.gz", "mtx")
	put("biomage-originals-production", "p1/s1/barcodes.tsv.gz", "bc")
}

func newCoordinator(t *testing.T, b *backends) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(b, Options{Scan: scanOptions()})
	require.NoError(t, err)
	return c
}
