package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"cellenics/internal/table"
	"cellenics/internal/table/core"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const experiments = "experiments-test"

func resolve(string) (core.KeySchema, error) { return core.KeySchema{Partition: "experimentId"}, nil }

func seeded(t *testing.T, n, pageSize int) *table.MemoryStore {
	t.Helper()
	store := table.NewMemory(resolve)
	store.SetPageSize(pageSize)
	recs := make([]core.Record, 0, n)
	for i := 0; i < n; i++ {
		recs = append(recs, core.Record{"experimentId": fmt.Sprintf("e%03d", i)})
	}
	require.NoError(t, store.BatchWrite(context.Background(), experiments, recs))
	return store
}

func TestScanYieldsEveryRecordExactlyOnce(t *testing.T) {
	store := seeded(t, 100, 3)
	const segments = 7
	for p := 1; p <= segments; p++ {
		t.Run(fmt.Sprintf("concurrency=%d", p), func(t *testing.T) {
			s, err := New(store, Options{Concurrency: p, Segments: segments})
			require.NoError(t, err)

			seen := map[string]int{}
			for rec, err := range s.Scan(context.Background(), experiments) {
				require.NoError(t, err)
				seen[rec["experimentId"].(string)]++
			}
			assert.Len(t, seen, 100)
			for id, n := range seen {
				assert.Equal(t, 1, n, "record %s", id)
			}
		})
	}
}

func TestScanKeepsPageOrderWithinSegment(t *testing.T) {
	store := seeded(t, 60, 2)
	s, err := New(store, Options{Concurrency: 4, Segments: 5})
	require.NoError(t, err)

	bySegment := map[int][]string{}
	for rec, err := range s.Scan(context.Background(), experiments) {
		require.NoError(t, err)
		id := rec["experimentId"].(string)
		seg := core.SegmentOf(id, s.Segments())
		bySegment[seg] = append(bySegment[seg], id)
	}
	for seg, ids := range bySegment {
		assert.True(t, sort.StringsAreSorted(ids), "segment %d out of order: %v", seg, ids)
	}
}

func TestSegmentsRaisedToConcurrency(t *testing.T) {
	store := seeded(t, 10, 100)
	s, err := New(store, Options{Concurrency: 8, Segments: 2})
	require.NoError(t, err)
	assert.Equal(t, 8, s.Segments())
	assert.Equal(t, 8, s.Concurrency())

	d, err := New(store, Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultSegments, d.Segments())
	assert.Equal(t, DefaultConcurrency, d.Concurrency())

	var mu sync.Mutex
	totals := map[int]bool{}
	store.SetHooks(table.MemoryHooks{ScanSegment: func(_ string, segment int) error {
		mu.Lock()
		defer mu.Unlock()
		totals[segment] = true
		return nil
	}})
	recs, err := s.ScanAll(context.Background(), experiments)
	require.NoError(t, err)
	assert.Len(t, recs, 10)
	assert.Len(t, totals, 8)
}

func TestScanFailureIsYieldedLast(t *testing.T) {
	store := seeded(t, 50, 2)
	boom := errors.New("throttled")
	store.SetHooks(table.MemoryHooks{ScanSegment: func(_ string, segment int) error {
		if segment == 3 {
			return boom
		}
		return nil
	}})
	s, err := New(store, Options{Concurrency: 2, Segments: 6})
	require.NoError(t, err)

	var errs []error
	var afterErr int
	for _, err := range s.Scan(context.Background(), experiments) {
		if len(errs) > 0 {
			afterErr++
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
	assert.Zero(t, afterErr, "nothing may follow the error")

	_, err = s.ScanAll(context.Background(), experiments)
	assert.ErrorIs(t, err, boom)
}

func TestBreakCancelsOutstandingReads(t *testing.T) {
	store := seeded(t, 200, 1)
	s, err := New(store, Options{Concurrency: 4, Segments: 4})
	require.NoError(t, err)

	for range s.Scan(context.Background(), experiments) {
		break
	}
	calls := store.Calls()
	// Workers have exited once the iterator returns; no further reads happen.
	for range 3 {
		assert.Equal(t, calls, store.Calls())
	}
	assert.Less(t, calls, int64(200))
}

func TestScanHonoursCancelledContext(t *testing.T) {
	store := seeded(t, 10, 2)
	s, err := New(store, Options{Concurrency: 2, Segments: 2})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.ScanAll(ctx, experiments)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanEmptyTable(t *testing.T) {
	s, err := New(table.NewMemory(resolve), Options{Concurrency: 2, Segments: 3})
	require.NoError(t, err)
	recs, err := s.ScanAll(context.Background(), experiments)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestScanMetricsAndLimiter(t *testing.T) {
	store := seeded(t, 12, 4)
	reg := prometheus.NewRegistry()
	s, err := New(store, Options{Concurrency: 2, Segments: 2, PagesPerSecond: 1000, Registerer: reg})
	require.NoError(t, err)
	require.NotNil(t, s.limiter)

	recs, err := s.ScanAll(context.Background(), experiments)
	require.NoError(t, err)
	assert.Len(t, recs, 12)
	assert.Equal(t, float64(12), testutil.ToFloat64(s.metrics.records.WithLabelValues(experiments)))
	assert.GreaterOrEqual(t, testutil.ToFloat64(s.metrics.pages.WithLabelValues(experiments)), float64(3))
	assert.Zero(t, testutil.ToFloat64(s.metrics.inFlight))

	again, err := New(store, Options{Registerer: reg})
	require.NoError(t, err, "second scanner reuses registered collectors")
	assert.Same(t, s.metrics.pages, again.metrics.pages)
}
