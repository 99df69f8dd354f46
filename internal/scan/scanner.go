// Package scan enumerates every record of a table through a bounded pool of
// workers reading disjoint segments page by page.
package scan

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"cellenics/internal/table/core"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultConcurrency is the number of workers used when Options.Concurrency is unset.
	DefaultConcurrency = 5
	// DefaultSegments is the number of segments used when Options.Segments is unset.
	DefaultSegments = 25
)

// Options configures a Scanner.
type Options struct {
	// Concurrency bounds the number of page reads in flight.
	Concurrency int
	// Segments is the number of disjoint partitions of the table. Values below
	// Concurrency are raised to Concurrency so no worker idles.
	Segments int
	// PagesPerSecond caps page reads across all workers. Zero disables the limit.
	PagesPerSecond float64
	// Registerer receives scan metrics when non-nil.
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

// Scanner performs segmented parallel scans over a table store.
type Scanner struct {
	store       core.Store
	concurrency int
	segments    int
	limiter     *rate.Limiter
	metrics     *scanMetrics
	log         *slog.Logger
}

type task struct {
	segment int
	cursor  string
}

type result struct {
	segment int
	page    core.Page
}

// New constructs a Scanner. It fails only when metrics cannot be registered.
func New(store core.Store, opts Options) (*Scanner, error) {
	p := opts.Concurrency
	if p <= 0 {
		p = DefaultConcurrency
	}
	s := opts.Segments
	if s <= 0 {
		s = DefaultSegments
	}
	if s < p {
		s = p
	}
	m, err := newMetrics(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register scan metrics: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	sc := &Scanner{store: store, concurrency: p, segments: s, metrics: m, log: log}
	if opts.PagesPerSecond > 0 {
		burst := int(opts.PagesPerSecond)
		if burst < 1 {
			burst = 1
		}
		sc.limiter = rate.NewLimiter(rate.Limit(opts.PagesPerSecond), burst)
	}
	return sc, nil
}

// Concurrency returns the effective worker count.
func (s *Scanner) Concurrency() int { return s.concurrency }

// Segments returns the effective segment count.
func (s *Scanner) Segments() int { return s.segments }

// Scan returns a single-pass sequence over every record of table. Records of one
// segment arrive in page order; segments interleave arbitrarily. The first failed
// read cancels outstanding work and is yielded as the final element. Stopping the
// iteration early cancels outstanding reads before Scan's iterator returns.
func (s *Scanner) Scan(ctx context.Context, table string) iter.Seq2[core.Record, error] {
	return func(yield func(core.Record, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		// One live task per segment, so enqueueing never blocks.
		tasks := make(chan task, s.segments)
		results := make(chan result)
		for seg := 0; seg < s.segments; seg++ {
			tasks <- task{segment: seg}
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < s.concurrency; i++ {
			g.Go(func() error { return s.work(gctx, table, tasks, results) })
		}
		done := make(chan struct{})
		var werr error
		go func() {
			werr = g.Wait()
			close(done)
		}()
		stop := func() {
			cancel()
			<-done
		}

		pending, pages := s.segments, 0
		for pending > 0 {
			select {
			case r := <-results:
				pages++
				for _, rec := range r.page.Records {
					s.metrics.yielded(table)
					if !yield(rec, nil) {
						stop()
						return
					}
				}
				if r.page.Next != "" {
					tasks <- task{segment: r.segment, cursor: r.page.Next}
				} else {
					pending--
				}
			case <-done:
				if werr == nil {
					werr = ctx.Err()
				}
				s.log.Warn("scan aborted", "table", table, "pages", pages, "error", werr)
				yield(nil, werr)
				return
			}
		}
		close(tasks)
		<-done
		if werr != nil {
			yield(nil, werr)
			return
		}
		s.log.Debug("scan complete", "table", table, "segments", s.segments, "pages", pages)
	}
}

func (s *Scanner) work(ctx context.Context, table string, tasks <-chan task, results chan<- result) error {
	for {
		var t task
		select {
		case <-ctx.Done():
			return ctx.Err()
		case next, ok := <-tasks:
			if !ok {
				return nil
			}
			t = next
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		s.metrics.readStarted()
		page, err := s.store.ScanSegment(ctx, table, t.segment, s.segments, t.cursor)
		s.metrics.readDone(table, err == nil)
		if err != nil {
			return fmt.Errorf("scan %s segment %d: %w", table, t.segment, err)
		}
		select {
		case results <- result{segment: t.segment, page: page}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ScanAll drains Scan into a slice.
func (s *Scanner) ScanAll(ctx context.Context, table string) ([]core.Record, error) {
	var out []core.Record
	for rec, err := range s.Scan(ctx, table) {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
