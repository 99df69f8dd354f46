package replicate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"cellenics/internal/blob"
	"cellenics/internal/entitymodel"
	"cellenics/internal/errs"
	"cellenics/internal/scan"
	"cellenics/internal/table"

	"github.com/prometheus/client_golang/prometheus"
)

// Backends resolves the stores of an environment. Blob containers of every
// environment live in one store so copies stay server side.
type Backends interface {
	Tables(ctx context.Context, env string) (table.Store, error)
	Blobs(ctx context.Context) (blob.Store, error)
}

// Options configures a Coordinator.
type Options struct {
	// Catalog defaults to entitymodel.Default().
	Catalog *entitymodel.Catalog
	// NamingEnv is the environment name embedded in catalog table and container names.
	NamingEnv string
	// Protected environments are never written to. NamingEnv is always protected.
	Protected []string
	Scan      scan.Options
	// Registerer receives replication and scan metrics when non-nil.
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

// Request describes one replication run.
type Request struct {
	RootIDs     []string
	Namespace   string
	Origin      string
	Destination string
	// CheckNamespace scans the root tables to make sure no existing root id
	// equals the namespace.
	CheckNamespace bool
	// Writers are granted write permission on the cloned roots.
	Writers []string
}

// Coordinator drives a full replication: blobs, then records, then derived state.
type Coordinator struct {
	backends  Backends
	catalog   *entitymodel.Catalog
	namingEnv string
	protected []string
	scanOpts  scan.Options
	metrics   *runMetrics
	log       *slog.Logger
}

// NewCoordinator returns a Coordinator using backends.
func NewCoordinator(backends Backends, opts Options) (*Coordinator, error) {
	c := &Coordinator{
		backends:  backends,
		catalog:   opts.Catalog,
		namingEnv: opts.NamingEnv,
		protected: slices.Clone(opts.Protected),
		scanOpts:  opts.Scan,
		log:       opts.Logger,
	}
	if c.catalog == nil {
		c.catalog = entitymodel.Default()
	}
	if c.namingEnv == "" {
		c.namingEnv = "production"
	}
	if !slices.Contains(c.protected, c.namingEnv) {
		c.protected = append(c.protected, c.namingEnv)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.scanOpts.Logger == nil {
		c.scanOpts.Logger = c.log
	}
	if c.scanOpts.Registerer == nil {
		c.scanOpts.Registerer = opts.Registerer
	}
	m, err := newRunMetrics(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register replication metrics: %w", err)
	}
	c.metrics = m
	c.log.Debug("coordinator ready", "catalog_version", c.catalog.Version(), "naming_env", c.namingEnv, "protected", c.protected)
	return c, nil
}

// Catalog returns the entity catalog in use.
func (c *Coordinator) Catalog() *entitymodel.Catalog { return c.catalog }

// Name derives the name of a catalog table or container in env.
func (c *Coordinator) Name(base, env string) string {
	return strings.ReplaceAll(base, c.namingEnv, env)
}

// Protected reports whether env must never be written to.
func (c *Coordinator) Protected(env string) bool { return slices.Contains(c.protected, env) }

// Replicate clones the graphs of req.RootIDs from req.Origin into req.Destination.
// A protected destination is refused before any store is touched, as is a
// malformed namespace. All other failures are reported in the Summary.
func (c *Coordinator) Replicate(ctx context.Context, req Request) (*Summary, error) {
	if c.Protected(req.Destination) {
		c.metrics.refused()
		return nil, errs.WrapFatal(fmt.Errorf("%w: refusing to write to %q", errs.ErrProtectedDestination, req.Destination), "replicate")
	}
	ns, err := ParseNamespace(req.Namespace)
	if err != nil {
		c.metrics.refused()
		return nil, errs.WrapInvalid(err, "replicate")
	}
	if len(req.RootIDs) == 0 {
		c.metrics.refused()
		return nil, errs.WrapInvalid(fmt.Errorf("no %s ids given", c.catalog.Root()), "replicate")
	}
	start := time.Now()
	summary := &Summary{Namespace: ns, Origin: req.Origin, Destination: req.Destination}

	origin, err := c.backends.Tables(ctx, req.Origin)
	if err != nil {
		return nil, errs.WrapFatal(err, "open origin tables")
	}
	dest, err := c.backends.Tables(ctx, req.Destination)
	if err != nil {
		return nil, errs.WrapFatal(err, "open destination tables")
	}
	blobs, err := c.backends.Blobs(ctx)
	if err != nil {
		return nil, errs.WrapFatal(err, "open blob store")
	}

	if req.CheckNamespace {
		if err := c.checkNamespace(ctx, ns, req.Origin, origin, req.Destination, dest); err != nil {
			c.metrics.refused()
			return nil, err
		}
	}

	rootEnt, _ := c.catalog.Entity(c.catalog.Root())
	roots := c.roots(req.RootIDs, ns, summary, c.Name(rootEnt.Table, req.Origin))

	records := NewRecordCloner(c.catalog, origin, dest, RecordOptions{
		RootTable: c.Name(rootEnt.Table, req.Origin),
		Writers:   req.Writers,
		Logger:    c.log,
	})

	c.log.Info("copying blobs", "roots", len(roots), "namespace", ns)
	c.cloneBlobs(ctx, NewBlobCloner(blobs, c.log), records, roots, req, ns, summary)

	c.log.Info("copying records", "roots", len(roots), "namespace", ns)
	for _, ent := range c.catalog.Entities() {
		src, dst := c.Name(ent.Table, req.Origin), c.Name(ent.Table, req.Destination)
		summary.Add(records.CloneEntities(ctx, roots, ent.Type, src, dst, ns)...)
	}

	// Derived state needs every record of the root in place.
	failedRoots := map[string]bool{}
	for _, r := range summary.Failed() {
		if r.Kind == KindRecord {
			failedRoots[r.RootID] = true
		}
	}
	for _, root := range roots {
		if failedRoots[root] {
			c.log.Warn("skipping params hash of partially cloned root", "root_id", root)
			continue
		}
		summary.Add(c.derive(ctx, dest, req.Destination, root, ns))
	}

	c.metrics.observe(summary, time.Since(start).Seconds())
	counts := summary.Counts()
	c.log.Info("replication finished", "namespace", ns, "copied", counts.Copied, "skipped", counts.Skipped, "failed", counts.Failed)
	return summary, nil
}

// roots deduplicates ids and refuses ids that already carry the namespace.
func (c *Coordinator) roots(ids []string, ns Namespace, summary *Summary, rootTable string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if ns.Owns(id) {
			err := fmt.Errorf("%w: %s", errs.ErrAlreadyNamespaced, id)
			c.log.Error("refusing namespaced root", "root_id", id, "error", err)
			summary.Add(CloneRecord{
				Kind:    KindRecord,
				Entity:  string(c.catalog.Root()),
				RootID:  id,
				Source:  Location{rootTable, id},
				Outcome: Failed,
				Err:     err,
			})
			continue
		}
		out = append(out, id)
	}
	return out
}

func (c *Coordinator) cloneBlobs(ctx context.Context, blobs *BlobCloner, records *RecordCloner, roots []string, req Request, ns Namespace, summary *Summary) {
	for _, container := range c.catalog.Containers() {
		src, dst := c.Name(container.Name, req.Origin), c.Name(container.Name, req.Destination)
		done := map[string]bool{}
		for _, root := range roots {
			owners, err := records.OwnerIDs(ctx, root, container.Owner())
			if err != nil {
				c.log.Error("resolving blob owner failed", "container", src, "root_id", root, "error", err)
				summary.Add(CloneRecord{Kind: KindBlob, Entity: string(container.Owner()), RootID: root, Source: Location{src, root}, Outcome: Failed, Err: err})
				continue
			}
			for _, owner := range owners {
				if done[owner] {
					continue
				}
				done[owner] = true
				for _, rec := range blobs.CloneBlobs(ctx, owner, container, src, dst, ns) {
					rec.RootID = root
					summary.Add(rec)
				}
			}
		}
	}
}

func (c *Coordinator) checkNamespace(ctx context.Context, ns Namespace, originEnv string, origin table.Store, destEnv string, dest table.Store) error {
	for _, env := range []struct {
		name  string
		store table.Store
	}{{originEnv, origin}, {destEnv, dest}} {
		ids, err := c.rootIDs(ctx, env.name, env.store)
		if err != nil {
			return errs.WrapFatal(err, "namespace check")
		}
		if slices.Contains(ids, string(ns)) {
			return errs.WrapInvalid(fmt.Errorf("%w: %q is a %s id in %s", errs.ErrNamespaceTaken, ns, c.catalog.Root(), env.name), "namespace check")
		}
	}
	return nil
}

// rootIDs scans the root table of env.
func (c *Coordinator) rootIDs(ctx context.Context, env string, store table.Store) ([]string, error) {
	rootEnt, _ := c.catalog.Entity(c.catalog.Root())
	scanner, err := scan.New(store, c.scanOpts)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rec, err := range scanner.Scan(ctx, c.Name(rootEnt.Table, env)) {
		if err != nil {
			return nil, err
		}
		if id, ok := rec[rootEnt.Key.Partition].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Candidates lists the root ids of env that are not yet cloned under ns, in
// order. Clones themselves are excluded, as are the originals they came from.
// With an empty ns every root id is returned.
func (c *Coordinator) Candidates(ctx context.Context, env string, ns Namespace) ([]string, error) {
	store, err := c.backends.Tables(ctx, env)
	if err != nil {
		return nil, errs.WrapFatal(err, "open tables")
	}
	ids, err := c.rootIDs(ctx, env, store)
	if err != nil {
		return nil, errs.WrapFatal(err, "list candidates")
	}
	staged := map[string]bool{}
	if ns != "" {
		for _, id := range ids {
			if original, ok := StripNamespace(id, ns); ok {
				staged[id], staged[original] = true, true
			}
		}
	}
	var out []string
	for _, id := range ids {
		if !staged[id] {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}
