package replicate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"cellenics/internal/entitymodel"
	"cellenics/internal/errs"
	"cellenics/internal/table"
)

// RecordOptions configures a RecordCloner.
type RecordOptions struct {
	// RootTable is the source table of the root entity, read to resolve owners
	// reached through a reference of the root record.
	RootTable string
	// Writers are granted write permission on cloned root records.
	Writers []string
	Logger  *slog.Logger
}

// RecordCloner copies the records of one entity type for a set of roots. A
// RecordCloner serves a single replication run: root records and cloned owners
// are remembered across calls.
type RecordCloner struct {
	catalog *entitymodel.Catalog
	source  table.Store
	dest    table.Store
	opts    RecordOptions
	log     *slog.Logger

	roots  map[string]table.Record
	cloned map[string]bool
}

// NewRecordCloner returns a RecordCloner reading from source and writing to dest.
func NewRecordCloner(catalog *entitymodel.Catalog, source, dest table.Store, opts RecordOptions) *RecordCloner {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &RecordCloner{
		catalog: catalog,
		source:  source,
		dest:    dest,
		opts:    opts,
		log:     log,
		roots:   map[string]table.Record{},
		cloned:  map[string]bool{},
	}
}

// RootRecord returns the source record of root id, reading it at most once.
func (c *RecordCloner) RootRecord(ctx context.Context, rootID string) (table.Record, error) {
	if rec, ok := c.roots[rootID]; ok {
		return rec, nil
	}
	root, _ := c.catalog.Entity(c.catalog.Root())
	rec, found, err := c.source.GetItem(ctx, c.opts.RootTable, table.Record{root.Key.Partition: rootID})
	if err != nil {
		return nil, errs.WrapTransient(err, "read root")
	}
	if !found {
		return nil, fmt.Errorf("%s %s in %s: %w", root.Type, rootID, c.opts.RootTable, errs.ErrNotFound)
	}
	c.roots[rootID] = rec
	return rec, nil
}

// OwnerIDs resolves the ids of owner belonging to root. The root owns itself;
// any other owner is read from the root record's declared reference.
func (c *RecordCloner) OwnerIDs(ctx context.Context, rootID string, owner entitymodel.EntityType) ([]string, error) {
	if owner == c.catalog.Root() {
		return []string{rootID}, nil
	}
	path, ok := c.catalog.OwnerPath(owner)
	if !ok {
		return nil, fmt.Errorf("%w: no reference from %s to %s", errs.ErrNotFound, c.catalog.Root(), owner)
	}
	rec, err := c.RootRecord(ctx, rootID)
	if err != nil {
		return nil, err
	}
	return path.Collect(rec), nil
}

// CloneEntities copies the records of entityType owned by each root from
// sourceTable into destTable, renamed into ns. Owners shared by several roots
// are copied once, or retried until a copy succeeds. A failure for one root never stops the others; a failed
// write is reported once for its (table, owner) batch.
func (c *RecordCloner) CloneEntities(ctx context.Context, rootIDs []string, entityType entitymodel.EntityType, sourceTable, destTable string, ns Namespace) []CloneRecord {
	entity, ok := c.catalog.Entity(entityType)
	var out []CloneRecord
	for _, root := range rootIDs {
		fail := func(err error) {
			c.log.Error("cloning records failed", "entity", entityType, "table", sourceTable, "root_id", root, "error", err)
			out = append(out, CloneRecord{
				Kind:    KindRecord,
				Entity:  string(entityType),
				RootID:  root,
				Source:  Location{sourceTable, root},
				Target:  Location{destTable, RewriteID(root, ns)},
				Outcome: Failed,
				Err:     err,
			})
		}
		if !ok {
			fail(fmt.Errorf("%w: entity type %s", errs.ErrNotFound, entityType))
			continue
		}
		if ns.Owns(root) {
			fail(fmt.Errorf("%w: %s", errs.ErrAlreadyNamespaced, root))
			continue
		}
		owners, err := c.OwnerIDs(ctx, root, entity.Owner)
		if err != nil {
			fail(err)
			continue
		}
		if len(owners) == 0 && entity.Required {
			fail(fmt.Errorf("%w: %s %s references no %s", errs.ErrNotFound, c.catalog.Root(), root, entity.Owner))
			continue
		}
		for _, owner := range owners {
			if ns.Owns(owner) {
				fail(fmt.Errorf("%w: %s %s", errs.ErrAlreadyNamespaced, entity.Owner, owner))
				continue
			}
			key := destTable + "\x00" + owner
			if c.cloned[key] {
				c.log.Debug("owner already cloned", "entity", entityType, "owner", owner, "root_id", root)
				continue
			}
			recs := c.cloneOwner(ctx, root, owner, entity, sourceTable, destTable, ns)
			// A failed owner is retried for the next root sharing it.
			if !slices.ContainsFunc(recs, func(r CloneRecord) bool { return r.Outcome == Failed }) {
				c.cloned[key] = true
			}
			out = append(out, recs...)
		}
	}
	return out
}

func (c *RecordCloner) cloneOwner(ctx context.Context, root, owner string, entity entitymodel.Entity, sourceTable, destTable string, ns Namespace) []CloneRecord {
	batch := CloneRecord{
		Kind:   KindRecord,
		Entity: string(entity.Type),
		RootID: root,
		Source: Location{sourceTable, owner},
		Target: Location{destTable, RewriteID(owner, ns)},
	}
	failed := func(err error) []CloneRecord {
		c.log.Error("cloning records failed", "entity", entity.Type, "table", destTable, "root_id", root, "owner", owner, "error", err)
		batch.Outcome, batch.Err = Failed, err
		return []CloneRecord{batch}
	}

	var records []table.Record
	switch entity.Lookup {
	case entitymodel.LookupKey:
		rec, found, err := c.source.GetItem(ctx, sourceTable, table.Record{entity.Key.Partition: owner})
		if err != nil {
			return failed(errs.WrapTransient(err, "read "+sourceTable))
		}
		if found {
			records = append(records, rec)
		}
	default:
		recs, err := c.source.Query(ctx, sourceTable, entity.Key.Partition, owner)
		if err != nil {
			return failed(errs.WrapTransient(err, "query "+sourceTable))
		}
		records = recs
	}
	if len(records) == 0 {
		if entity.Required {
			return failed(fmt.Errorf("%s %s in %s: %w", entity.Type, owner, sourceTable, errs.ErrNotFound))
		}
		c.log.Debug("no records to clone", "entity", entity.Type, "table", sourceTable, "owner", owner)
		return nil
	}

	rewritten := make([]table.Record, len(records))
	for i, rec := range records {
		rewritten[i] = RewriteRecord(rec, entity, ns)
		if entity.Type == c.catalog.Root() {
			grantWriters(rewritten[i], c.opts.Writers)
		}
	}
	if err := c.dest.BatchWrite(ctx, destTable, rewritten); err != nil {
		return failed(errs.WrapTransient(fmt.Errorf("batch write %s for %s %s: %w", destTable, c.catalog.Root(), root, err), "write"))
	}

	out := make([]CloneRecord, len(records))
	for i := range records {
		out[i] = CloneRecord{
			Kind:    KindRecord,
			Entity:  string(entity.Type),
			RootID:  root,
			Source:  Location{sourceTable, entity.Key.Location(records[i])},
			Target:  Location{destTable, entity.Key.Location(rewritten[i])},
			Outcome: Copied,
		}
	}
	c.log.Debug("cloned records", "entity", entity.Type, "table", destTable, "root_id", root, "count", len(out))
	return out
}
