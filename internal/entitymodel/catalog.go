package entitymodel

import (
	"cellenics/internal/errs"
	"cellenics/internal/table/core"
	_ "embed"
	"encoding/hex"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
	"lukechampine.com/blake3"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

type catalogDoc struct {
	Root     EntityType `yaml:"root"`
	Entities []struct {
		Type EntityType `yaml:"type"`
		// Table is the production table name.
		Table string `yaml:"table"`
		Key   struct {
			Partition string `yaml:"partition"`
			Sort      string `yaml:"sort"`
		} `yaml:"key"`
		Lookup     Lookup `yaml:"lookup"`
		Required   bool   `yaml:"required"`
		References []struct {
			Path   string     `yaml:"path"`
			Target EntityType `yaml:"target"`
		} `yaml:"references"`
	} `yaml:"entities"`
	Containers []struct {
		Name   string       `yaml:"name"`
		Layout []EntityType `yaml:"layout"`
	} `yaml:"containers"`
}

// Catalog is a validated entity graph.
type Catalog struct {
	root       EntityType
	entities   []Entity
	byType     map[EntityType]int
	containers []Container
	version    string
}

// Load parses and validates a catalog document.
func Load(data []byte) (*Catalog, error) {
	var doc catalogDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errs.WrapInvalid(err, "entitymodel.load")
	}
	c := &Catalog{root: doc.Root, byType: map[EntityType]int{}}
	for _, e := range doc.Entities {
		ent := Entity{
			Type:     e.Type,
			Table:    e.Table,
			Key:      core.KeySchema{Partition: e.Key.Partition, Sort: e.Key.Sort},
			Lookup:   e.Lookup,
			Required: e.Required,
		}
		for _, r := range e.References {
			p, err := ParsePath(r.Path)
			if err != nil {
				return nil, errs.WrapInvalid(fmt.Errorf("%s: %w", e.Type, err), "entitymodel.load")
			}
			ent.References = append(ent.References, Reference{Path: p, Target: r.Target})
			if p.IsField(ent.Key.Partition) {
				ent.Owner = r.Target
			}
		}
		if _, dup := c.byType[ent.Type]; dup {
			return nil, errs.WrapInvalid(fmt.Errorf("duplicate entity %s", ent.Type), "entitymodel.load")
		}
		c.byType[ent.Type] = len(c.entities)
		c.entities = append(c.entities, ent)
	}
	for _, ct := range doc.Containers {
		c.containers = append(c.containers, Container{Name: ct.Name, Layout: append([]EntityType(nil), ct.Layout...)})
	}
	sum := blake3.Sum256(data)
	c.version = hex.EncodeToString(sum[:8])
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded catalog. It panics if the embedded document is invalid.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(embeddedCatalog)
		if err != nil {
			panic(fmt.Sprintf("embedded entity catalog: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Validate checks the structural rules of the graph: every entity's partition
// key is a declared reference naming its owner, reference paths are unique per
// entity and target declared entities, every owner other than the root is
// reachable from the root through exactly one reference, and every container
// layout is made of declared entities with a reachable owner.
func (c *Catalog) Validate() error {
	invalid := func(format string, args ...any) error {
		return errs.WrapInvalid(fmt.Errorf(format, args...), "entitymodel.validate")
	}
	if _, ok := c.byType[c.root]; !ok {
		return invalid("root entity %q is not declared", c.root)
	}
	for _, e := range c.entities {
		if e.Type == "" || e.Table == "" || e.Key.Partition == "" {
			return invalid("entity %q needs a type, table and partition key", e.Type)
		}
		switch e.Lookup {
		case LookupKey:
			if e.Key.Sort != "" {
				return invalid("%s: key lookup needs a partition-only key", e.Type)
			}
		case LookupPartition:
		default:
			return invalid("%s: unknown lookup %q", e.Type, e.Lookup)
		}
		seen := map[string]bool{}
		for _, r := range e.References {
			if seen[r.Path.String()] {
				return invalid("%s: duplicate reference path %s", e.Type, r.Path)
			}
			seen[r.Path.String()] = true
			if _, ok := c.byType[r.Target]; !ok {
				return invalid("%s.%s targets undeclared entity %q", e.Type, r.Path, r.Target)
			}
		}
		if e.Owner == "" {
			return invalid("%s: partition key %q is not a declared reference", e.Type, e.Key.Partition)
		}
		if _, err := c.ownerPath(e.Owner); err != nil {
			return invalid("%s: %v", e.Type, err)
		}
	}
	names := map[string]bool{}
	for _, ct := range c.containers {
		if ct.Name == "" || len(ct.Layout) == 0 {
			return invalid("container %q needs a name and layout", ct.Name)
		}
		if names[ct.Name] {
			return invalid("duplicate container %s", ct.Name)
		}
		names[ct.Name] = true
		for _, t := range ct.Layout {
			if _, ok := c.byType[t]; !ok {
				return invalid("container %s: undeclared entity %q", ct.Name, t)
			}
		}
		if _, err := c.ownerPath(ct.Owner()); err != nil {
			return invalid("container %s: %v", ct.Name, err)
		}
	}
	return nil
}

// ownerPath returns the root reference leading to owner. The zero Path means
// the owner is the root itself.
func (c *Catalog) ownerPath(owner EntityType) (Path, error) {
	if owner == c.root {
		return Path{}, nil
	}
	root := c.entities[c.byType[c.root]]
	var found []Path
	for _, r := range root.References {
		if r.Target == owner {
			found = append(found, r.Path)
		}
	}
	if len(found) != 1 {
		return Path{}, fmt.Errorf("owner %s must be reachable from %s through exactly one reference, found %d", owner, c.root, len(found))
	}
	return found[0], nil
}

// OwnerPath returns the reference on the root record holding the ids of owner.
// ok is false when owner is the root itself.
func (c *Catalog) OwnerPath(owner EntityType) (p Path, ok bool) {
	p, err := c.ownerPath(owner)
	if err != nil || owner == c.root {
		return Path{}, false
	}
	return p, true
}

// Root returns the entity type clones are driven by.
func (c *Catalog) Root() EntityType { return c.root }

// Entities returns the entities in catalog order. Writes follow this order.
func (c *Catalog) Entities() []Entity { return append([]Entity(nil), c.entities...) }

// Entity returns the declaration of t.
func (c *Catalog) Entity(t EntityType) (Entity, bool) {
	i, ok := c.byType[t]
	if !ok {
		return Entity{}, false
	}
	return c.entities[i], true
}

// Containers returns the blob containers in catalog order.
func (c *Catalog) Containers() []Container { return append([]Container(nil), c.containers...) }

// Version is a short fingerprint of the catalog document.
func (c *Catalog) Version() string { return c.version }

// KeyResolver maps table names to key schemas. Each rename converts a catalog
// table name into the physical name used by one environment; without renames
// the catalog names are used as is.
func (c *Catalog) KeyResolver(renames ...func(string) string) core.KeyResolver {
	if len(renames) == 0 {
		renames = append(renames, func(s string) string { return s })
	}
	schemas := make(map[string]core.KeySchema, len(c.entities)*len(renames))
	for _, rename := range renames {
		for _, e := range c.entities {
			schemas[rename(e.Table)] = e.Key
		}
	}
	return func(table string) (core.KeySchema, error) {
		ks, ok := schemas[table]
		if !ok {
			return core.KeySchema{}, fmt.Errorf("%w: no key schema for table %q", errs.ErrNotFound, table)
		}
		return ks, nil
	}
}
