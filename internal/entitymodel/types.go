// Package entitymodel declares the entity graph of one experiment: entity
// types, their tables and keys, the reference fields that hold identifiers of
// other entities, and the blob containers keyed by entity ids. The catalog is
// embedded YAML and is the single source of truth for identifier rewriting.
package entitymodel

import "cellenics/internal/table/core"

// EntityType names a kind of record in the entity graph.
type EntityType string

const (
	Experiment          EntityType = "Experiment"
	Project             EntityType = "Project"
	Sample              EntityType = "Sample"
	SampleFile          EntityType = "SampleFile"
	ExperimentExecution EntityType = "ExperimentExecution"
	PlotConfig          EntityType = "PlotConfig"
)

// Lookup selects how an entity's records are found from its owner id.
type Lookup string

const (
	// LookupKey reads a single record by primary key.
	LookupKey Lookup = "key"
	// LookupPartition queries every record sharing the partition key.
	LookupPartition Lookup = "partition"
)

// Reference declares that the values at Path are identifiers of Target.
type Reference struct {
	Path   Path
	Target EntityType
}

// Entity describes one entity type.
type Entity struct {
	Type EntityType
	// Table is the physical table name in the naming environment.
	Table  string
	Key    core.KeySchema
	Lookup Lookup
	// Owner is the entity whose id selects this entity's records (the target
	// of the partition key reference).
	Owner EntityType
	// Required entities must exist for every root; a missing record is a failure.
	Required   bool
	References []Reference
}

// Container describes a blob container whose object keys are made of entity
// ids. Layout lists the entity type of each leading "/" segment; the first
// is the owner used as the listing prefix.
type Container struct {
	Name   string
	Layout []EntityType
}

// Owner returns the entity type whose id prefixes every object key.
func (c Container) Owner() EntityType {
	if len(c.Layout) == 0 {
		return ""
	}
	return c.Layout[0]
}
