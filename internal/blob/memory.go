package blob

import (
	memorystore "cellenics/internal/infra/blob/memory"
)

type (
	// MemoryStore is the in-memory driver, exposed for tests and dry runs.
	MemoryStore = memorystore.Store
	// MemoryHooks inject failures into a MemoryStore.
	MemoryHooks = memorystore.Hooks
)

// NewMemory returns an in-memory blob store suitable for tests.
func NewMemory() *MemoryStore { return memorystore.New() }
