package table

import (
	"testing"

	"cellenics/testutil"
)

// Only this package may wrap the table drivers; everything else uses table.Store.
func TestOnlyTablePackageImportsInfra(t *testing.T) {
	testutil.AssertOnlyBoundaryImports(t, "cellenics/...", "cellenics/internal/table", "cellenics/internal/infra/table")
}
