package blob

import (
	"testing"

	"cellenics/testutil"
)

// TestOnlyBlobPackageImportsInfra keeps the S3, fs and memory drivers behind
// blob.Store.
func TestOnlyBlobPackageImportsInfra(t *testing.T) {
	testutil.AssertOnlyBoundaryImports(t, "cellenics/...", "cellenics/internal/blob", "cellenics/internal/infra/blob")
}
