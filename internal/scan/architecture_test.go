package scan

import (
	"testing"

	"cellenics/testutil"
)

func TestScannerUsesTableBoundary(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.Any(testutil.InfraImportForbidden, testutil.DriverImportForbidden),
		"the scanner pages through table.Store only")
}
