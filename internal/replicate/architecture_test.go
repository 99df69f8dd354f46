package replicate

import (
	"testing"

	"cellenics/testutil"
)

func TestEngineUsesStoreBoundaries(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.Any(testutil.InfraImportForbidden, testutil.DriverImportForbidden),
		"replication goes through the table and blob interfaces")
}
