package reconcile

import (
	"testing"

	"worksite/testutil"
)

func TestReconcilerDoesNotImportDrivers(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.StorageDriverImport, "reconcile works through the Directory interface")
}
