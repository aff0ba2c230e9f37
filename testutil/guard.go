// Package testutil holds layering guards shared by package tests.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// storageDrivers are modules only the cache and blob infra packages may
// import.
var storageDrivers = []string{
	"github.com/jackc/pgx",
	"modernc.org/sqlite",
	"github.com/aws/aws-sdk-go-v2",
	"github.com/natefinch/atomic",
}

// InternalImport matches import paths under an internal/ tree.
func InternalImport(path string) bool {
	return strings.Contains(path, "/internal/") || strings.HasPrefix(path, "internal/")
}

// ThirdPartyImport matches paths outside the standard library and this
// module. Standard library paths have no dot in their first element.
func ThirdPartyImport(path string) bool {
	first, _, _ := strings.Cut(path, "/")
	return strings.Contains(first, ".")
}

// StorageDriverImport matches database, object store and file-replace
// drivers.
func StorageDriverImport(path string) bool {
	for _, d := range storageDrivers {
		if path == d || strings.HasPrefix(path, d+"/") {
			return true
		}
	}
	return false
}

// AssertNoDirectImports parses the non-test .go files in dir and fails when
// an import matches forbidden. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(viols) > 0 {
		t.Fatalf("forbidden imports (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

// AssertNoTransitiveDependency runs `go list -deps pattern` and fails when a
// dependency matches forbidden.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(string) bool, reason string) {
	t.Helper()
	out, err := goListDeps(pattern)
	if err != nil {
		t.Fatalf("go list: %v\n%s", err, out)
	}
	var viols []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" && forbidden(line) {
			viols = append(viols, line)
		}
	}
	if len(viols) > 0 {
		t.Fatalf("forbidden dependencies (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

var goListDeps = func(pattern string) ([]byte, error) {
	return exec.Command("go", "list", "-deps", pattern).CombinedOutput()
}

func directImportViolations(dir string, forbidden func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range f.Imports {
			if p := strings.Trim(imp.Path.Value, `"`); forbidden(p) {
				viols = append(viols, p+" (in "+name+")")
			}
		}
	}
	return viols, nil
}
