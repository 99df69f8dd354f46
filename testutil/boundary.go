package testutil

import (
	"slices"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// AssertOnlyBoundaryImports loads every package matching pattern, tests
// included, and fails when a package outside the boundary imports one under
// driverPrefix. The boundary is the packages under allowedPrefix plus the
// drivers themselves.
func AssertOnlyBoundaryImports(t testing.TB, pattern, allowedPrefix, driverPrefix string) {
	t.Helper()
	viols, err := boundaryViolations(pattern, allowedPrefix, driverPrefix)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	failIfViolations(t, "driver imports outside "+allowedPrefix, "depend on the boundary interfaces instead", viols)
}

var loadPackages = func(pattern string) ([]*packages.Package, error) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	return packages.Load(cfg, pattern)
}

func under(path, prefix string) bool { return path == prefix || strings.HasPrefix(path, prefix+"/") }

func boundaryViolations(pattern, allowedPrefix, driverPrefix string) ([]string, error) {
	pkgs, err := loadPackages(pattern)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, pkg := range pkgs {
		if under(pkg.PkgPath, allowedPrefix) || under(pkg.PkgPath, driverPrefix) {
			continue
		}
		for ip := range pkg.Imports {
			if under(ip, driverPrefix) {
				seen[pkg.PkgPath+": "+ip] = true
			}
		}
	}
	viols := make([]string, 0, len(seen))
	for v := range seen {
		viols = append(viols, v)
	}
	slices.Sort(viols)
	return viols, nil
}
