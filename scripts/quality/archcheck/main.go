// Command archcheck enforces the package dependency rules of the module.
// It reads `go list -json -test ./...` and exits non-zero when a package
// imports something its layer must not depend on.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"
)

const modulePrefix = "sandwich/"

type listedPackage struct {
	ImportPath   string
	Imports      []string
	TestImports  []string
	XTestImports []string
}

// layerRule forbids packages under from importing packages under to.
type layerRule struct {
	from, to string
	// testExempt lists imports allowed from test builds only.
	testExempt []string
	// crossModule restricts the rule to imports leaving the importer's own
	// modules/<name> tree, and only for non-test builds.
	crossModule bool
}

var layerRules = []layerRule{
	{from: "pkg/sandwich", to: "internal/"},
	{from: "pkg/sandwich", to: "pkg/llm"},
	{from: "pkg/llm", to: "internal/"},
	{from: "internal/kernel", to: "internal/driver"},
	{from: "internal/replycache", to: "internal/driver"},
	{from: "modules/", to: "internal/", testExempt: []string{"internal/moduletest"}},
	{from: "modules/", to: "modules/", crossModule: true},
}

func (r layerRule) violated(importer, imported string, testOnly bool) bool {
	if !strings.HasPrefix(importer, modulePrefix+r.from) || !strings.HasPrefix(imported, modulePrefix+r.to) {
		return false
	}
	if r.crossModule {
		return !testOnly && moduleRoot(importer) != moduleRoot(imported)
	}

	return !testOnly || !slices.Contains(r.testExempt, strings.TrimPrefix(imported, modulePrefix))
}

func (r layerRule) String() string {
	if r.crossModule {
		return r.from + "* must not import other modules"
	}

	return r.from + "* must not import " + r.to + "*"
}

func main() {
	packages, err := listPackages()
	if err != nil {
		fmt.Fprintf(os.Stderr, "arch-check: %v\n", err)
		os.Exit(1)
	}

	violations := collectViolations(packages)
	if len(violations) == 0 {
		fmt.Println("arch-check: passed")
		return
	}

	fmt.Println("arch-check: architecture violations:")
	for _, violation := range violations {
		fmt.Println("  - " + violation)
	}
	os.Exit(1)
}

func listPackages() ([]listedPackage, error) {
	cmd := exec.Command("go", "list", "-json", "-test", "./...")
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("go list pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start go list: %w", err)
	}

	var packages []listedPackage
	decoder := json.NewDecoder(stdout)
	for {
		var pkg listedPackage
		err := decoder.Decode(&pkg)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = cmd.Wait()
			return nil, fmt.Errorf("decode go list output: %w", err)
		}
		if pkg.ImportPath != "" {
			packages = append(packages, pkg)
		}
	}
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("go list: %w", err)
	}

	return packages, nil
}

func collectViolations(packages []listedPackage) []string {
	found := make(map[string]struct{})
	check := func(importer string, imports []string, testOnly bool) {
		for _, imported := range imports {
			if reason := violationReason(importer, imported, testOnly); reason != "" {
				found[fmt.Sprintf("%s -> %s (%s)", importer, imported, reason)] = struct{}{}
			}
		}
	}

	for _, pkg := range packages {
		importer, variant := splitTestVariant(pkg.ImportPath)
		check(importer, pkg.Imports, variant)
		check(importer, pkg.TestImports, true)
		check(importer, pkg.XTestImports, true)
	}

	return slices.Sorted(maps.Keys(found))
}

// splitTestVariant maps the test build names go list reports, such as
// "p [p.test]", "p_test" and "p.test", back to p.
func splitTestVariant(importPath string) (string, bool) {
	base, _, variant := strings.Cut(importPath, " [")
	for _, suffix := range []string{"_test", ".test"} {
		if trimmed, ok := strings.CutSuffix(base, suffix); ok {
			return trimmed, true
		}
	}

	return base, variant
}

// violationReason returns the first rule the import breaks, or "".
func violationReason(importer, imported string, testOnly bool) string {
	for _, rule := range layerRules {
		if rule.violated(importer, imported, testOnly) {
			return rule.String()
		}
	}

	return ""
}

func moduleRoot(importPath string) string {
	name, _, _ := strings.Cut(strings.TrimPrefix(importPath, modulePrefix+"modules/"), "/")

	return modulePrefix + "modules/" + name
}
