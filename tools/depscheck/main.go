package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

const modulePath = "github.com/the-cubic-cat/sfera"

type packageInfo struct {
	ImportPath string
	Imports    []string
}

// rule forbids packages under from importing anything under any of deny.
type rule struct {
	from string
	deny []string
}

// The simulation core stays free of presentation and transport code.
var rules = []rule{
	{from: "internal/simtime", deny: []string{"internal/"}},
	{from: "internal/geom", deny: []string{"internal/"}},
	{from: "internal/world", deny: []string{"internal/physics", "internal/render", "internal/net", "internal/tui", "internal/command", "internal/sim", "internal/app"}},
	{from: "internal/physics", deny: []string{"internal/render", "internal/net", "internal/tui", "internal/command", "internal/sim", "internal/app"}},
	{from: "internal/render", deny: []string{"internal/physics", "internal/net", "internal/tui", "internal/command", "internal/sim", "internal/app"}},
	{from: "internal/sim", deny: []string{"internal/net", "internal/tui", "internal/render", "internal/app"}},
	{from: "internal/net", deny: []string{"internal/tui", "internal/command", "internal/app"}},
	{from: "internal/tui", deny: []string{"internal/net", "internal/command", "internal/physics", "internal/app"}},
}

func main() {
	cmd := exec.Command("go", "list", "-json", "./...")
	cmd.Env = os.Environ()
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Stderr.Write(exitErr.Stderr)
		}
		fmt.Fprintf(os.Stderr, "depscheck: failed to list packages: %v\n", err)
		os.Exit(1)
	}

	packages, err := decodePackages(bytes.NewReader(output))
	if err != nil {
		fmt.Fprintf(os.Stderr, "depscheck: failed to decode package info: %v\n", err)
		os.Exit(1)
	}

	violations := checkImports(packages, rules)
	if len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "depscheck: found forbidden imports:")
		for _, violation := range violations {
			fmt.Fprintf(os.Stderr, "  %s\n", violation)
		}
		os.Exit(1)
	}
}

func decodePackages(r io.Reader) ([]packageInfo, error) {
	decoder := json.NewDecoder(r)
	var packages []packageInfo
	for {
		var pkg packageInfo
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				return packages, nil
			}
			return nil, err
		}
		packages = append(packages, pkg)
	}
}

func checkImports(packages []packageInfo, rules []rule) []string {
	var violations []string
	for _, pkg := range packages {
		rel, ok := relative(pkg.ImportPath)
		if !ok {
			continue
		}
		for _, r := range rules {
			if !within(rel, r.from) {
				continue
			}
			for _, imp := range pkg.Imports {
				target, ok := relative(imp)
				if !ok || within(target, r.from) {
					continue
				}
				for _, deny := range r.deny {
					if strings.HasPrefix(target, deny) {
						violations = append(violations, fmt.Sprintf("%s -> %s", pkg.ImportPath, imp))
						break
					}
				}
			}
		}
	}
	sort.Strings(violations)
	return violations
}

func relative(importPath string) (string, bool) {
	if !strings.HasPrefix(importPath, modulePath+"/") {
		return "", false
	}
	return strings.TrimPrefix(importPath, modulePath+"/"), true
}

// within reports whether pkg is dir or one of its subpackages.
func within(pkg, dir string) bool {
	return pkg == dir || strings.HasPrefix(pkg, dir+"/")
}
