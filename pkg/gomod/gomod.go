// Package gomod reads go.mod files of Go agents so that requirements
// between agents can be turned into dependency edges.
package gomod

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/semver"
)

// ErrNoGoMod is returned when a directory has no go.mod.
var ErrNoGoMod = errors.New("no go.mod found")

// Requirement is one require directive of a go.mod.
type Requirement struct {
	Path     string
	Version  string
	Indirect bool
	// Replaced is set when a replace directive targets the module, so the
	// required version may not be what is built.
	Replaced bool
}

func parse(dir string) (*modfile.File, error) {
	gomodPath := filepath.Join(dir, "go.mod")

	data, err := os.ReadFile(gomodPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrNoGoMod, gomodPath)
		}
		return nil, fmt.Errorf("failed to read go.mod: %w", err)
	}

	f, err := modfile.Parse(gomodPath, data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse go.mod: %w", err)
	}
	if f.Module == nil {
		return nil, fmt.Errorf("%s has no module directive", gomodPath)
	}
	return f, nil
}

// ModulePath returns the module path declared by the go.mod in dir.
func ModulePath(dir string) (string, error) {
	f, err := parse(dir)
	if err != nil {
		return "", err
	}
	return f.Module.Mod.Path, nil
}

// Requirements returns the require directives of the go.mod in dir.
func Requirements(dir string) ([]Requirement, error) {
	f, err := parse(dir)
	if err != nil {
		return nil, err
	}

	replaced := make(map[string]bool, len(f.Replace))
	for _, rep := range f.Replace {
		replaced[rep.Old.Path] = true
	}

	reqs := make([]Requirement, 0, len(f.Require))
	for _, req := range f.Require {
		reqs = append(reqs, Requirement{
			Path:     req.Mod.Path,
			Version:  req.Mod.Version,
			Indirect: req.Indirect,
			Replaced: replaced[req.Mod.Path],
		})
	}
	return reqs, nil
}

// AgentModules maps the module path of every Go agent under root to its
// agent id. Each immediate subdirectory holding a go.mod is one agent; its
// name is the path-escaped agent id.
func AgentModules(root string) (map[string]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading workspace %s: %w", root, err)
	}

	modules := make(map[string]string)
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path, err := ModulePath(filepath.Join(root, e.Name()))
		if errors.Is(err, ErrNoGoMod) {
			continue
		}
		if err != nil {
			return nil, err
		}
		agent, err := url.PathUnescape(e.Name())
		if err != nil {
			return nil, fmt.Errorf("agent directory %s: %w", e.Name(), err)
		}
		modules[path] = agent
	}
	return modules, nil
}

// AgentRequirement is a go.mod requirement that names another agent.
type AgentRequirement struct {
	Agent      string
	Module     string
	Constraint string
	Replaced   bool
}

// AgentRequirements returns the requirements in dir's go.mod that point at
// other agents, sorted by agent. The constraint is a caret range on the
// required release, so pseudo-versions become ^0.0.0.
func AgentRequirements(dir string, modules map[string]string) ([]AgentRequirement, error) {
	reqs, err := Requirements(dir)
	if err != nil {
		return nil, err
	}

	var out []AgentRequirement
	for _, req := range reqs {
		agent, ok := modules[req.Path]
		if !ok {
			continue
		}
		out = append(out, AgentRequirement{
			Agent:      agent,
			Module:     req.Path,
			Constraint: caret(req.Version),
			Replaced:   req.Replaced,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agent < out[j].Agent })
	return out, nil
}

func caret(version string) string {
	v := semver.Canonical(version)
	if v == "" {
		return ""
	}
	v = strings.TrimSuffix(v, semver.Prerelease(v))
	return "^" + strings.TrimPrefix(v, "v")
}
