// Package depgraph maintains the dependency graph between agents: edge
// bookkeeping, cycle detection, update ordering and version constraints.
package depgraph

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Kind classifies a dependency edge.
type Kind string

const (
	KindRequires   Kind = "requires"
	KindRecommends Kind = "recommends"
	KindConflicts  Kind = "conflicts"
	KindEnhances   Kind = "enhances"
)

// ParseKind validates a kind name. Empty means requires.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case "":
		return KindRequires, nil
	case KindRequires, KindRecommends, KindConflicts, KindEnhances:
		return k, nil
	default:
		return "", fmt.Errorf("unknown dependency kind %q", s)
	}
}

// ErrSelfDependency is returned when an agent is made to depend on itself.
var ErrSelfDependency = errors.New("agent cannot depend on itself")

// Dependency is one directed edge: From depends on To.
type Dependency struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	Constraint string    `json:"constraint"`
	Kind       Kind      `json:"kind"`
	AddedAt    time.Time `json:"added_at"`
}

type edgeKey struct{ from, to string }

// Graph is an in-memory dependency graph with forward and reverse
// adjacency kept in step. It is not safe for concurrent mutation.
type Graph struct {
	edges   map[edgeKey]Dependency
	forward map[string]map[string]struct{}
	reverse map[string]map[string]struct{}
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		edges:   make(map[edgeKey]Dependency),
		forward: make(map[string]map[string]struct{}),
		reverse: make(map[string]map[string]struct{}),
	}
}

// AddDependency inserts dep or replaces the existing edge between the same
// two agents. The original AddedAt is kept on replacement.
func (g *Graph) AddDependency(dep Dependency) error {
	if dep.From == "" || dep.To == "" {
		return errors.New("dependency endpoints must be non-empty")
	}
	if dep.From == dep.To {
		return fmt.Errorf("%s: %w", dep.From, ErrSelfDependency)
	}
	kind, err := ParseKind(string(dep.Kind))
	if err != nil {
		return err
	}
	dep.Kind = kind
	if _, err := ParseConstraint(dep.Constraint); err != nil {
		return err
	}

	key := edgeKey{dep.From, dep.To}
	if prev, ok := g.edges[key]; ok && !prev.AddedAt.IsZero() {
		dep.AddedAt = prev.AddedAt
	}
	g.edges[key] = dep
	link(g.forward, dep.From, dep.To)
	link(g.reverse, dep.To, dep.From)
	return nil
}

// RemoveDependency deletes the edge from -> to and reports whether it existed.
func (g *Graph) RemoveDependency(from, to string) bool {
	key := edgeKey{from, to}
	if _, ok := g.edges[key]; !ok {
		return false
	}
	delete(g.edges, key)
	unlink(g.forward, from, to)
	unlink(g.reverse, to, from)
	return true
}

func link(m map[string]map[string]struct{}, a, b string) {
	set, ok := m[a]
	if !ok {
		set = make(map[string]struct{})
		m[a] = set
	}
	set[b] = struct{}{}
}

func unlink(m map[string]map[string]struct{}, a, b string) {
	delete(m[a], b)
	if len(m[a]) == 0 {
		delete(m, a)
	}
}

// Edge returns the edge from -> to, if present.
func (g *Graph) Edge(from, to string) (Dependency, bool) {
	dep, ok := g.edges[edgeKey{from, to}]
	return dep, ok
}

// Dependencies returns the edges leaving agent, sorted by target.
func (g *Graph) Dependencies(agent string) []Dependency {
	deps := make([]Dependency, 0, len(g.forward[agent]))
	for to := range g.forward[agent] {
		deps = append(deps, g.edges[edgeKey{agent, to}])
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].To < deps[j].To })
	return deps
}

// Dependents returns the edges entering agent, sorted by source.
func (g *Graph) Dependents(agent string) []Dependency {
	deps := make([]Dependency, 0, len(g.reverse[agent]))
	for from := range g.reverse[agent] {
		deps = append(deps, g.edges[edgeKey{from, agent}])
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].From < deps[j].From })
	return deps
}

// Edges returns every edge sorted by source then target.
func (g *Graph) Edges() []Dependency {
	deps := make([]Dependency, 0, len(g.edges))
	for _, dep := range g.edges {
		deps = append(deps, dep)
	}
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].From != deps[j].From {
			return deps[i].From < deps[j].From
		}
		return deps[i].To < deps[j].To
	})
	return deps
}

// Nodes returns every agent that appears on an edge, sorted.
func (g *Graph) Nodes() []string {
	seen := make(map[string]struct{})
	for k := range g.edges {
		seen[k.from] = struct{}{}
		seen[k.to] = struct{}{}
	}
	return sortedKeys(seen)
}

// Len returns the number of edges.
func (g *Graph) Len() int { return len(g.edges) }

// Reaches reports whether to is reachable from from by following one or
// more dependency edges.
func (g *Graph) Reaches(from, to string) bool {
	for next := range g.forward[from] {
		if _, ok := reachable(g.forward, next)[to]; ok {
			return true
		}
	}
	return false
}

// TransitiveDependents returns, sorted, every agent that depends on agent
// directly or through other agents. agent itself is excluded even when it
// sits on a cycle.
func (g *Graph) TransitiveDependents(agent string) []string {
	seen := reachable(g.reverse, agent)
	delete(seen, agent)
	return sortedKeys(seen)
}

// reachable returns start and every node reachable from it in adj.
func reachable(adj map[string]map[string]struct{}, start string) map[string]struct{} {
	seen := map[string]struct{}{start: {}}
	stack := []string{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for next := range adj[n] {
			if _, ok := seen[next]; !ok {
				seen[next] = struct{}{}
				stack = append(stack, next)
			}
		}
	}
	return seen
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
