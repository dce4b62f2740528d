package depgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/emenda-labs/agentver/core/metrics"
	"github.com/emenda-labs/agentver/core/store"
)

// GraphKey is the store key of the persisted dependency graph.
const GraphKey = "graph/dependencies.json"

// document is the persisted form of the graph. Adjacency lists are stored
// alongside the edges so the file can be read without rebuilding them.
type document struct {
	Edges            []Dependency        `json:"edges"`
	Adjacency        map[string][]string `json:"adjacency"`
	ReverseAdjacency map[string][]string `json:"reverse_adjacency"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// Violation is an edge whose constraint does not hold for the target's
// current version.
type Violation struct {
	Dependency Dependency `json:"dependency"`
	Version    string     `json:"version"`
	Reason     string     `json:"reason"`
}

// VersionLookup returns an agent's current version, or an error wrapping
// store.ErrNotFound when the agent has none.
type VersionLookup func(ctx context.Context, agent string) (string, error)

// Tracker persists the dependency graph as a single store document.
// Mutations hold the document's lock across load, change and save.
type Tracker struct {
	store   store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) TrackerOption {
	return func(t *Tracker) { t.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a Tracker over s.
func NewTracker(s store.Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{store: s, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Graph loads the current graph. A missing document is an empty graph.
func (t *Tracker) Graph(ctx context.Context) (*Graph, error) {
	var doc document
	err := store.GetJSON(ctx, t.store, GraphKey, &doc)
	if errors.Is(err, store.ErrNotFound) {
		return NewGraph(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading dependency graph: %w", err)
	}

	g := NewGraph()
	for _, dep := range doc.Edges {
		if err := g.AddDependency(dep); err != nil {
			return nil, fmt.Errorf("loading dependency graph: edge %s -> %s: %w", dep.From, dep.To, err)
		}
	}
	return g, nil
}

func (t *Tracker) save(ctx context.Context, g *Graph) error {
	doc := document{
		Edges:            g.Edges(),
		Adjacency:        make(map[string][]string),
		ReverseAdjacency: make(map[string][]string),
		UpdatedAt:        t.now().UTC(),
	}
	for _, dep := range doc.Edges {
		doc.Adjacency[dep.From] = append(doc.Adjacency[dep.From], dep.To)
	}
	for _, node := range g.Nodes() {
		for _, dep := range g.Dependents(node) {
			doc.ReverseAdjacency[node] = append(doc.ReverseAdjacency[node], dep.From)
		}
	}
	if err := store.PutJSON(ctx, t.store, GraphKey, doc); err != nil {
		return fmt.Errorf("saving dependency graph: %w", err)
	}
	t.metrics.SetGraphSize(g.Len())
	return nil
}

// update runs fn on the freshly loaded graph under the graph lock and
// saves the result when fn reports a change.
func (t *Tracker) update(ctx context.Context, fn func(g *Graph) (bool, error)) error {
	unlock, err := t.store.Lock(ctx, GraphKey)
	if err != nil {
		return fmt.Errorf("locking dependency graph: %w", err)
	}
	defer unlock()

	g, err := t.Graph(ctx)
	if err != nil {
		return err
	}
	changed, err := fn(g)
	if err != nil || !changed {
		return err
	}
	return t.save(ctx, g)
}

// AddDependency records that from depends on to. Re-adding an existing
// edge replaces its constraint and kind. The returned flag reports whether
// the new edge closes a cycle; such edges are kept and logged.
func (t *Tracker) AddDependency(ctx context.Context, from, to, constraint string, kind Kind) (Dependency, bool, error) {
	dep := Dependency{
		From:       from,
		To:         to,
		Constraint: constraint,
		Kind:       kind,
		AddedAt:    t.now().UTC(),
	}
	var cyclic bool
	err := t.update(ctx, func(g *Graph) (bool, error) {
		if err := g.AddDependency(dep); err != nil {
			return false, err
		}
		dep, _ = g.Edge(from, to)
		cyclic = g.Reaches(to, from)
		return true, nil
	})
	if err != nil {
		return Dependency{}, false, fmt.Errorf("adding dependency %s -> %s: %w", from, to, err)
	}

	t.logger.Info("dependency added",
		slog.String("from", from),
		slog.String("to", to),
		slog.String("constraint", dep.Constraint),
		slog.String("kind", string(dep.Kind)))
	if cyclic {
		t.logger.Warn("dependency closes a cycle", slog.String("from", from), slog.String("to", to))
	}
	return dep, cyclic, nil
}

// RemoveDependency deletes the edge from -> to and reports whether it existed.
func (t *Tracker) RemoveDependency(ctx context.Context, from, to string) (bool, error) {
	var removed bool
	err := t.update(ctx, func(g *Graph) (bool, error) {
		removed = g.RemoveDependency(from, to)
		return removed, nil
	})
	if err != nil {
		return false, fmt.Errorf("removing dependency %s -> %s: %w", from, to, err)
	}
	if removed {
		t.logger.Info("dependency removed", slog.String("from", from), slog.String("to", to))
	}
	return removed, nil
}

// Dependencies returns the edges leaving agent.
func (t *Tracker) Dependencies(ctx context.Context, agent string) ([]Dependency, error) {
	g, err := t.Graph(ctx)
	if err != nil {
		return nil, err
	}
	return g.Dependencies(agent), nil
}

// Dependents returns the edges entering agent.
func (t *Tracker) Dependents(ctx context.Context, agent string) ([]Dependency, error) {
	g, err := t.Graph(ctx)
	if err != nil {
		return nil, err
	}
	return g.Dependents(agent), nil
}

// DetectCycles loads the graph and returns its cycles.
func (t *Tracker) DetectCycles(ctx context.Context) ([][]string, error) {
	g, err := t.Graph(ctx)
	if err != nil {
		return nil, err
	}
	cycles := g.DetectCycles()
	t.metrics.SetCycles(len(cycles))
	if len(cycles) > 0 {
		t.logger.Warn("dependency cycles detected", slog.Int("count", len(cycles)))
	}
	return cycles, nil
}

// TopologicalOrder loads the graph and orders start's dependencies.
func (t *Tracker) TopologicalOrder(ctx context.Context, start string) (Ordering, error) {
	g, err := t.Graph(ctx)
	if err != nil {
		return Ordering{}, err
	}
	return g.TopologicalOrder(start), nil
}

// CheckConstraints returns every edge whose constraint rejects the
// target's current version. For conflicts edges the meaning is inverted: a
// matching version is the violation. Targets without a version are
// skipped.
func (t *Tracker) CheckConstraints(ctx context.Context, lookup VersionLookup) ([]Violation, error) {
	g, err := t.Graph(ctx)
	if err != nil {
		return nil, err
	}

	violations := []Violation{}
	for _, dep := range g.Edges() {
		version, err := lookup(ctx, dep.To)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("looking up version of %s: %w", dep.To, err)
		}
		if v, ok := Violates(dep, version); ok {
			violations = append(violations, v)
		}
	}
	return violations, nil
}

// Violates checks one edge against a version of its target.
func Violates(dep Dependency, version string) (Violation, bool) {
	c, err := ParseConstraint(dep.Constraint)
	if err != nil {
		return Violation{Dependency: dep, Version: version, Reason: err.Error()}, true
	}
	allowed := c.Allows(version)
	switch {
	case dep.Kind == KindConflicts && allowed:
		return Violation{
			Dependency: dep,
			Version:    version,
			Reason:     fmt.Sprintf("%s conflicts with %s %s", dep.From, dep.To, c),
		}, true
	case dep.Kind != KindConflicts && !allowed:
		return Violation{
			Dependency: dep,
			Version:    version,
			Reason:     fmt.Sprintf("%s %s does not satisfy %s", dep.To, version, c),
		}, true
	}
	return Violation{}, false
}
