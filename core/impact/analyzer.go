// Package impact answers what is affected when an agent moves to a new
// version, and in which order its dependents should be updated.
package impact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/emenda-labs/agentver/core/depgraph"
	"github.com/emenda-labs/agentver/core/store"
	"github.com/emenda-labs/agentver/core/versioning"
)

// RiskLevel classifies how many agents a change reaches.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Thresholds maps an affected-agent count to a risk level: up to LowMax is
// low, up to MediumMax is medium, anything above is high.
type Thresholds struct {
	LowMax    int `json:"low_max" yaml:"low_max"`
	MediumMax int `json:"medium_max" yaml:"medium_max"`
}

// DefaultThresholds is low for at most 2 affected agents and medium for at
// most 5.
var DefaultThresholds = Thresholds{LowMax: 2, MediumMax: 5}

// Validate checks that the thresholds are non-negative and ordered.
func (t Thresholds) Validate() error {
	if t.LowMax < 0 || t.MediumMax < t.LowMax {
		return fmt.Errorf("invalid risk thresholds: low_max=%d medium_max=%d", t.LowMax, t.MediumMax)
	}
	return nil
}

// Classify returns the risk level for total affected agents.
func (t Thresholds) Classify(total int) RiskLevel {
	switch {
	case total <= t.LowMax:
		return RiskLow
	case total <= t.MediumMax:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// Incompatibility is a dependent whose declared constraint on the analyzed
// agent is broken by the new version.
type Incompatibility struct {
	Agent      string        `json:"agent"`
	Constraint string        `json:"constraint"`
	Kind       depgraph.Kind `json:"kind"`
	Reason     string        `json:"reason"`
}

// Report is the result of an impact analysis.
type Report struct {
	Agent                  string            `json:"agent"`
	NewVersion             string            `json:"new_version"`
	CurrentVersion         string            `json:"current_version,omitempty"`
	DirectDependents       []string          `json:"direct_dependents"`
	IndirectDependents     []string          `json:"indirect_dependents"`
	TotalAffected          int               `json:"total_affected"`
	BreakingRisk           RiskLevel         `json:"breaking_risk"`
	UpdateOrder            []string          `json:"update_order"`
	Unordered              []string          `json:"unordered"`
	IncompatibleDependents []Incompatibility `json:"incompatible_dependents"`
}

// GraphSource loads a consistent copy of the dependency graph.
type GraphSource interface {
	Graph(ctx context.Context) (*depgraph.Graph, error)
}

// VersionSource returns the current version of an agent. Errors wrapping
// store.ErrNotFound mean the agent has no history yet.
type VersionSource interface {
	CurrentVersion(ctx context.Context, agent string) (string, error)
}

// Analyzer computes impact reports.
type Analyzer struct {
	graphs     GraphSource
	versions   VersionSource
	thresholds Thresholds
	logger     *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithVersions fills in the current version of the analyzed agent.
func WithVersions(v VersionSource) Option {
	return func(a *Analyzer) { a.versions = v }
}

// WithThresholds overrides DefaultThresholds.
func WithThresholds(t Thresholds) Option {
	return func(a *Analyzer) { a.thresholds = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// NewAnalyzer creates an Analyzer over graphs.
func NewAnalyzer(graphs GraphSource, opts ...Option) *Analyzer {
	a := &Analyzer{graphs: graphs, thresholds: DefaultThresholds, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze reports the agents affected by moving agent to newVersion. The
// update order starts with agent and places every agent after all of its
// dependencies among the affected set; agents caught in a cycle are listed
// in Unordered instead.
func (a *Analyzer) Analyze(ctx context.Context, agent, newVersion string) (report *Report, err error) {
	ctx, span := startAnalysisSpan(ctx, agent, newVersion)
	defer span.End()
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		recordAnalysisMetrics(ctx, time.Since(start), report, err == nil)
	}()

	if agent == "" {
		return nil, errors.New("agent is required")
	}
	if err := a.thresholds.Validate(); err != nil {
		return nil, err
	}
	v, err := versioning.ParseVersion(newVersion)
	if err != nil {
		return nil, err
	}

	g, err := a.graphs.Graph(ctx)
	if err != nil {
		return nil, err
	}

	report = &Report{
		Agent:                  agent,
		NewVersion:             v.String(),
		DirectDependents:       []string{},
		IndirectDependents:     []string{},
		IncompatibleDependents: []Incompatibility{},
	}

	if a.versions != nil {
		cur, err := a.versions.CurrentVersion(ctx, agent)
		switch {
		case err == nil:
			report.CurrentVersion = cur
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("looking up current version of %s: %w", agent, err)
		}
	}

	direct := make(map[string]struct{})
	for _, dep := range g.Dependents(agent) {
		direct[dep.From] = struct{}{}
		report.DirectDependents = append(report.DirectDependents, dep.From)
		if viol, bad := depgraph.Violates(dep, report.NewVersion); bad {
			report.IncompatibleDependents = append(report.IncompatibleDependents, Incompatibility{
				Agent:      dep.From,
				Constraint: dep.Constraint,
				Kind:       dep.Kind,
				Reason:     viol.Reason,
			})
		}
	}
	for _, n := range g.TransitiveDependents(agent) {
		if _, ok := direct[n]; !ok {
			report.IndirectDependents = append(report.IndirectDependents, n)
		}
	}
	report.TotalAffected = len(report.DirectDependents) + len(report.IndirectDependents)
	report.BreakingRisk = a.thresholds.Classify(report.TotalAffected)

	ordering := g.DependentOrder(agent)
	report.UpdateOrder = ordering.Order
	report.Unordered = ordering.Unordered

	setAnalysisSpanResult(span, report)
	if !ordering.Complete() {
		a.logger.Warn("update order incomplete: dependents on a cycle",
			"agent", agent, "unordered", ordering.Unordered)
	}
	a.logger.Debug("impact analyzed",
		"agent", agent,
		"new_version", report.NewVersion,
		"total_affected", report.TotalAffected,
		"risk", report.BreakingRisk)
	return report, nil
}
