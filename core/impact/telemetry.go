package impact

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("agentver.impact")
	meter  = otel.Meter("agentver.impact")
)

var (
	analysisLatency  metric.Float64Histogram
	analysisTotal    metric.Int64Counter
	affectedAgents   metric.Int64Histogram
	incompatibleDeps metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments once. Safe to call repeatedly.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		analysisLatency, err = meter.Float64Histogram(
			"impact_analysis_duration_seconds",
			metric.WithDescription("Duration of impact analyses"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		analysisTotal, err = meter.Int64Counter(
			"impact_analysis_total",
			metric.WithDescription("Total number of impact analyses"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		affectedAgents, err = meter.Int64Histogram(
			"impact_affected_agents",
			metric.WithDescription("Number of agents affected by a version change"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		incompatibleDeps, err = meter.Int64Counter(
			"impact_incompatible_dependents_total",
			metric.WithDescription("Dependents whose constraint rejects the analyzed version"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startAnalysisSpan(ctx context.Context, agent, version string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Analyzer.Analyze",
		trace.WithAttributes(
			attribute.String("impact.agent", agent),
			attribute.String("impact.new_version", version),
		),
	)
}

func setAnalysisSpanResult(span trace.Span, r *Report) {
	span.SetAttributes(
		attribute.String("impact.breaking_risk", string(r.BreakingRisk)),
		attribute.Int("impact.direct_dependents", len(r.DirectDependents)),
		attribute.Int("impact.total_affected", r.TotalAffected),
		attribute.Int("impact.unordered", len(r.Unordered)),
		attribute.Int("impact.incompatible", len(r.IncompatibleDependents)),
	)
}

func recordAnalysisMetrics(ctx context.Context, duration time.Duration, r *Report, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	risk := ""
	if r != nil {
		risk = string(r.BreakingRisk)
	}
	attrs := metric.WithAttributes(
		attribute.String("risk_level", risk),
		attribute.Bool("success", success),
	)
	analysisLatency.Record(ctx, duration.Seconds(), attrs)
	analysisTotal.Add(ctx, 1, attrs)
	if r == nil {
		return
	}
	affectedAgents.Record(ctx, int64(r.TotalAffected))
	if n := len(r.IncompatibleDependents); n > 0 {
		incompatibleDeps.Add(ctx, int64(n))
	}
}
