// Package metrics holds the Prometheus instruments recorded by agentver.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for agentver. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	// Version metrics
	VersionsCreated *prometheus.CounterVec
	Rollbacks       *prometheus.CounterVec
	BackupBytes     prometheus.Histogram
	BackupFailures  prometheus.Counter
	VCSFailures     *prometheus.CounterVec

	// Detection metrics
	BreakingChanges *prometheus.CounterVec
	ParseFailures   prometheus.Counter

	// Graph metrics
	DependencyEdges prometheus.Gauge
	CyclesDetected  prometheus.Gauge

	// Operation metrics
	OperationDuration *prometheus.HistogramVec
}

// New creates the metrics on a fresh registry so that separate instances
// never collide.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		VersionsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentver_versions_created_total",
				Help: "Total number of versions created",
			},
			[]string{"change_type"},
		),
		Rollbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentver_rollbacks_total",
				Help: "Total number of rollback attempts",
			},
			[]string{"safety", "result"},
		),
		BackupBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentver_backup_bytes",
				Help:    "Size of snapshot backups in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB to 256MiB
			},
		),
		BackupFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "agentver_backup_failures_total",
				Help: "Total number of code backups that could not be written",
			},
		),
		VCSFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentver_vcs_failures_total",
				Help: "Total number of failed VCS operations",
			},
			[]string{"operation"},
		),
		BreakingChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentver_breaking_changes_total",
				Help: "Total number of detected breaking changes",
			},
			[]string{"severity"},
		),
		ParseFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "agentver_parse_failures_total",
				Help: "Total number of snapshots that could not be parsed",
			},
		),
		DependencyEdges: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentver_dependency_edges",
				Help: "Number of edges in the dependency graph",
			},
		),
		CyclesDetected: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentver_dependency_cycles",
				Help: "Number of cycles found by the last cycle check",
			},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentver_operation_duration_seconds",
				Help:    "Duration of agentver operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "result"},
		),
	}
}

// RecordVersionCreated counts one new version.
func (m *Metrics) RecordVersionCreated(changeType string, backupBytes int) {
	if m == nil {
		return
	}
	m.VersionsCreated.WithLabelValues(changeType).Inc()
	m.BackupBytes.Observe(float64(backupBytes))
}

// RecordRollback counts one rollback attempt.
func (m *Metrics) RecordRollback(safety string, success bool) {
	if m == nil {
		return
	}
	m.Rollbacks.WithLabelValues(safety, result(success)).Inc()
}

// RecordBackupFailure counts one backup that could not be written.
func (m *Metrics) RecordBackupFailure() {
	if m == nil {
		return
	}
	m.BackupFailures.Inc()
}

// RecordVCSFailure counts one failed VCS operation, labelled by its name.
func (m *Metrics) RecordVCSFailure(operation string) {
	if m == nil {
		return
	}
	m.VCSFailures.WithLabelValues(operation).Inc()
}

// RecordBreakingChange counts one detected change by severity.
func (m *Metrics) RecordBreakingChange(severity string) {
	if m == nil {
		return
	}
	m.BreakingChanges.WithLabelValues(severity).Inc()
}

// RecordParseFailure counts one snapshot that failed to parse.
func (m *Metrics) RecordParseFailure() {
	if m == nil {
		return
	}
	m.ParseFailures.Inc()
}

// SetGraphSize records the current number of dependency edges.
func (m *Metrics) SetGraphSize(edges int) {
	if m == nil {
		return
	}
	m.DependencyEdges.Set(float64(edges))
}

// SetCycles records the number of cycles found.
func (m *Metrics) SetCycles(n int) {
	if m == nil {
		return
	}
	m.CyclesDetected.Set(float64(n))
}

// ObserveOperation records how long an operation took. Use as
// defer m.ObserveOperation("create_version", time.Now(), &err).
func (m *Metrics) ObserveOperation(op string, start time.Time, errp *error) {
	if m == nil {
		return
	}
	ok := errp == nil || *errp == nil
	m.OperationDuration.WithLabelValues(op, result(ok)).Observe(time.Since(start).Seconds())
}

// WriteTextfile writes every metric in the Prometheus text format to path,
// for collection by node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
