package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordVersionCreated("MINOR", 2048)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.VersionsCreated.WithLabelValues("MINOR")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.VersionsCreated.WithLabelValues("MINOR")))
}

func TestRecorders(t *testing.T) {
	m := New()
	m.RecordRollback("DANGEROUS", false)
	m.RecordBreakingChange("critical")
	m.RecordBreakingChange("critical")
	m.RecordParseFailure()
	m.SetGraphSize(3)
	m.SetCycles(1)
	m.RecordBackupFailure()
	m.RecordVCSFailure("tag")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rollbacks.WithLabelValues("DANGEROUS", "failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakingChanges.WithLabelValues("critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ParseFailures))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DependencyEdges))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesDetected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackupFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VCSFailures.WithLabelValues("tag")))
}

func TestObserveOperation(t *testing.T) {
	m := New()
	err := errors.New("boom")
	m.ObserveOperation("rollback", time.Now(), &err)
	m.ObserveOperation("rollback", time.Now(), nil)

	assert.Equal(t, 2, testutil.CollectAndCount(m.OperationDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordVersionCreated("MAJOR", 1)
	m.RecordRollback("SAFE", true)
	m.SetCycles(2)
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.RecordVersionCreated("PATCH", 10)
	path := filepath.Join(t.TempDir(), "agentver.prom")

	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `agentver_versions_created_total{change_type="PATCH"} 1`)
}
