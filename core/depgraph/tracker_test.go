package depgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emenda-labs/agentver/core/store"
)

func newTestTracker(s store.Store) *Tracker {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return NewTracker(s,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return fixed }),
	)
}

func TestTracker_AddPersistsDocument(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	tr := newTestTracker(mem)

	_, cyclic, err := tr.AddDependency(ctx, "app", "core", "^1.0.0", KindRequires)
	require.NoError(t, err)
	assert.False(t, cyclic)

	data, err := mem.Get(ctx, GraphKey)
	require.NoError(t, err)

	var doc document
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Edges, 1)
	assert.Equal(t, []string{"core"}, doc.Adjacency["app"])
	assert.Equal(t, []string{"app"}, doc.ReverseAdjacency["core"])
}

func TestTracker_ReloadsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	_, _, err := newTestTracker(mem).AddDependency(ctx, "app", "core", "", "")
	require.NoError(t, err)

	deps, err := newTestTracker(mem).Dependents(ctx, "core")
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "app", deps[0].From)
	assert.Equal(t, KindRequires, deps[0].Kind)
}

func TestTracker_AddReportsCycle(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(store.NewMemory())

	_, _, err := tr.AddDependency(ctx, "a", "b", "", KindRequires)
	require.NoError(t, err)
	_, _, err = tr.AddDependency(ctx, "b", "c", "", KindRequires)
	require.NoError(t, err)
	_, cyclic, err := tr.AddDependency(ctx, "c", "a", "", KindRequires)
	require.NoError(t, err)
	assert.True(t, cyclic)

	cycles, err := tr.DetectCycles(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b", "c", "a"}}, cycles)
}

func TestTracker_RemoveDependency(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(store.NewMemory())

	_, _, err := tr.AddDependency(ctx, "a", "b", "", KindRequires)
	require.NoError(t, err)

	removed, err := tr.RemoveDependency(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = tr.RemoveDependency(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, removed)

	deps, err := tr.Dependencies(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestTracker_InvalidEdgeLeavesGraphUntouched(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	tr := newTestTracker(mem)

	_, _, err := tr.AddDependency(ctx, "a", "a", "", KindRequires)
	assert.ErrorIs(t, err, ErrSelfDependency)

	_, err = mem.Get(ctx, GraphKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTracker_ConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(store.NewMemory())

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := tr.AddDependency(ctx, fmt.Sprintf("agent-%02d", i), "core", "", KindRequires)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	deps, err := tr.Dependents(ctx, "core")
	require.NoError(t, err)
	assert.Len(t, deps, 20)
}

func TestTracker_CheckConstraints(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(store.NewMemory())

	for _, e := range []struct {
		from, to, constraint string
		kind                 Kind
	}{
		{"app", "core", "^1.0.0", KindRequires},
		{"app", "auth", ">=2.0", KindRequires},
		{"app", "legacy", "<1.0", KindConflicts},
		{"app", "ghost", ">=1.0", KindRequires},
	} {
		_, _, err := tr.AddDependency(ctx, e.from, e.to, e.constraint, e.kind)
		require.NoError(t, err)
	}

	versions := map[string]string{"core": "1.4.0", "auth": "1.9.0", "legacy": "0.3.0"}
	lookup := func(_ context.Context, agent string) (string, error) {
		v, ok := versions[agent]
		if !ok {
			return "", fmt.Errorf("%s: %w", agent, store.ErrNotFound)
		}
		return v, nil
	}

	violations, err := tr.CheckConstraints(ctx, lookup)
	require.NoError(t, err)

	var targets []string
	for _, v := range violations {
		targets = append(targets, v.Dependency.To)
	}
	assert.Equal(t, []string{"auth", "legacy"}, targets)
}

func TestTracker_TopologicalOrder(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(store.NewMemory())
	_, _, err := tr.AddDependency(ctx, "app", "core", "", KindRequires)
	require.NoError(t, err)

	ord, err := tr.TopologicalOrder(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, []string{"core", "app"}, ord.Order)
}
