package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirWorkspace_RoundTrip(t *testing.T) {
	ctx := context.Background()
	ws := NewDirWorkspace(t.TempDir())

	_, err := ws.Snapshot(ctx, "batman")
	assert.ErrorIs(t, err, ErrNoSource)

	v1 := Snapshot{Files: []File{
		{Path: "agent.py", Content: []byte("def analyze(x): return [x]\n")},
		{Path: "tools/search.py", Content: []byte("def search(q): pass\n")},
	}}
	require.NoError(t, ws.Restore(ctx, "batman", v1))

	got, err := ws.Snapshot(ctx, "batman")
	require.NoError(t, err)
	assert.Equal(t, v1.Hash(), got.Hash())

	v2 := FromText("agent.py", "def analyze(x): return {'x': x}\n")
	require.NoError(t, ws.Restore(ctx, "batman", v2))

	got, err = ws.Snapshot(ctx, "batman")
	require.NoError(t, err)
	assert.Equal(t, v2.Hash(), got.Hash())

	dir, err := ws.AgentDir("batman")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "tools"))
	assert.True(t, os.IsNotExist(err), "files absent from the snapshot are removed")
	entries, err := os.ReadDir(ws.Root)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no staging or parked directories are left behind")
	assert.Equal(t, "batman", entries[0].Name())
}

func TestDirWorkspace_RestoreLeavesSimilarlyNamedAgents(t *testing.T) {
	ctx := context.Background()
	ws := NewDirWorkspace(t.TempDir())
	require.NoError(t, ws.Restore(ctx, "batman", FromText("a.py", "a\n")))
	require.NoError(t, ws.Restore(ctx, "batman.old", FromText("b.py", "b\n")))
	require.NoError(t, ws.Restore(ctx, "batman.tmp", FromText("c.py", "c\n")))

	require.NoError(t, ws.Restore(ctx, "batman", FromText("a.py", "a2\n")))

	for agent, want := range map[string]string{"batman.old": "b\n", "batman.tmp": "c\n", "batman": "a2\n"} {
		got, err := ws.Snapshot(ctx, agent)
		require.NoError(t, err, agent)
		assert.Equal(t, want, string(got.Files[0].Content), agent)
	}
}

func TestDirWorkspace_RestoreKeepsUnversionedEntries(t *testing.T) {
	ctx := context.Background()
	ws := NewDirWorkspace(t.TempDir())
	require.NoError(t, ws.Restore(ctx, "batman", Snapshot{Files: []File{
		{Path: "a.py", Content: []byte("v1\n")},
		{Path: "pkg/b.py", Content: []byte("v1\n")},
	}}))
	dir, err := ws.AgentDir("batman")
	require.NoError(t, err)

	kept := map[string]string{
		"testdata/fixture.txt":     "fixture\n",
		".venv/lib/site.py":        "venv\n",
		"vendor/dep/dep.go":        "package dep\n",
		"__pycache__/a.pyc":        "bytecode",
		"pkg/testdata/golden.json": "{}\n",
		"gone/testdata/orphan.txt": "orphan\n",
	}
	for rel, body := range kept {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	require.NoError(t, os.Symlink("a.py", filepath.Join(dir, "link.py")))

	v2 := Snapshot{Files: []File{
		{Path: "a.py", Content: []byte("v2\n")},
		{Path: "pkg/b.py", Content: []byte("v2\n")},
	}}
	require.NoError(t, ws.Restore(ctx, "batman", v2))

	got, err := ws.Snapshot(ctx, "batman")
	require.NoError(t, err)
	assert.Equal(t, v2.Hash(), got.Hash())
	for rel, body := range kept {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		require.NoError(t, err, rel)
		assert.Equal(t, body, string(data), rel)
	}
	target, err := os.Readlink(filepath.Join(dir, "link.py"))
	require.NoError(t, err)
	assert.Equal(t, "a.py", target)
}

func TestDirWorkspace_SnapshotBringsItsOwnCopy(t *testing.T) {
	ctx := context.Background()
	ws := NewDirWorkspace(t.TempDir())
	dir, err := ws.AgentDir("robin")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "testdata"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "testdata", "old.txt"), []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent.py"), []byte("v1"), 0o644))

	require.NoError(t, ws.Restore(ctx, "robin", Snapshot{Files: []File{
		{Path: "agent.py", Content: []byte("v2")},
		{Path: "testdata/new.txt", Content: []byte("new")},
	}}))

	data, err := os.ReadFile(filepath.Join(dir, "testdata", "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	_, err = os.Stat(filepath.Join(dir, "testdata", "old.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestDirWorkspace_RejectsEscapingPaths(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	ws := NewDirWorkspace(root)
	require.NoError(t, ws.Restore(ctx, "robin", FromText("agent.py", "ok\n")))

	err := ws.Restore(ctx, "robin", FromText("../../evil.py", "bad\n"))
	require.Error(t, err)

	got, err := ws.Snapshot(ctx, "robin")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(got.Files[0].Content))
}

func TestDirWorkspace_AgentDir(t *testing.T) {
	ws := NewDirWorkspace("/srv/agents")

	dir, err := ws.AgentDir("team/robin")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/agents", "team%2Frobin"), dir)

	for _, bad := range []string{"", ".", ".."} {
		_, err := ws.AgentDir(bad)
		assert.Error(t, err, bad)
	}
}

func TestDirWorkspace_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ws := NewDirWorkspace(t.TempDir())

	_, err := ws.Snapshot(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, ws.Restore(ctx, "a", FromText("a.py", "x")), context.Canceled)
}
