package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures what each injected handler was called with.
type recorder struct {
	create   *VersionCreateOptions
	rollback *VersionRollbackOptions
	target   *VersionTargetOptions
	history  string
	agents   bool
	add      *DepsAddOptions
	removed  [2]string
	query    *DepsQueryOptions
	cycles   bool
	check    bool
	imported string
	detect   *DetectOptions
}

func newTestRoot(rec *recorder, globals *GlobalOptions) *cobra.Command {
	target := func(_ context.Context, o VersionTargetOptions) error { rec.target = &o; return nil }
	query := func(_ context.Context, o DepsQueryOptions) error { rec.query = &o; return nil }

	root := NewRootCmd("test", globals)
	root.AddCommand(
		NewVersionCmd(VersionRunFuncs{
			Create:   func(_ context.Context, o VersionCreateOptions) error { rec.create = &o; return nil },
			Rollback: func(_ context.Context, o VersionRollbackOptions) error { rec.rollback = &o; return nil },
			Assess:   target,
			History:  func(_ context.Context, a string) error { rec.history = a; return nil },
			Show:     target,
			Guide:    target,
			Agents:   func(context.Context) error { rec.agents = true; return nil },
		}),
		NewDepsCmd(DepsRunFuncs{
			Add:    func(_ context.Context, o DepsAddOptions) error { rec.add = &o; return nil },
			Remove: func(_ context.Context, f, t string) error { rec.removed = [2]string{f, t}; return nil },
			List:   query,
			Cycles: func(context.Context) error { rec.cycles = true; return nil },
			Order:  query,
			Check:  func(context.Context) error { rec.check = true; return nil },
			Import: func(_ context.Context, a string) error { rec.imported = a; return nil },
		}),
		NewImpactCmd(target),
		NewDetectCmd(func(_ context.Context, o DetectOptions) error { rec.detect = &o; return nil }),
	)
	return root
}

func execute(t *testing.T, args ...string) (*recorder, GlobalOptions, error) {
	t.Helper()
	rec := &recorder{}
	var globals GlobalOptions
	root := newTestRoot(rec, &globals)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return rec, globals, err
}

func TestVersionCreate(t *testing.T) {
	rec, globals, err := execute(t, "--json", "version", "create", "batman",
		"--type", "major", "-m", "return type changed",
		"--breaking", "analyze() now returns a mapping", "--detect")
	require.NoError(t, err)
	require.NotNil(t, rec.create)
	assert.Equal(t, VersionCreateOptions{
		Agent:           "batman",
		ChangeType:      "major",
		Description:     "return type changed",
		BreakingChanges: []string{"analyze() now returns a mapping"},
		Detect:          true,
	}, *rec.create)
	assert.True(t, globals.JSON)
}

func TestVersionCreate_Validation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing type", []string{"version", "create", "batman"}},
		{"bad type", []string{"version", "create", "batman", "--type", "HUGE"}},
		{"empty breaking", []string{"version", "create", "batman", "--type", "PATCH", "--breaking", " "}},
		{"no agent", []string{"version", "create", "--type", "PATCH"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _, err := execute(t, tt.args...)
			assert.Error(t, err)
			assert.Nil(t, rec.create)
		})
	}
}

func TestVersionRollback(t *testing.T) {
	rec, _, err := execute(t, "version", "rollback", "batman", "0.1.0", "--force")
	require.NoError(t, err)
	require.NotNil(t, rec.rollback)
	assert.Equal(t, "batman", rec.rollback.Agent)
	assert.Equal(t, "0.1.0", rec.rollback.Version)
	assert.True(t, rec.rollback.Force)

	_, _, err = execute(t, "version", "rollback", "batman", "latest")
	assert.Error(t, err)
}

func TestVersionTargetCommands(t *testing.T) {
	for _, sub := range []string{"assess", "show", "guide"} {
		t.Run(sub, func(t *testing.T) {
			rec, _, err := execute(t, "version", sub, "robin", "v1.2.3")
			require.NoError(t, err)
			require.NotNil(t, rec.target)
			assert.Equal(t, VersionTargetOptions{Agent: "robin", Version: "v1.2.3"}, *rec.target)
		})
	}
}

func TestVersionReads(t *testing.T) {
	rec, _, err := execute(t, "version", "history", "batman")
	require.NoError(t, err)
	assert.Equal(t, "batman", rec.history)

	rec, _, err = execute(t, "version", "agents")
	require.NoError(t, err)
	assert.True(t, rec.agents)
}

func TestDepsAdd(t *testing.T) {
	rec, _, err := execute(t, "deps", "add", "web", "api", "-c", "^1.2.0", "--kind", "recommends")
	require.NoError(t, err)
	require.NotNil(t, rec.add)
	assert.Equal(t, DepsAddOptions{From: "web", To: "api", Constraint: "^1.2.0", Kind: "recommends"}, *rec.add)

	rec, _, err = execute(t, "deps", "add", "web", "api")
	require.NoError(t, err)
	assert.Equal(t, "requires", rec.add.Kind)

	_, _, err = execute(t, "deps", "add", "web", "web")
	assert.Error(t, err)

	_, _, err = execute(t, "deps", "add", "web", "api", "--kind", "likes")
	assert.Error(t, err)
}

func TestDepsOtherCommands(t *testing.T) {
	rec, _, err := execute(t, "deps", "remove", "web", "api")
	require.NoError(t, err)
	assert.Equal(t, [2]string{"web", "api"}, rec.removed)

	rec, _, err = execute(t, "deps", "list", "api", "--dependents")
	require.NoError(t, err)
	assert.Equal(t, DepsQueryOptions{Agent: "api", Dependents: true}, *rec.query)

	rec, _, err = execute(t, "deps", "order", "web")
	require.NoError(t, err)
	assert.Equal(t, DepsQueryOptions{Agent: "web"}, *rec.query)

	rec, _, err = execute(t, "deps", "cycles")
	require.NoError(t, err)
	assert.True(t, rec.cycles)

	rec, _, err = execute(t, "deps", "check")
	require.NoError(t, err)
	assert.True(t, rec.check)

	rec, _, err = execute(t, "deps", "import", "batman")
	require.NoError(t, err)
	assert.Equal(t, "batman", rec.imported)
}

func TestImpact(t *testing.T) {
	rec, _, err := execute(t, "impact", "api", "2.0.0")
	require.NoError(t, err)
	assert.Equal(t, VersionTargetOptions{Agent: "api", Version: "2.0.0"}, *rec.target)

	_, _, err = execute(t, "impact", "api")
	assert.Error(t, err)
}

func TestDetect(t *testing.T) {
	oldDir, newDir := t.TempDir(), t.TempDir()
	rec, _, err := execute(t, "detect", oldDir, newDir, "--guide")
	require.NoError(t, err)
	assert.Equal(t, DetectOptions{OldDir: oldDir, NewDir: newDir, Guide: true}, *rec.detect)

	rec, _, err = execute(t, "detect", oldDir, "/does/not/exist")
	assert.Error(t, err)
	assert.Nil(t, rec.detect)
}

func TestGlobalFlags(t *testing.T) {
	_, globals, err := execute(t, "--config", "/etc/agentver.yaml", "--log-level", "debug", "version", "agents")
	require.NoError(t, err)
	assert.Equal(t, GlobalOptions{ConfigPath: "/etc/agentver.yaml", LogLevel: "debug"}, globals)

	rec, _, err := execute(t, "--log-level", "chatty", "version", "agents")
	assert.Error(t, err)
	assert.False(t, rec.agents)
}
