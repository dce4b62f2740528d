package breaking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emenda-labs/agentver/core/changespec"
	"github.com/emenda-labs/agentver/core/symbols"
)

func fn(name string, params ...symbols.Param) symbols.Function {
	return symbols.Function{Name: name, Params: params}
}

func req(name string) symbols.Param { return symbols.Param{Name: name} }

func opt(name string) symbols.Param { return symbols.Param{Name: name, Optional: true} }

func pyTable(funcs ...symbols.Function) symbols.Table {
	return symbols.Table{Language: "python", Functions: funcs}
}

func findChange(t *testing.T, report changespec.Report, symbol string, kind changespec.ChangeKind) changespec.Change {
	t.Helper()
	for _, c := range report.Changes {
		if c.Symbol == symbol && c.Kind == kind {
			return c
		}
	}
	t.Fatalf("no %s change for %s in %+v", kind, symbol, report.Changes)
	return changespec.Change{}
}

func TestDetect_Identical(t *testing.T) {
	table := symbols.Table{
		Functions: []symbols.Function{fn("greet", req("name"), opt("greeting"))},
		Classes:   []symbols.Class{{Name: "Agent", Methods: []string{"run"}}},
		Constants: []symbols.Constant{{Name: "MAX", Value: "3"}},
	}

	report := Detect(table, table)

	assert.False(t, report.HasBreakingChanges)
	assert.Empty(t, report.Changes)
	assert.Empty(t, report.AffectedAPIs)
	assert.False(t, report.MigrationRequired)
	assert.Equal(t, changespec.Severity(""), report.OverallSeverity)
}

func TestDetect_Empty(t *testing.T) {
	report := Detect(symbols.Table{}, symbols.Table{})
	assert.False(t, report.HasBreakingChanges)
	assert.NotNil(t, report.Changes)
}

func TestDetect_FunctionRemoved(t *testing.T) {
	old := pyTable(fn("greet", req("name")), fn("farewell", req("name")))
	new := pyTable(fn("greet", req("name")))

	report := Detect(old, new)

	c := findChange(t, report, "farewell", changespec.ChangeKindFunctionRemoved)
	assert.Equal(t, changespec.SeverityCritical, c.Severity)
	assert.True(t, report.HasBreakingChanges)
	assert.True(t, report.MigrationRequired)
	assert.Equal(t, changespec.SeverityCritical, report.OverallSeverity)
	assert.Equal(t, []string{"farewell"}, report.AffectedAPIs)
}

func TestDetect_FunctionRemovedWithReplacementHint(t *testing.T) {
	params := []symbols.Param{{Name: "a", Type: "int"}, {Name: "b", Type: "int"}}
	old := symbols.Table{Functions: []symbols.Function{{Name: "HelperFunc", Params: params, Returns: "int"}}}
	new := symbols.Table{Functions: []symbols.Function{{Name: "HelperFunction", Params: params, Returns: "int"}}}

	report := Detect(old, new)

	c := findChange(t, report, "HelperFunc", changespec.ChangeKindFunctionRemoved)
	assert.Contains(t, c.MigrationHint, "HelperFunction")
}

func TestDetect_RenameOnZeroValueTables(t *testing.T) {
	old := symbols.Table{Functions: []symbols.Function{fn("analyze", req("query"))}}
	new := symbols.Table{Functions: []symbols.Function{fn("analyze", req("prompt"))}}

	report := Detect(old, new)

	require.True(t, report.HasBreakingChanges)
	c := findChange(t, report, "analyze", changespec.ChangeKindSignatureChanged)
	assert.Equal(t, changespec.SeverityHigh, c.Severity)
}

func TestDetect_RepeatedNamesAgainstThemselves(t *testing.T) {
	dup := symbols.Table{
		Functions: []symbols.Function{fn("f"), fn("f", req("x"))},
		Classes:   []symbols.Class{{Name: "C", Methods: []string{"b"}}, {Name: "C", Methods: []string{"a"}}},
		Constants: []symbols.Constant{{Name: "K", Value: "1"}, {Name: "K", Value: "2"}},
	}

	report := Detect(dup, dup)

	assert.False(t, report.HasBreakingChanges)
	assert.Empty(t, report.Changes)
	assert.Len(t, dup.Functions, 2, "inputs are left as given")
	assert.Empty(t, dup.Functions[0].Params)
	assert.Equal(t, []string{"b"}, dup.Classes[0].Methods)
}

func TestDetect_ParameterChanges(t *testing.T) {
	tests := []struct {
		name     string
		old, new symbols.Function
		posOnly  bool
		want     changespec.Severity
		wantNone bool
	}{
		{"required_added", fn("f", req("a")), fn("f", req("a"), req("b")), false, changespec.SeverityCritical, false},
		{"param_removed", fn("f", req("a"), req("b")), fn("f", req("a")), false, changespec.SeverityCritical, false},
		{"optional_removed", fn("f", req("a"), opt("b")), fn("f", req("a")), false, changespec.SeverityCritical, false},
		{"optional_added", fn("f", req("a")), fn("f", req("a"), opt("b")), false, changespec.SeverityLow, false},
		{"renamed_named_args", fn("f", req("a")), fn("f", req("x")), false, changespec.SeverityHigh, false},
		{"renamed_positional_only", fn("f", req("a")), fn("f", req("x")), true, "", true},
		{"became_required", fn("f", opt("a")), fn("f", req("a")), false, changespec.SeverityCritical, false},
		{"became_optional", fn("f", req("a")), fn("f", opt("a")), false, "", true},
		{
			"type_changed",
			symbols.Function{Name: "f", Params: []symbols.Param{{Name: "a", Type: "int"}}},
			symbols.Function{Name: "f", Params: []symbols.Param{{Name: "a", Type: "str"}}},
			false, changespec.SeverityHigh, false,
		},
		{
			"type_added_is_not_breaking",
			symbols.Function{Name: "f", Params: []symbols.Param{{Name: "a"}}},
			symbols.Function{Name: "f", Params: []symbols.Param{{Name: "a", Type: "str"}}},
			false, "", true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old := symbols.Table{PositionalOnly: tt.posOnly, Functions: []symbols.Function{tt.old}}
			new := symbols.Table{PositionalOnly: tt.posOnly, Functions: []symbols.Function{tt.new}}

			report := Detect(old, new)

			if tt.wantNone {
				assert.Empty(t, report.Changes)
				return
			}
			require.Len(t, report.Changes, 1)
			c := report.Changes[0]
			assert.Equal(t, changespec.ChangeKindSignatureChanged, c.Kind)
			assert.Equal(t, tt.want, c.Severity)
			assert.NotEmpty(t, c.MigrationHint)
			assert.NotEqual(t, c.OldSignature, c.NewSignature)
		})
	}
}

func TestDetect_SignatureChangeTakesWorstSeverity(t *testing.T) {
	old := pyTable(fn("f", req("a")))
	new := pyTable(fn("f", req("x"), req("y"), opt("z")))

	report := Detect(old, new)

	require.Len(t, report.Changes, 1)
	assert.Equal(t, changespec.SeverityCritical, report.Changes[0].Severity)
	assert.Contains(t, report.Changes[0].MigrationHint, `"y"`)
	assert.Contains(t, report.Changes[0].MigrationHint, `"z"`)
}

func TestDetect_ReturnTypeChanged(t *testing.T) {
	old := symbols.Table{Functions: []symbols.Function{{Name: "f", Returns: "dict"}}}
	changed := symbols.Table{Functions: []symbols.Function{{Name: "f", Returns: "list"}}}
	dropped := symbols.Table{Functions: []symbols.Function{{Name: "f"}}}
	undeclared := symbols.Table{Functions: []symbols.Function{{Name: "f"}}}

	c := findChange(t, Detect(old, changed), "f", changespec.ChangeKindReturnTypeChanged)
	assert.Equal(t, changespec.SeverityHigh, c.Severity)

	findChange(t, Detect(old, dropped), "f", changespec.ChangeKindReturnTypeChanged)

	// Adding an annotation where none existed is not a change.
	assert.Empty(t, Detect(undeclared, old).Changes)
}

func TestDetect_Classes(t *testing.T) {
	old := symbols.Table{Classes: []symbols.Class{
		{Name: "Agent", Methods: []string{"run", "stop"}},
		{Name: "Config", Methods: []string{"load", "save"}},
		{Name: "Legacy", Methods: []string{"go"}},
	}}
	new := symbols.Table{Classes: []symbols.Class{
		{Name: "Agent", Methods: []string{"run", "start"}},
		{Name: "Settings", Methods: []string{"load", "save"}},
	}}

	report := Detect(old, new)

	method := findChange(t, report, "Agent.stop", changespec.ChangeKindMethodRemoved)
	assert.Equal(t, changespec.SeverityHigh, method.Severity)

	config := findChange(t, report, "Config", changespec.ChangeKindClassRemoved)
	assert.Equal(t, changespec.SeverityCritical, config.Severity)
	assert.Contains(t, config.MigrationHint, "Settings")

	legacy := findChange(t, report, "Legacy", changespec.ChangeKindClassRemoved)
	assert.NotContains(t, legacy.MigrationHint, "renamed")

	assert.Len(t, report.Changes, 3)
}

func TestDetect_Constants(t *testing.T) {
	old := symbols.Table{Constants: []symbols.Constant{
		{Name: "MAX_RETRIES", Value: "3"},
		{Name: "MODEL", Value: `"small"`},
		{Name: "TIMEOUT", Value: "30"},
	}}
	new := symbols.Table{Constants: []symbols.Constant{
		{Name: "MAX_RETRIES", Value: "5"},
		{Name: "TIMEOUT", Value: "30"},
	}}

	report := Detect(old, new)

	changed := findChange(t, report, "MAX_RETRIES", changespec.ChangeKindConstantChanged)
	assert.Equal(t, changespec.SeverityMedium, changed.Severity)
	removed := findChange(t, report, "MODEL", changespec.ChangeKindConstantRemoved)
	assert.Equal(t, changespec.SeverityHigh, removed.Severity)

	assert.Len(t, report.Changes, 2)
	assert.True(t, report.MigrationRequired)
	assert.Equal(t, changespec.SeverityHigh, report.OverallSeverity)
}

func TestDetect_MediumOnlyNeedsNoMigration(t *testing.T) {
	old := symbols.Table{Constants: []symbols.Constant{{Name: "MAX", Value: "3"}}}
	new := symbols.Table{Constants: []symbols.Constant{{Name: "MAX", Value: "4"}}}

	report := Detect(old, new)

	assert.True(t, report.HasBreakingChanges)
	assert.False(t, report.MigrationRequired)
	assert.Equal(t, changespec.SeverityMedium, report.OverallSeverity)
}

func TestDetect_Ordering(t *testing.T) {
	old := symbols.Table{
		Functions: []symbols.Function{fn("b_func", req("a")), fn("a_func")},
		Constants: []symbols.Constant{{Name: "A", Value: "1"}, {Name: "B", Value: "1"}},
	}
	new := symbols.Table{
		Functions: []symbols.Function{fn("b_func", req("a"), opt("x"))},
		Constants: []symbols.Constant{{Name: "B", Value: "2"}},
	}

	report := Detect(old, new)

	var got []string
	for _, c := range report.Changes {
		got = append(got, string(c.Severity)+":"+c.Symbol)
	}
	assert.Equal(t, []string{"critical:a_func", "high:A", "medium:B", "low:b_func"}, got)
	assert.Equal(t, []string{"A", "B", "a_func", "b_func"}, report.AffectedAPIs)
}
