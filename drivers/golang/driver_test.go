package golang

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/emenda-labs/agentver/core/snapshot"
	"github.com/emenda-labs/agentver/core/symbols"
)

func testdataDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("unable to determine test file path")
	}
	return filepath.Join(filepath.Dir(file), "testdata")
}

func extractFixture(t *testing.T, version string) symbols.Table {
	t.Helper()
	path := filepath.Join(testdataDir(t), version, "agent.go")
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading fixture: %v", err)
	}
	table, err := NewExtractor().Extract(context.Background(), snapshot.File{Path: "agent.go", Content: content})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	return table
}

func TestExtract_OldFixture(t *testing.T) {
	table := extractFixture(t, "old")

	if table.Language != "go" {
		t.Errorf("language = %q, want go", table.Language)
	}
	if !table.PositionalOnly {
		t.Error("Go tables must be positional-only")
	}

	funcs := table.FunctionMap()
	for _, name := range []string{"DoWork", "SimpleFunc", "HelperFunc", "OldOnly", "Variadic"} {
		if _, ok := funcs[name]; !ok {
			t.Errorf("missing function %s", name)
		}
	}
	if len(funcs) != 5 {
		t.Errorf("got %d functions, want 5", len(funcs))
	}

	classes := table.ClassMap()
	if _, ok := classes["unexportedType"]; ok {
		t.Error("unexported type should be skipped")
	}
	config, ok := classes["Config"]
	if !ok {
		t.Fatal("missing class Config")
	}
	if !slicesEqual(config.Methods, []string{"Apply", "Validate"}) {
		t.Errorf("Config methods = %v", config.Methods)
	}
	handler := classes["Handler"]
	if !slicesEqual(handler.Methods, []string{"Close", "Handle"}) {
		t.Errorf("Handler methods = %v", handler.Methods)
	}

	consts := table.ConstantMap()
	if got := consts["MaxRetries"].Value; got != "int(3)" {
		t.Errorf("MaxRetries value = %q, want %q", got, "int(3)")
	}
	if got := consts["UntypedConst"].Value; got != `"hello"` {
		t.Errorf("UntypedConst value = %q", got)
	}
	if consts["LevelLow"].Value == consts["LevelMid"].Value {
		t.Errorf("iota constants should differ: %q", consts["LevelLow"].Value)
	}
	if _, ok := consts["levelHidden"]; ok {
		t.Error("unexported constant should be skipped")
	}
}

func TestExtract_NewFixture(t *testing.T) {
	table := extractFixture(t, "new")
	funcs := table.FunctionMap()

	if _, ok := funcs["OldOnly"]; ok {
		t.Error("OldOnly should not exist in new")
	}
	if _, ok := funcs["HelperFunction"]; !ok {
		t.Error("HelperFunction should exist in new")
	}
	doWork := funcs["DoWork"]
	if len(doWork.Params) != 3 {
		t.Fatalf("DoWork params = %+v", doWork.Params)
	}
	if doWork.Params[2].Optional {
		t.Error("opts is required")
	}
	if _, ok := table.ClassMap()["Config"]; ok {
		t.Error("Config should not exist in new (renamed to Settings)")
	}
}

func TestExtract_Params(t *testing.T) {
	tests := []struct {
		name        string
		src         string
		wantParams  []symbols.Param
		wantReturns string
	}{
		{
			name:        "simple",
			src:         "package p\nfunc F(a int, b string) error { return nil }",
			wantParams:  []symbols.Param{{Name: "a", Type: "int"}, {Name: "b", Type: "string"}},
			wantReturns: "error",
		},
		{
			name: "no_params_no_results",
			src:  "package p\nfunc F() {}",
		},
		{
			name:       "variadic",
			src:        "package p\nfunc F(a int, rest ...string) {}",
			wantParams: []symbols.Param{{Name: "a", Type: "int"}, {Name: "rest", Type: "...string", Optional: true}},
		},
		{
			name:        "multi_return",
			src:         "package p\nfunc F() (int, error) { return 0, nil }",
			wantReturns: "(int, error)",
		},
		{
			name:       "shared_type_params",
			src:        "package p\nfunc F(a, b int) {}",
			wantParams: []symbols.Param{{Name: "a", Type: "int"}, {Name: "b", Type: "int"}},
		},
		{
			name:        "named_results",
			src:         "package p\nfunc F() (n int, err error) { return 0, nil }",
			wantReturns: "(int, error)",
		},
		{
			name:        "func_typed_param",
			src:         "package p\nfunc F(cb func(int) error) {}",
			wantParams:  []symbols.Param{{Name: "cb", Type: "func(int) error"}},
			wantReturns: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := NewExtractor().Extract(context.Background(), snapshot.File{Path: "p.go", Content: []byte(tt.src)})
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if len(table.Functions) != 1 {
				t.Fatalf("got %d functions, want 1", len(table.Functions))
			}
			fn := table.Functions[0]
			if len(fn.Params) != len(tt.wantParams) {
				t.Fatalf("params = %+v, want %+v", fn.Params, tt.wantParams)
			}
			for i := range fn.Params {
				if fn.Params[i] != tt.wantParams[i] {
					t.Errorf("param %d = %+v, want %+v", i, fn.Params[i], tt.wantParams[i])
				}
			}
			if fn.Returns != tt.wantReturns {
				t.Errorf("returns = %q, want %q", fn.Returns, tt.wantReturns)
			}
		})
	}
}

func TestExtract_SyntaxError(t *testing.T) {
	src := "package p\n\nfunc Broken( {\n"
	_, err := NewExtractor().Extract(context.Background(), snapshot.File{Path: "broken.go", Content: []byte(src)})

	var perr *symbols.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *symbols.ParseError", err)
	}
	if perr.File != "broken.go" {
		t.Errorf("file = %q", perr.File)
	}
	if perr.Line != 3 {
		t.Errorf("line = %d, want 3", perr.Line)
	}
}

func TestExtract_SkipsTestFiles(t *testing.T) {
	src := "package p\nfunc TestHelper() {}"
	table, err := NewExtractor().Extract(context.Background(), snapshot.File{Path: "p_test.go", Content: []byte(src)})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(table.Functions) != 0 {
		t.Errorf("functions = %+v, want none", table.Functions)
	}
}

func TestBaseTypeName(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"package p\nfunc (c *Client) M() {}", "Client"},
		{"package p\nfunc (c Client) M() {}", "Client"},
		{"package p\nfunc (c *Box[T]) M() {}", "Box"},
		{"package p\nfunc (c Pair[K, V]) M() {}", "Pair"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			table, err := NewExtractor().Extract(context.Background(), snapshot.File{Path: "p.go", Content: []byte(tt.src)})
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if _, ok := table.ClassMap()[tt.want]; !ok {
				t.Errorf("classes = %+v, want %s", table.Classes, tt.want)
			}
		})
	}
}

func slicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
