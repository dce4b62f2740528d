// Package symbols defines the language-neutral symbol table that extractors
// produce and the breaking-change detector compares.
package symbols

import (
	"fmt"
	"sort"
)

// Param is one function parameter in declaration order.
type Param struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Optional bool   `json:"optional,omitempty"` // has a default or is variadic
}

// Function is a public top-level function.
type Function struct {
	Name    string  `json:"name"`
	Params  []Param `json:"params"`
	Returns string  `json:"returns,omitempty"` // empty when no return type is declared
}

// Class is a public type together with its public method names.
type Class struct {
	Name    string   `json:"name"`
	Methods []string `json:"methods"`
}

// Constant is a module-level constant and the source text of its literal value.
type Constant struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Table is the public API surface of one source snapshot.
type Table struct {
	Language  string     `json:"language,omitempty"`
	Functions []Function `json:"functions"`
	Classes   []Class    `json:"classes"`
	Constants []Constant `json:"constants"`

	// PositionalOnly reports that callers cannot bind arguments by name,
	// so parameter names are not part of the contract.
	PositionalOnly bool `json:"positional_only,omitempty"`
}

// ParseError reports a snapshot that could not be turned into a Table.
type ParseError struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

func (e *ParseError) Error() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	case e.File != "":
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	default:
		return e.Message
	}
}

// Signature renders a function as "name(a, b: int, c=?) -> ret".
func (f Function) Signature() string {
	s := f.Name + "("
	for i, p := range f.Params {
		if i > 0 {
			s += ", "
		}
		s += p.Name
		if p.Type != "" {
			s += ": " + p.Type
		}
		if p.Optional {
			s += "=?"
		}
	}
	s += ")"
	if f.Returns != "" {
		s += " -> " + f.Returns
	}
	return s
}

func (t *Table) empty() bool {
	return t.Language == "" && len(t.Functions) == 0 && len(t.Classes) == 0 && len(t.Constants) == 0
}

// Merge appends the symbols of other into t. Later definitions of the same
// name replace earlier ones, mirroring how a redefinition shadows in source.
// The result is positional-only when every merged table is.
func (t *Table) Merge(other Table) {
	if t.empty() {
		t.PositionalOnly = other.PositionalOnly
	} else {
		t.PositionalOnly = t.PositionalOnly && other.PositionalOnly
	}
	if t.Language == "" {
		t.Language = other.Language
	}
	t.Functions = append(t.Functions, other.Functions...)
	t.Classes = append(t.Classes, other.Classes...)
	t.Constants = append(t.Constants, other.Constants...)
	t.Normalize()
}

// Normalize deduplicates by name (last wins) and sorts every section so that
// two tables built from the same source compare equal.
func (t *Table) Normalize() {
	funcs := make(map[string]Function, len(t.Functions))
	for _, f := range t.Functions {
		funcs[f.Name] = f
	}
	t.Functions = t.Functions[:0]
	for _, f := range funcs {
		t.Functions = append(t.Functions, f)
	}
	sort.Slice(t.Functions, func(i, j int) bool { return t.Functions[i].Name < t.Functions[j].Name })

	classes := make(map[string]Class, len(t.Classes))
	for _, c := range t.Classes {
		if prev, ok := classes[c.Name]; ok {
			c.Methods = append(prev.Methods, c.Methods...)
		}
		classes[c.Name] = c
	}
	t.Classes = t.Classes[:0]
	for _, c := range classes {
		c.Methods = uniqueSorted(c.Methods)
		t.Classes = append(t.Classes, c)
	}
	sort.Slice(t.Classes, func(i, j int) bool { return t.Classes[i].Name < t.Classes[j].Name })

	consts := make(map[string]Constant, len(t.Constants))
	for _, c := range t.Constants {
		consts[c.Name] = c
	}
	t.Constants = t.Constants[:0]
	for _, c := range consts {
		t.Constants = append(t.Constants, c)
	}
	sort.Slice(t.Constants, func(i, j int) bool { return t.Constants[i].Name < t.Constants[j].Name })
}

// Clone returns a deep copy of t.
func (t Table) Clone() Table {
	c := t
	c.Functions = make([]Function, len(t.Functions))
	for i, f := range t.Functions {
		f.Params = append([]Param(nil), f.Params...)
		c.Functions[i] = f
	}
	c.Classes = make([]Class, len(t.Classes))
	for i, cl := range t.Classes {
		cl.Methods = append([]string(nil), cl.Methods...)
		c.Classes[i] = cl
	}
	c.Constants = append([]Constant(nil), t.Constants...)
	return c
}

// FunctionMap indexes functions by name.
func (t Table) FunctionMap() map[string]Function {
	m := make(map[string]Function, len(t.Functions))
	for _, f := range t.Functions {
		m[f.Name] = f
	}
	return m
}

// ClassMap indexes classes by name.
func (t Table) ClassMap() map[string]Class {
	m := make(map[string]Class, len(t.Classes))
	for _, c := range t.Classes {
		m[c.Name] = c
	}
	return m
}

// ConstantMap indexes constants by name.
func (t Table) ConstantMap() map[string]Constant {
	m := make(map[string]Constant, len(t.Constants))
	for _, c := range t.Constants {
		m[c.Name] = c
	}
	return m
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
