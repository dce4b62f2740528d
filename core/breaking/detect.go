// Package breaking compares two symbol tables and classifies every change
// to the public surface that can break dependents.
package breaking

import (
	"fmt"
	"sort"
	"strings"

	"github.com/emenda-labs/agentver/core/changespec"
	"github.com/emenda-labs/agentver/core/symbols"
)

// diffState holds the working state across the diff passes.
type diffState struct {
	old, new symbols.Table
	named    bool
	changes  []changespec.Change
}

// Detect compares old and new and reports the breaking changes between
// them. Severity is a fixed function of the change kind. The inputs are
// normalized copies, so repeated names resolve the way Merge resolves them.
func Detect(old, new symbols.Table) changespec.Report {
	old, new = old.Clone(), new.Clone()
	old.Normalize()
	new.Normalize()
	s := &diffState{
		old:   old,
		new:   new,
		named: !old.PositionalOnly || !new.PositionalOnly,
	}
	s.functions()
	s.classes()
	s.constants()
	return buildReport(s.changes)
}

func buildReport(changes []changespec.Change) changespec.Report {
	sort.SliceStable(changes, func(i, j int) bool {
		ri, rj := changes[i].Severity.Rank(), changes[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		if changes[i].Symbol != changes[j].Symbol {
			return changes[i].Symbol < changes[j].Symbol
		}
		return changes[i].Kind < changes[j].Kind
	})

	report := changespec.Report{
		HasBreakingChanges: len(changes) > 0,
		Changes:            changes,
		OverallSeverity:    changespec.MaxSeverity(changes),
		AffectedAPIs:       []string{},
	}
	if report.Changes == nil {
		report.Changes = []changespec.Change{}
	}

	seen := make(map[string]bool)
	for _, c := range changes {
		if c.Severity == changespec.SeverityCritical || c.Severity == changespec.SeverityHigh {
			report.MigrationRequired = true
		}
		if !seen[c.Symbol] {
			seen[c.Symbol] = true
			report.AffectedAPIs = append(report.AffectedAPIs, c.Symbol)
		}
	}
	sort.Strings(report.AffectedAPIs)
	return report
}

func (s *diffState) emit(c changespec.Change) {
	s.changes = append(s.changes, c)
}

// functions reports removed functions, with a suggested replacement when
// an added function looks like a rename, and changed signatures.
func (s *diffState) functions() {
	newFuncs := s.new.FunctionMap()
	oldFuncs := s.old.FunctionMap()

	var removed, added []symbols.Function
	for _, fn := range s.old.Functions {
		if _, ok := newFuncs[fn.Name]; !ok {
			removed = append(removed, fn)
		}
	}
	for _, fn := range s.new.Functions {
		if _, ok := oldFuncs[fn.Name]; !ok {
			added = append(added, fn)
		}
	}
	replacements := matchReplacements(removed, added)

	for _, oldFn := range s.old.Functions {
		newFn, ok := newFuncs[oldFn.Name]
		if !ok {
			hint := fmt.Sprintf("Remove calls to %s or pin dependents to the previous version.", oldFn.Name)
			if repl, found := replacements[oldFn.Name]; found {
				hint = fmt.Sprintf("%s was likely renamed; replace calls with %s.", oldFn.Name, repl.Signature())
			}
			s.emit(changespec.Change{
				Kind:          changespec.ChangeKindFunctionRemoved,
				Severity:      changespec.SeverityCritical,
				Symbol:        oldFn.Name,
				OldSignature:  oldFn.Signature(),
				MigrationHint: hint,
			})
			continue
		}

		s.compareParams(oldFn, newFn)

		if oldFn.Returns != "" && oldFn.Returns != newFn.Returns {
			s.emit(changespec.Change{
				Kind:          changespec.ChangeKindReturnTypeChanged,
				Severity:      changespec.SeverityHigh,
				Symbol:        oldFn.Name,
				OldSignature:  oldFn.Signature(),
				NewSignature:  newFn.Signature(),
				MigrationHint: fmt.Sprintf("Update callers of %s to handle return type %s instead of %s.", oldFn.Name, orNone(newFn.Returns), oldFn.Returns),
			})
		}
	}
}

// compareParams emits at most one SIGNATURE_CHANGED record per function,
// carrying the worst severity among its parameter changes.
func (s *diffState) compareParams(oldFn, newFn symbols.Function) {
	var (
		severity changespec.Severity
		notes    []string
	)
	raise := func(sev changespec.Severity, note string) {
		if sev.Rank() > severity.Rank() {
			severity = sev
		}
		notes = append(notes, note)
	}

	common := min(len(oldFn.Params), len(newFn.Params))
	for i := range common {
		op, np := oldFn.Params[i], newFn.Params[i]
		if op.Name != np.Name && s.named {
			raise(changespec.SeverityHigh, fmt.Sprintf("parameter %q renamed to %q; update keyword arguments", op.Name, np.Name))
		}
		if op.Type != "" && np.Type != "" && op.Type != np.Type {
			raise(changespec.SeverityHigh, fmt.Sprintf("parameter %q changed type from %s to %s", np.Name, op.Type, np.Type))
		}
		if op.Optional && !np.Optional {
			raise(changespec.SeverityCritical, fmt.Sprintf("parameter %q is now required; pass it explicitly", np.Name))
		}
	}

	for _, p := range oldFn.Params[common:] {
		raise(changespec.SeverityCritical, fmt.Sprintf("parameter %q was removed; stop passing it", p.Name))
	}
	for _, p := range newFn.Params[common:] {
		if p.Optional {
			raise(changespec.SeverityLow, fmt.Sprintf("optional parameter %q was added", p.Name))
		} else {
			raise(changespec.SeverityCritical, fmt.Sprintf("required parameter %q was added; pass a value", p.Name))
		}
	}

	if len(notes) == 0 {
		return
	}
	s.emit(changespec.Change{
		Kind:          changespec.ChangeKindSignatureChanged,
		Severity:      severity,
		Symbol:        oldFn.Name,
		OldSignature:  oldFn.Signature(),
		NewSignature:  newFn.Signature(),
		MigrationHint: capitalize(strings.Join(notes, "; ")) + ".",
	})
}

// classes reports removed classes and public methods removed from
// surviving classes. A removed class whose method set reappears unchanged
// under a new name is reported with that name in the hint.
func (s *diffState) classes() {
	newClasses := s.new.ClassMap()
	oldClasses := s.old.ClassMap()

	bySignature := make(map[string][]string)
	for _, c := range s.new.Classes {
		if _, ok := oldClasses[c.Name]; ok || len(c.Methods) == 0 {
			continue
		}
		key := strings.Join(c.Methods, ",")
		bySignature[key] = append(bySignature[key], c.Name)
	}

	for _, oldClass := range s.old.Classes {
		newClass, ok := newClasses[oldClass.Name]
		if !ok {
			hint := fmt.Sprintf("Remove uses of %s or pin dependents to the previous version.", oldClass.Name)
			if names := bySignature[strings.Join(oldClass.Methods, ",")]; len(oldClass.Methods) > 0 && len(names) == 1 {
				hint = fmt.Sprintf("%s was likely renamed; use %s instead.", oldClass.Name, names[0])
			}
			s.emit(changespec.Change{
				Kind:          changespec.ChangeKindClassRemoved,
				Severity:      changespec.SeverityCritical,
				Symbol:        oldClass.Name,
				OldSignature:  classSignature(oldClass),
				MigrationHint: hint,
			})
			continue
		}

		kept := make(map[string]bool, len(newClass.Methods))
		for _, m := range newClass.Methods {
			kept[m] = true
		}
		for _, m := range oldClass.Methods {
			if kept[m] {
				continue
			}
			s.emit(changespec.Change{
				Kind:          changespec.ChangeKindMethodRemoved,
				Severity:      changespec.SeverityHigh,
				Symbol:        oldClass.Name + "." + m,
				OldSignature:  classSignature(oldClass),
				NewSignature:  classSignature(newClass),
				MigrationHint: fmt.Sprintf("%s no longer provides %s; remove or replace those calls.", oldClass.Name, m),
			})
		}
	}
}

func (s *diffState) constants() {
	newConsts := s.new.ConstantMap()
	for _, oldConst := range s.old.Constants {
		newConst, ok := newConsts[oldConst.Name]
		switch {
		case !ok:
			s.emit(changespec.Change{
				Kind:          changespec.ChangeKindConstantRemoved,
				Severity:      changespec.SeverityHigh,
				Symbol:        oldConst.Name,
				OldSignature:  constantSignature(oldConst),
				MigrationHint: fmt.Sprintf("Inline the previous value of %s (%s) or stop referencing it.", oldConst.Name, oldConst.Value),
			})
		case newConst.Value != oldConst.Value:
			s.emit(changespec.Change{
				Kind:          changespec.ChangeKindConstantChanged,
				Severity:      changespec.SeverityMedium,
				Symbol:        oldConst.Name,
				OldSignature:  constantSignature(oldConst),
				NewSignature:  constantSignature(newConst),
				MigrationHint: fmt.Sprintf("Check code that depends on %s being %s; it is now %s.", oldConst.Name, oldConst.Value, newConst.Value),
			})
		}
	}
}

func classSignature(c symbols.Class) string {
	return "class " + c.Name + "{" + strings.Join(c.Methods, ", ") + "}"
}

func constantSignature(c symbols.Constant) string {
	return c.Name + " = " + c.Value
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
