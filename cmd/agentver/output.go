package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/emenda-labs/agentver/core/changespec"
	"github.com/emenda-labs/agentver/core/depgraph"
	"github.com/emenda-labs/agentver/core/impact"
	"github.com/emenda-labs/agentver/core/versioning"
)

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printRecord(rec *versioning.VersionRecord) error {
	if a.json {
		return a.printJSON(rec)
	}
	fmt.Fprintf(a.out, "%s %s (%s)\n", rec.Agent, rec.Version, rec.ChangeType)
	if rec.ChangeDescription != "" {
		fmt.Fprintf(a.out, "  %s\n", rec.ChangeDescription)
	}
	fmt.Fprintf(a.out, "  code:    %s\n", rec.CodeHash)
	fmt.Fprintf(a.out, "  created: %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05Z07:00"))
	if rec.VCSRef != nil {
		fmt.Fprintf(a.out, "  commit:  %s %s\n", rec.VCSRef.Commit, rec.VCSRef.Tag)
	}
	for _, b := range rec.BreakingChanges {
		fmt.Fprintf(a.out, "  breaking: %s\n", b)
	}
	for _, c := range rec.DetectedChanges {
		fmt.Fprintf(a.out, "  detected: [%s] %s %s\n", c.Severity, c.Kind, c.Symbol)
	}
	if rec.MigrationRequired {
		fmt.Fprintf(a.out, "  migration required, see: agentver version guide %s %s\n", rec.Agent, rec.Version)
	}
	return nil
}

func (a *app) printHistory(h *versioning.VersionHistory) error {
	if a.json {
		return a.printJSON(h)
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tVERSION\tTYPE\tCREATED\tMIGRATION\tDESCRIPTION")
	for _, r := range h.Versions {
		marker := ""
		if r.Version == h.CurrentVersion {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n", marker, r.Version, r.ChangeType,
			r.CreatedAt.Format("2006-01-02 15:04"), r.MigrationRequired, r.ChangeDescription)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, e := range h.Events {
		forced := ""
		if e.Forced {
			forced = " (forced)"
		}
		fmt.Fprintf(a.out, "%s %s %s -> %s [%s]%s from %s\n",
			e.At.Format("2006-01-02 15:04"), e.Type, e.From, e.To, e.Safety, forced, e.Source)
	}
	return nil
}

// printRollback prints a rollback result. attempted is false for dry
// runs.
func (a *app) printRollback(res *versioning.RollbackResult, attempted bool) error {
	if a.json {
		return a.printJSON(res)
	}
	status := "dry run"
	if attempted {
		status = "refused"
		if res.Success {
			status = "rolled back"
		}
	}
	fmt.Fprintf(a.out, "%s %s -> %s: %s (%s)\n", res.Agent, res.From, res.To, res.SafetyLevel, status)
	for _, w := range res.Warnings {
		fmt.Fprintf(a.out, "  warning: %s\n", w)
	}
	for _, b := range res.BreakingChangesBetween {
		fmt.Fprintf(a.out, "  breaking: %s\n", b)
	}
	return nil
}

func (a *app) printList(items []string) error {
	if a.json {
		if items == nil {
			items = []string{}
		}
		return a.printJSON(items)
	}
	for _, item := range items {
		fmt.Fprintln(a.out, item)
	}
	return nil
}

func constraintText(c string) string {
	if c == "" {
		return "*"
	}
	return c
}

func (a *app) printDependencies(deps []depgraph.Dependency) error {
	if a.json {
		if deps == nil {
			deps = []depgraph.Dependency{}
		}
		return a.printJSON(deps)
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tDEPENDS ON\tKIND\tCONSTRAINT")
	for _, d := range deps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.From, d.To, d.Kind, constraintText(d.Constraint))
	}
	return tw.Flush()
}

func (a *app) printCycles(cycles [][]string) error {
	if a.json {
		return a.printJSON(map[string]any{"cycles": cycles, "count": len(cycles)})
	}
	if len(cycles) == 0 {
		fmt.Fprintln(a.out, "no cycles")
		return nil
	}
	for _, c := range cycles {
		fmt.Fprintf(a.out, "%s -> %s\n", strings.Join(c, " -> "), c[0])
	}
	return nil
}

func (a *app) printOrdering(o depgraph.Ordering) error {
	if a.json {
		return a.printJSON(o)
	}
	for i, n := range o.Order {
		fmt.Fprintf(a.out, "%d. %s\n", i+1, n)
	}
	if !o.Complete() {
		fmt.Fprintf(a.out, "unordered (on a cycle): %s\n", strings.Join(o.Unordered, ", "))
	}
	return nil
}

func (a *app) printViolations(vs []depgraph.Violation) error {
	if a.json {
		return a.printJSON(vs)
	}
	if len(vs) == 0 {
		fmt.Fprintln(a.out, "all constraints satisfied")
		return nil
	}
	for _, v := range vs {
		fmt.Fprintf(a.out, "%s -> %s: %s\n", v.Dependency.From, v.Dependency.To, v.Reason)
	}
	return nil
}

func (a *app) printImpact(r *impact.Report) error {
	if a.json {
		return a.printJSON(r)
	}
	current := r.CurrentVersion
	if current == "" {
		current = "none"
	}
	fmt.Fprintf(a.out, "%s %s -> %s\n", r.Agent, current, r.NewVersion)
	fmt.Fprintf(a.out, "  risk:      %s (%d affected)\n", r.BreakingRisk, r.TotalAffected)
	fmt.Fprintf(a.out, "  direct:    %s\n", joinOrNone(r.DirectDependents))
	fmt.Fprintf(a.out, "  indirect:  %s\n", joinOrNone(r.IndirectDependents))
	fmt.Fprintf(a.out, "  order:     %s\n", strings.Join(r.UpdateOrder, " -> "))
	if len(r.Unordered) > 0 {
		fmt.Fprintf(a.out, "  unordered: %s\n", strings.Join(r.Unordered, ", "))
	}
	for _, inc := range r.IncompatibleDependents {
		fmt.Fprintf(a.out, "  incompatible: %s (%s)\n", inc.Agent, inc.Reason)
	}
	return nil
}

func (a *app) printDetection(r changespec.Report) error {
	if a.json {
		return a.printJSON(r)
	}
	if r.ParseError != nil {
		fmt.Fprintf(a.out, "parse error: %s:%d: %s\n", r.ParseError.File, r.ParseError.Line, r.ParseError.Message)
		return nil
	}
	if !r.HasBreakingChanges {
		fmt.Fprintln(a.out, "no breaking changes")
		return nil
	}
	fmt.Fprintf(a.out, "%d breaking change(s), overall severity %s\n", len(r.Changes), r.OverallSeverity)
	for _, c := range r.Changes {
		fmt.Fprintf(a.out, "  [%s] %s %s\n", c.Severity, c.Kind, c.Symbol)
		if c.OldSignature != "" || c.NewSignature != "" {
			fmt.Fprintf(a.out, "      %s -> %s\n", orNone(c.OldSignature), orNone(c.NewSignature))
		}
	}
	return nil
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
