package depgraph

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Constraint is a conjunction of version comparisons, e.g. ">=1.2, <2".
// The zero value accepts every version.
type Constraint struct {
	raw     string
	clauses []clause
}

type clause struct {
	op      string
	version string // canonical semver with a leading "v"
}

// ParseConstraint parses a comma-separated list of clauses. Each clause is
// an operator (=, ==, !=, >, >=, <, <=, ^, ~) followed by a version, a bare
// version (meaning =), or "*". An empty expression matches everything.
func ParseConstraint(expr string) (Constraint, error) {
	c := Constraint{raw: strings.TrimSpace(expr)}
	if c.raw == "" || c.raw == "*" {
		return c, nil
	}

	for _, part := range strings.Split(c.raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" || part == "*" {
			continue
		}
		op, rest := splitOperator(part)
		v, err := canonical(rest)
		if err != nil {
			return Constraint{}, fmt.Errorf("constraint %q: %w", expr, err)
		}
		c.clauses = append(c.clauses, clause{op: op, version: v})
	}
	return c, nil
}

func splitOperator(s string) (string, string) {
	for _, op := range []string{">=", "<=", "==", "!=", ">", "<", "=", "^", "~"} {
		if strings.HasPrefix(s, op) {
			return op, strings.TrimSpace(s[len(op):])
		}
	}
	return "=", s
}

// canonical turns "1.2" or "v1.2.3" into "v1.2.0" / "v1.2.3".
func canonical(version string) (string, error) {
	v := strings.TrimSpace(version)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return "", fmt.Errorf("invalid version %q", version)
	}
	return semver.Canonical(v), nil
}

// String returns the expression the constraint was parsed from.
func (c Constraint) String() string {
	if c.raw == "" {
		return "*"
	}
	return c.raw
}

// Allows reports whether version satisfies every clause. Invalid versions
// are never allowed by a non-empty constraint.
func (c Constraint) Allows(version string) bool {
	if len(c.clauses) == 0 {
		return true
	}
	v, err := canonical(version)
	if err != nil {
		return false
	}
	for _, cl := range c.clauses {
		if !cl.allows(v) {
			return false
		}
	}
	return true
}

func (cl clause) allows(v string) bool {
	cmp := semver.Compare(v, cl.version)
	switch cl.op {
	case "=", "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case "^":
		return cmp >= 0 && semver.Compare(v, caretCeiling(cl.version)) < 0
	case "~":
		return cmp >= 0 && semver.Compare(v, tildeCeiling(cl.version)) < 0
	default:
		return false
	}
}

// caretCeiling is the first version excluded by ^v: the next major, or the
// next minor while the major is 0.
func caretCeiling(v string) string {
	major, minor, _ := parts(v)
	if major == 0 {
		return fmt.Sprintf("v0.%d.0", minor+1)
	}
	return fmt.Sprintf("v%d.0.0", major+1)
}

// tildeCeiling is the first version excluded by ~v: the next minor.
func tildeCeiling(v string) string {
	major, minor, _ := parts(v)
	return fmt.Sprintf("v%d.%d.0", major, minor+1)
}

func parts(v string) (major, minor, patch int) {
	core := strings.TrimPrefix(v, "v")
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	fmt.Sscanf(core, "%d.%d.%d", &major, &minor, &patch)
	return major, minor, patch
}
