package changespec

// ChangeKind represents the type of breaking API change.
type ChangeKind string

const (
	ChangeKindFunctionRemoved   ChangeKind = "FUNCTION_REMOVED"
	ChangeKindSignatureChanged  ChangeKind = "SIGNATURE_CHANGED"
	ChangeKindReturnTypeChanged ChangeKind = "RETURN_TYPE_CHANGED"
	ChangeKindConstantRemoved   ChangeKind = "CONSTANT_REMOVED"
	ChangeKindConstantChanged   ChangeKind = "CONSTANT_CHANGED"
	ChangeKindClassRemoved      ChangeKind = "CLASS_REMOVED"
	ChangeKindMethodRemoved     ChangeKind = "METHOD_REMOVED"

	// ChangeKindDeclared marks a breaking change written by a person
	// rather than found by the detector.
	ChangeKindDeclared ChangeKind = "DECLARED"
)

// Severity ranks how likely a change is to break dependents.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Rank orders severities; higher is worse. Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// MaxSeverity returns the worst severity in changes, or "" when empty.
func MaxSeverity(changes []Change) Severity {
	var max Severity
	for _, c := range changes {
		if c.Severity.Rank() > max.Rank() {
			max = c.Severity
		}
	}
	return max
}

// Change represents a single breaking API change between two snapshots.
type Change struct {
	Kind          ChangeKind `json:"kind"`
	Severity      Severity   `json:"severity"`
	Symbol        string     `json:"symbol"`
	OldSignature  string     `json:"old_signature,omitempty"`
	NewSignature  string     `json:"new_signature,omitempty"`
	MigrationHint string     `json:"migration_hint,omitempty"`
}

// ParseFailure describes a snapshot that could not be parsed.
type ParseFailure struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

// Report is the outcome of comparing two symbol tables.
type Report struct {
	HasBreakingChanges bool          `json:"has_breaking_changes"`
	Changes            []Change      `json:"changes"`
	OverallSeverity    Severity      `json:"overall_severity,omitempty"`
	MigrationRequired  bool          `json:"migration_required"`
	AffectedAPIs       []string      `json:"affected_apis"`
	ParseError         *ParseFailure `json:"parse_error,omitempty"`
}
