package breaking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/emenda-labs/agentver/core/changespec"
)

func TestGenerateMigrationGuide_SectionsForPresentSeverities(t *testing.T) {
	changes := []changespec.Change{
		{Kind: changespec.ChangeKindFunctionRemoved, Severity: changespec.SeverityCritical, Symbol: "farewell", OldSignature: "farewell(name)", MigrationHint: "Remove calls."},
		{Kind: changespec.ChangeKindConstantChanged, Severity: changespec.SeverityMedium, Symbol: "MAX", OldSignature: "MAX = 3", NewSignature: "MAX = 5", MigrationHint: "Check MAX."},
	}

	guide := GenerateMigrationGuide(changes)

	assert.Contains(t, guide, "## Critical changes")
	assert.Contains(t, guide, "## Medium changes")
	assert.NotContains(t, guide, "## High changes")
	assert.NotContains(t, guide, "## Low changes")
	assert.Contains(t, guide, "farewell (FUNCTION_REMOVED)")
	assert.Contains(t, guide, "Remove calls.")
	assert.Contains(t, guide, "- After: `MAX = 5`")
	assert.Less(t, strings.Index(guide, "## Critical"), strings.Index(guide, "## Medium"))
	assert.True(t, strings.HasSuffix(guide, testingRecommendations))
}

func TestGenerateMigrationGuide_Deterministic(t *testing.T) {
	changes := []changespec.Change{
		{Kind: changespec.ChangeKindMethodRemoved, Severity: changespec.SeverityHigh, Symbol: "Agent.stop"},
		{Kind: changespec.ChangeKindSignatureChanged, Severity: changespec.SeverityLow, Symbol: "f"},
	}
	assert.Equal(t, GenerateMigrationGuide(changes), GenerateMigrationGuide(changes))
}

func TestGenerateMigrationGuide_Empty(t *testing.T) {
	guide := GenerateMigrationGuide(nil)

	assert.Contains(t, guide, "No breaking changes")
	assert.NotContains(t, guide, "changes\n\n###")
	assert.Contains(t, guide, "## Testing recommendations")
}

func TestGuideFromDescriptions(t *testing.T) {
	guide := GuideFromDescriptions([]string{"dropped the legacy /v1 endpoint"}, nil)

	assert.Contains(t, guide, "## High changes")
	assert.Contains(t, guide, "dropped the legacy /v1 endpoint")
	assert.Contains(t, guide, string(changespec.ChangeKindDeclared))
}
