package breaking

import (
	"fmt"
	"strings"

	"github.com/emenda-labs/agentver/core/changespec"
)

const testingRecommendations = `## Testing recommendations

1. Run the full test suite of every dependent against the new version.
2. Exercise each affected API listed above with representative inputs.
3. Check configuration and constants consumed by dependents for changed values.
4. Keep the previous version available for rollback until dependents are verified.
`

// GenerateMigrationGuide renders changes as a markdown guide with one
// section per severity present, most severe first, followed by a fixed
// testing footer. The output depends only on the input.
func GenerateMigrationGuide(changes []changespec.Change) string {
	var b strings.Builder
	b.WriteString("# Migration guide\n\n")

	if len(changes) == 0 {
		b.WriteString("No breaking changes were detected.\n\n")
	}

	for _, sev := range changespec.Severities {
		var section []changespec.Change
		for _, c := range changes {
			if c.Severity == sev {
				section = append(section, c)
			}
		}
		if len(section) == 0 {
			continue
		}

		fmt.Fprintf(&b, "## %s changes\n\n", capitalize(string(sev)))
		for _, c := range section {
			fmt.Fprintf(&b, "### %s (%s)\n\n", c.Symbol, c.Kind)
			if c.OldSignature != "" {
				fmt.Fprintf(&b, "- Before: `%s`\n", c.OldSignature)
			}
			if c.NewSignature != "" {
				fmt.Fprintf(&b, "- After: `%s`\n", c.NewSignature)
			}
			if c.MigrationHint != "" {
				fmt.Fprintf(&b, "- Migration: %s\n", c.MigrationHint)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString(testingRecommendations)
	return b.String()
}

// GuideFromDescriptions builds a guide for human-authored breaking change
// descriptions, which carry no severity of their own and are listed as high.
func GuideFromDescriptions(descriptions []string, detected []changespec.Change) string {
	changes := append([]changespec.Change(nil), detected...)
	for _, d := range descriptions {
		changes = append(changes, changespec.Change{
			Severity:      changespec.SeverityHigh,
			Symbol:        d,
			Kind:          changespec.ChangeKindDeclared,
			MigrationHint: "Declared by the author of this version; review dependents by hand.",
		})
	}
	return GenerateMigrationGuide(changes)
}
