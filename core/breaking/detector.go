package breaking

import (
	"context"
	"errors"
	"fmt"

	"github.com/emenda-labs/agentver/core/changespec"
	"github.com/emenda-labs/agentver/core/driver"
	"github.com/emenda-labs/agentver/core/snapshot"
	"github.com/emenda-labs/agentver/core/symbols"
)

// Detector extracts symbol tables from snapshots and compares them.
type Detector struct {
	registry *driver.Registry
}

// NewDetector creates a Detector backed by registry.
func NewDetector(registry *driver.Registry) *Detector {
	return &Detector{registry: registry}
}

// DetectSnapshots compares two snapshots of the same agent. A snapshot that
// fails to parse yields a report with ParseError set and no changes; only
// context cancellation is returned as an error.
func (d *Detector) DetectSnapshots(ctx context.Context, old, new snapshot.Snapshot) (changespec.Report, error) {
	oldTable, err := d.registry.ExtractSnapshot(ctx, old)
	if err != nil {
		return parseFailureReport(err)
	}
	newTable, err := d.registry.ExtractSnapshot(ctx, new)
	if err != nil {
		return parseFailureReport(err)
	}
	return Detect(oldTable, newTable), nil
}

func parseFailureReport(err error) (changespec.Report, error) {
	var perr *symbols.ParseError
	if !errors.As(err, &perr) {
		return changespec.Report{}, fmt.Errorf("detecting changes: %w", err)
	}
	return changespec.Report{
		Changes:      []changespec.Change{},
		AffectedAPIs: []string{},
		ParseError: &changespec.ParseFailure{
			File:    perr.File,
			Line:    perr.Line,
			Message: perr.Message,
		},
	}, nil
}
