package driver

import (
	"context"

	"github.com/emenda-labs/agentver/core/snapshot"
	"github.com/emenda-labs/agentver/core/symbols"
)

// Extractor is the interface each language must implement to take part in
// breaking-change detection.
type Extractor interface {
	// Language returns the canonical language name, e.g. "go" or "python".
	Language() string

	// Extensions lists the file extensions (with leading dot) this
	// extractor parses.
	Extensions() []string

	// Extract parses one source file and returns its public symbols.
	// Syntax errors are reported as *symbols.ParseError.
	Extract(ctx context.Context, file snapshot.File) (symbols.Table, error)
}
