package driver

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/emenda-labs/agentver/core/snapshot"
	"github.com/emenda-labs/agentver/core/symbols"
)

// maxParallelFiles bounds concurrent file parses within one snapshot.
const maxParallelFiles = 8

// Registry routes snapshot files to extractors by extension.
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry creates a Registry. Later extractors win on extension clashes.
func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{byExt: make(map[string]Extractor)}
	for _, e := range extractors {
		for _, ext := range e.Extensions() {
			r.byExt[strings.ToLower(ext)] = e
		}
	}
	return r
}

// For returns the extractor responsible for the given file path.
func (r *Registry) For(filePath string) (Extractor, bool) {
	e, ok := r.byExt[strings.ToLower(path.Ext(filePath))]
	return e, ok
}

// ExtractSnapshot parses every supported file of snap and merges the results
// into a single table. Files in languages without an extractor are ignored.
// Any failure is reported as *symbols.ParseError so callers can degrade.
func (r *Registry) ExtractSnapshot(ctx context.Context, snap snapshot.Snapshot) (symbols.Table, error) {
	type job struct {
		file snapshot.File
		ext  Extractor
	}
	var jobs []job
	for _, f := range snap.Sorted().Files {
		if e, ok := r.For(f.Path); ok {
			jobs = append(jobs, job{file: f, ext: e})
		}
	}
	if len(jobs) == 0 {
		return symbols.Table{}, &symbols.ParseError{Message: "snapshot contains no supported source files"}
	}

	tables := make([]symbols.Table, len(jobs))
	var (
		mu       sync.Mutex
		firstErr *symbols.ParseError
		firstIdx = len(jobs)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFiles)
	for i, j := range jobs {
		g.Go(func() error {
			table, err := j.ext.Extract(gctx, j.file)
			if err == nil {
				tables[i] = table
				return nil
			}

			var perr *symbols.ParseError
			if !errors.As(err, &perr) {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				perr = &symbols.ParseError{File: j.file.Path, Message: err.Error()}
			}

			// Keep the error of the earliest file so results are stable.
			mu.Lock()
			if i < firstIdx {
				firstIdx, firstErr = i, perr
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return symbols.Table{}, fmt.Errorf("extracting symbols: %w", err)
	}
	if firstErr != nil {
		return symbols.Table{}, firstErr
	}

	var merged symbols.Table
	for _, t := range tables {
		merged.Merge(t)
	}
	merged.Normalize()
	return merged, nil
}
