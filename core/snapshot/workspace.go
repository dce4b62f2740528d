package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/emenda-labs/agentver/pkg/archive"
)

// ErrNoSource is returned when an agent has no code in the workspace.
var ErrNoSource = errors.New("agent has no source in workspace")

// DirWorkspace keeps each agent's code in <Root>/<agent>.
type DirWorkspace struct {
	Root string
}

// NewDirWorkspace creates a workspace rooted at root.
func NewDirWorkspace(root string) *DirWorkspace {
	return &DirWorkspace{Root: root}
}

// AgentDir returns the directory holding the agent's code. Agent ids are
// opaque, so they are escaped into a single path segment.
func (w *DirWorkspace) AgentDir(agent string) (string, error) {
	seg := url.PathEscape(agent)
	if seg == "" || seg == "." || seg == ".." {
		return "", fmt.Errorf("invalid agent id %q", agent)
	}
	return filepath.Join(w.Root, seg), nil
}

// Snapshot reads the agent's current code.
func (w *DirWorkspace) Snapshot(ctx context.Context, agent string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	dir, err := w.AgentDir(agent)
	if err != nil {
		return Snapshot{}, err
	}
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrNoSource, agent)
		}
		return Snapshot{}, fmt.Errorf("stat %s: %w", dir, err)
	}
	snap, err := LoadDir(dir)
	if err != nil {
		return Snapshot{}, err
	}
	if snap.Empty() {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNoSource, agent)
	}
	return snap, nil
}

// Restore replaces the agent's code with snap. Files are staged in a hidden
// directory under Root and swapped in with renames, so a failed write leaves
// the old code. Entries that snapshots never hold (unversioned directories,
// symlinks and special files) are carried over from the old code.
func (w *DirWorkspace) Restore(ctx context.Context, agent string, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := w.AgentDir(agent)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(w.Root, 0o755); err != nil {
		return fmt.Errorf("creating workspace root: %w", err)
	}

	staging, err := os.MkdirTemp(w.Root, ".restore-*")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(staging)
	if err := os.Chmod(staging, 0o755); err != nil {
		return fmt.Errorf("preparing staging directory: %w", err)
	}

	for _, f := range snap.Files {
		target, err := archive.SafeJoin(staging, f.Path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("creating parent directory for %s: %w", f.Path, err)
		}
		if err := os.WriteFile(target, f.Content, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", f.Path, err)
		}
	}

	if _, err := os.Lstat(dir); os.IsNotExist(err) {
		if err := os.Rename(staging, dir); err != nil {
			return fmt.Errorf("installing restored code: %w", err)
		}
		return nil
	} else if err != nil {
		return fmt.Errorf("stat %s: %w", dir, err)
	}

	keep, err := unmanaged(dir)
	if err != nil {
		return err
	}

	parked, err := os.MkdirTemp(w.Root, ".rollback-*")
	if err != nil {
		return fmt.Errorf("creating directory for previous code: %w", err)
	}
	old := filepath.Join(parked, "code")
	if err := os.Rename(dir, old); err != nil {
		_ = os.Remove(parked)
		return fmt.Errorf("moving current code aside: %w", err)
	}
	if err := os.Rename(staging, dir); err != nil {
		_ = os.Rename(old, dir)
		_ = os.Remove(parked)
		return fmt.Errorf("installing restored code: %w", err)
	}

	for _, rel := range keep {
		target := filepath.Join(dir, rel)
		if _, err := os.Lstat(target); err == nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("keeping %s: %w (previous code left in %s)", rel, err, old)
		}
		if err := os.Rename(filepath.Join(old, rel), target); err != nil {
			return fmt.Errorf("keeping %s: %w (previous code left in %s)", rel, err, old)
		}
	}
	return os.RemoveAll(parked)
}

// unmanaged lists, relative to dir, the top-most entries LoadDir leaves out.
func unmanaged(dir string) ([]string, error) {
	var rels []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		switch {
		case d.Type()&os.ModeSymlink != 0:
		case d.IsDir():
			if !Unversioned(d.Name()) {
				return nil
			}
		case d.Type().IsRegular():
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rels = append(rels, rel)
		if d.IsDir() {
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	return rels, nil
}
