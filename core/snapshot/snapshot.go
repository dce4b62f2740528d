// Package snapshot models the source code of an agent at one point in time.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File is one source file of a snapshot. Path is slash-separated and
// relative to the agent root.
type File struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
}

// Snapshot is the full set of source files for one agent.
type Snapshot struct {
	Files []File `json:"files"`
}

// FromText builds a single-file snapshot.
func FromText(name, text string) Snapshot {
	return Snapshot{Files: []File{{Path: name, Content: []byte(text)}}}
}

// Sorted returns a copy of the snapshot with files ordered by path.
func (s Snapshot) Sorted() Snapshot {
	files := make([]File, len(s.Files))
	copy(files, s.Files)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return Snapshot{Files: files}
}

// Hash returns the hex SHA-256 digest of the snapshot. File order does not
// affect the result.
func (s Snapshot) Hash() string {
	h := sha256.New()
	for _, f := range s.Sorted().Files {
		fmt.Fprintf(h, "%s\x00%d\x00", f.Path, len(f.Content))
		h.Write(f.Content)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Empty reports whether the snapshot has no files.
func (s Snapshot) Empty() bool {
	return len(s.Files) == 0
}

// Unversioned reports whether a directory with this name is left out of
// snapshots: hidden directories, vendor, testdata and __pycache__.
func Unversioned(name string) bool {
	return strings.HasPrefix(name, ".") || name == "vendor" || name == "testdata" || name == "__pycache__"
}

// LoadDir reads every regular file under dir into a snapshot. Hidden
// directories, vendor, testdata and symlinks are skipped.
func LoadDir(dir string) (Snapshot, error) {
	var snap Snapshot
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Skip symlinks to prevent symlink-based path escapes.
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		if d.IsDir() {
			if path != dir && Unversioned(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		snap.Files = append(snap.Files, File{Path: filepath.ToSlash(rel), Content: data})
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("walking %s: %w", dir, err)
	}
	return snap.Sorted(), nil
}
