package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	maxFileSize  = 100 * 1024 * 1024  // 100 MB per file
	maxTotalSize = 1024 * 1024 * 1024 // 1 GB total extracted
	maxFileCount = 50000              // maximum number of files in archive
)

// Entry is one file stored in an archive. Name is slash-separated.
type Entry struct {
	Name string
	Data []byte
}

// Pack writes entries into a zip archive. Entries are sorted by name and
// stamped with a fixed modification time so the same input always yields
// the same bytes.
func Pack(entries []Entry) ([]byte, error) {
	if len(entries) > maxFileCount {
		return nil, fmt.Errorf("archive would contain %d files, exceeds maximum of %d", len(entries), maxFileCount)
	}

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range sorted {
		if err := validateName(e.Name); err != nil {
			return nil, err
		}
		hdr := &zip.FileHeader{
			Name:     e.Name,
			Method:   zip.Deflate,
			Modified: time.Unix(0, 0).UTC(),
		}
		fw, err := w.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("adding %s to archive: %w", e.Name, err)
		}
		if _, err := fw.Write(e.Data); err != nil {
			return nil, fmt.Errorf("writing %s to archive: %w", e.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing archive: %w", err)
	}
	return buf.Bytes(), nil
}

// Unpack reads every regular file of a zip archive into memory.
// Validates all names to prevent path traversal.
// Enforces size limits to prevent zip bomb attacks.
func Unpack(data []byte) ([]Entry, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to read zip archive: %w", err)
	}

	if len(reader.File) > maxFileCount {
		return nil, fmt.Errorf("zip archive contains %d files, exceeds maximum of %d", len(reader.File), maxFileCount)
	}

	var (
		entries        []Entry
		totalExtracted int64
	)
	for _, file := range reader.File {
		// Skip symlinks to prevent symlink-based attacks.
		if file.Mode()&os.ModeSymlink != 0 {
			continue
		}
		if file.FileInfo().IsDir() {
			continue
		}
		if err := validateName(file.Name); err != nil {
			return nil, err
		}

		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open zip entry %s: %w", file.Name, err)
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxFileSize+1))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to extract %s: %w", file.Name, err)
		}
		if int64(len(content)) > maxFileSize {
			return nil, fmt.Errorf("file %s exceeds maximum size of %d bytes", file.Name, maxFileSize)
		}

		totalExtracted += int64(len(content))
		if totalExtracted > maxTotalSize {
			return nil, fmt.Errorf("total extracted size exceeds maximum of %d bytes", maxTotalSize)
		}

		entries = append(entries, Entry{Name: file.Name, Data: content})
	}
	return entries, nil
}

// SafeJoin joins a slash-separated relative name onto base and rejects
// results that escape base.
func SafeJoin(base, name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	target := filepath.Join(base, filepath.FromSlash(name))

	resolvedTarget, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %s: %w", name, err)
	}
	resolvedBase, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	if !strings.HasPrefix(resolvedTarget, resolvedBase+string(os.PathSeparator)) {
		return "", fmt.Errorf("entry attempts path traversal: %s", name)
	}
	return target, nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("archive entry has an empty name")
	}
	if path.IsAbs(name) || strings.HasPrefix(name, "\\") || filepath.IsAbs(name) {
		return fmt.Errorf("archive entry has an absolute path: %s", name)
	}
	clean := path.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("entry attempts path traversal: %s", name)
	}
	return nil
}
