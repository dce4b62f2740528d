package versioning

import (
	"context"
	"errors"
	"fmt"

	"github.com/emenda-labs/agentver/core/snapshot"
	"github.com/emenda-labs/agentver/core/store"
	"github.com/emenda-labs/agentver/pkg/archive"
)

// writeBackup stores snap as a zip under its content hash and returns the
// archive size.
func (m *Manager) writeBackup(ctx context.Context, hash string, snap snapshot.Snapshot) (int, error) {
	entries := make([]archive.Entry, 0, len(snap.Files))
	for _, f := range snap.Files {
		entries = append(entries, archive.Entry{Name: f.Path, Data: f.Content})
	}
	data, err := archive.Pack(entries)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBackupWrite, err)
	}
	if err := m.store.Put(ctx, BackupKey(hash), data); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBackupWrite, err)
	}
	return len(data), nil
}

// readBackup loads the snapshot stored under hash. A missing backup is
// reported with an error wrapping store.ErrNotFound.
func (m *Manager) readBackup(ctx context.Context, hash string) (snapshot.Snapshot, error) {
	data, err := m.store.Get(ctx, BackupKey(hash))
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	entries, err := archive.Unpack(data)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("reading backup %s: %w", hash, err)
	}
	snap := snapshot.Snapshot{Files: make([]snapshot.File, 0, len(entries))}
	for _, e := range entries {
		snap.Files = append(snap.Files, snapshot.File{Path: e.Name, Content: e.Data})
	}
	return snap, nil
}

// Snapshot returns the code recorded for one version of an agent.
func (m *Manager) Snapshot(ctx context.Context, agent, version string) (snapshot.Snapshot, error) {
	rec, err := m.Version(ctx, agent, version)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	snap, err := m.readBackup(ctx, rec.CodeHash)
	if errors.Is(err, store.ErrNotFound) {
		return snapshot.Snapshot{}, fmt.Errorf("%w: %s %s", ErrBackupMissing, agent, rec.Version)
	}
	return snap, err
}
