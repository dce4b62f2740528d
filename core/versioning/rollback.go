package versioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emenda-labs/agentver/core/changespec"
	"github.com/emenda-labs/agentver/core/store"
)

// SafetyLevel grades how risky it is to move an agent between versions.
type SafetyLevel string

const (
	// SafetySafe means only the patch number differs and no breaking
	// changes lie between the versions.
	SafetySafe SafetyLevel = "safe"
	// SafetyCaution means the minor or major number differs, or breaking
	// changes lie between the versions.
	SafetyCaution SafetyLevel = "caution"
	// SafetyDangerous means the major number differs and at least one
	// version in between recorded breaking changes. It requires force.
	SafetyDangerous SafetyLevel = "dangerous"
)

// Restore sources recorded on rollback events.
const (
	SourceBackup = "backup"
	SourceVCS    = "vcs"
	SourceNone   = "none"
)

// RollbackResult reports the assessment and outcome of a rollback.
type RollbackResult struct {
	Agent                  string      `json:"agent"`
	From                   string      `json:"from"`
	To                     string      `json:"to"`
	Success                bool        `json:"success"`
	SafetyLevel            SafetyLevel `json:"safety_level"`
	Forced                 bool        `json:"forced"`
	Warnings               []string    `json:"warnings"`
	BreakingChangesBetween []string    `json:"breaking_changes_between"`
	Source                 string      `json:"source,omitempty"`
}

// AssessRollback grades a rollback without performing it.
func (m *Manager) AssessRollback(ctx context.Context, agent, target string) (*RollbackResult, error) {
	if err := validateAgent(agent); err != nil {
		return nil, err
	}
	h, err := m.loadHistory(ctx, agent)
	if err != nil {
		return nil, err
	}
	rec, err := rollbackTarget(h, target)
	if err != nil {
		return nil, err
	}
	return assess(h, rec)
}

// Rollback moves the agent back (or forward) to target and restores its
// code. A dangerous rollback is refused unless force is set; a refused
// rollback returns Success false and a nil error.
func (m *Manager) Rollback(ctx context.Context, agent, target string, force bool) (res *RollbackResult, err error) {
	defer m.metrics.ObserveOperation("rollback", time.Now(), &err)

	if err := validateAgent(agent); err != nil {
		return nil, err
	}
	key := HistoryKey(agent)
	unlock, err := m.store.Lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("locking history of %s: %w", agent, err)
	}
	defer unlock()

	h, err := m.loadHistory(ctx, agent)
	if err != nil {
		return nil, err
	}
	rec, err := rollbackTarget(h, target)
	if err != nil {
		return nil, err
	}
	res, err = assess(h, rec)
	if err != nil {
		return nil, err
	}
	res.Forced = force

	if rec.Version == h.CurrentVersion {
		res.Success = true
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s is already at %s; nothing to do", agent, rec.Version))
		m.logger.Warn("rollback to current version", "agent", agent, "version", rec.Version)
		return res, nil
	}

	if res.SafetyLevel == SafetyDangerous && !force {
		res.Warnings = append(res.Warnings, "rollback refused: use force to roll back across breaking major versions")
		m.metrics.RecordRollback(string(res.SafetyLevel), false)
		m.logger.Warn("dangerous rollback refused",
			"agent", agent, "from", res.From, "to", res.To,
			"breaking_changes", len(res.BreakingChangesBetween))
		return res, nil
	}

	source, err := m.restore(ctx, agent, rec)
	if err != nil {
		m.metrics.RecordRollback(string(res.SafetyLevel), false)
		return nil, err
	}
	res.Source = source
	if source == SourceNone {
		res.Warnings = append(res.Warnings, "no workspace configured; code was not restored")
	}

	now := m.now().UTC()
	h.CurrentVersion = rec.Version
	h.UpdatedAt = now
	h.Events = append(h.Events, Event{
		ID:     uuid.NewString(),
		Type:   EventRollback,
		From:   res.From,
		To:     res.To,
		Safety: res.SafetyLevel,
		Forced: force,
		Source: source,
		At:     now,
	})
	if err := m.saveHistory(ctx, h); err != nil {
		m.metrics.RecordRollback(string(res.SafetyLevel), false)
		return nil, err
	}

	res.Success = true
	m.metrics.RecordRollback(string(res.SafetyLevel), true)
	m.logger.Info("rolled back",
		"agent", agent, "from", res.From, "to", res.To,
		"safety", res.SafetyLevel, "forced", force, "source", source)
	return res, nil
}

// restore puts the code of rec back in the workspace, preferring the
// content-addressed backup over a VCS checkout.
func (m *Manager) restore(ctx context.Context, agent string, rec *VersionRecord) (string, error) {
	snap, err := m.readBackup(ctx, rec.CodeHash)
	switch {
	case err == nil:
		if m.workspace == nil {
			return SourceNone, nil
		}
		if err := m.workspace.Restore(ctx, agent, snap); err != nil {
			return "", fmt.Errorf("restoring %s %s: %w", agent, rec.Version, err)
		}
		return SourceBackup, nil
	case !errors.Is(err, store.ErrNotFound):
		return "", err
	}

	if m.vcs == nil || rec.VCSRef == nil || rec.VCSRef.Commit == "" {
		return "", fmt.Errorf("%w: %s %s", ErrBackupMissing, agent, rec.Version)
	}
	m.logger.Warn("backup missing, checking out vcs ref", "agent", agent, "version", rec.Version, "commit", rec.VCSRef.Commit)
	if err := m.vcs.Checkout(ctx, agent, rec.VCSRef.Commit); err != nil {
		m.metrics.RecordVCSFailure("checkout")
		return "", fmt.Errorf("checking out %s for %s %s: %w", rec.VCSRef.Commit, agent, rec.Version, err)
	}
	return SourceVCS, nil
}

func rollbackTarget(h *VersionHistory, target string) (*VersionRecord, error) {
	v, err := ParseVersion(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRollbackTarget, err)
	}
	rec, ok := h.Find(v.String())
	if !ok {
		return nil, fmt.Errorf("%w: %s has no version %s", ErrInvalidRollbackTarget, h.Agent, v)
	}
	return rec, nil
}

// assess compares the current version of h with rec. Breaking changes
// "between" two versions are those recorded on versions above the lower
// one up to and including the higher one.
func assess(h *VersionHistory, rec *VersionRecord) (*RollbackResult, error) {
	cur, err := ParseVersion(h.CurrentVersion)
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", h.Agent, err)
	}
	tgt, err := ParseVersion(rec.Version)
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", h.Agent, err)
	}
	lo, hi := cur, tgt
	if lo.Compare(hi) > 0 {
		lo, hi = hi, lo
	}

	res := &RollbackResult{
		Agent:                  h.Agent,
		From:                   cur.String(),
		To:                     tgt.String(),
		Warnings:               []string{},
		BreakingChangesBetween: []string{},
	}

	breakingRecords := 0
	for _, r := range h.Versions {
		v, err := ParseVersion(r.Version)
		if err != nil {
			return nil, fmt.Errorf("history of %s: %w", h.Agent, err)
		}
		if v.Compare(lo) <= 0 || v.Compare(hi) > 0 {
			continue
		}
		found := false
		for _, b := range r.BreakingChanges {
			res.BreakingChangesBetween = append(res.BreakingChangesBetween, r.Version+": "+b)
			found = true
		}
		for _, c := range r.DetectedChanges {
			if c.Severity.Rank() < changespec.SeverityHigh.Rank() {
				continue
			}
			res.BreakingChangesBetween = append(res.BreakingChangesBetween,
				fmt.Sprintf("%s: %s %s", r.Version, c.Kind, c.Symbol))
			found = true
		}
		if found || r.MigrationRequired {
			breakingRecords++
		}
	}

	majorDiffers := cur.Major != tgt.Major
	minorDiffers := cur.Minor != tgt.Minor
	switch {
	case majorDiffers && breakingRecords > 0:
		res.SafetyLevel = SafetyDangerous
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("major version changes from %s to %s across %d breaking release(s)", res.From, res.To, breakingRecords))
	case majorDiffers:
		res.SafetyLevel = SafetyCaution
		res.Warnings = append(res.Warnings, fmt.Sprintf("major version changes from %s to %s", res.From, res.To))
	case minorDiffers || breakingRecords > 0:
		res.SafetyLevel = SafetyCaution
		if minorDiffers {
			res.Warnings = append(res.Warnings, fmt.Sprintf("minor version changes from %s to %s", res.From, res.To))
		}
		if breakingRecords > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%d release(s) between %s and %s recorded breaking changes", breakingRecords, res.From, res.To))
		}
	default:
		res.SafetyLevel = SafetySafe
	}
	return res, nil
}
