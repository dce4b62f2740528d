// Package versioning tracks the semantic version history of each agent,
// backs up the code of every version and rolls agents back safely.
package versioning

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/emenda-labs/agentver/core/changespec"
	"github.com/emenda-labs/agentver/core/snapshot"
	"github.com/emenda-labs/agentver/core/store"
)

var (
	// ErrAgentNotFound is returned for operations that need an existing
	// history. It matches store.ErrNotFound under errors.Is.
	ErrAgentNotFound = fmt.Errorf("agent not found: %w", store.ErrNotFound)

	// ErrInvalidRollbackTarget is returned when the target version is not
	// in the agent's history.
	ErrInvalidRollbackTarget = errors.New("rollback target not in history")

	// ErrBackupWrite is returned when the code backup could not be stored.
	// No state is changed when it occurs.
	ErrBackupWrite = errors.New("writing code backup failed")

	// ErrDuplicateSnapshot is returned when a version is created from code
	// identical to an existing version of the same agent.
	ErrDuplicateSnapshot = errors.New("snapshot already recorded as a version")

	// ErrBackupMissing is returned when a rollback target has neither a
	// backup nor a VCS commit to restore from.
	ErrBackupMissing = errors.New("no backup or VCS ref for version")

	// ErrNoSnapshot is returned when a version is created without a
	// snapshot and no workspace is configured.
	ErrNoSnapshot = errors.New("no snapshot supplied and no workspace configured")

	// ErrNoMigrationGuide is returned for versions recorded without a guide.
	ErrNoMigrationGuide = errors.New("version has no migration guide")

	// ErrInvalidAgent is returned for agent identifiers that cannot be stored.
	ErrInvalidAgent = errors.New("invalid agent identifier")
)

// ChangeType selects which part of the version a new release increments.
type ChangeType string

const (
	ChangeMajor ChangeType = "MAJOR"
	ChangeMinor ChangeType = "MINOR"
	ChangePatch ChangeType = "PATCH"
)

// ParseChangeType accepts a change type in any letter case.
func ParseChangeType(s string) (ChangeType, error) {
	switch ct := ChangeType(strings.ToUpper(strings.TrimSpace(s))); ct {
	case ChangeMajor, ChangeMinor, ChangePatch:
		return ct, nil
	default:
		return "", fmt.Errorf("unknown change type %q (want MAJOR, MINOR or PATCH)", s)
	}
}

// Version is a major.minor.patch triple.
type Version struct {
	Major, Minor, Patch int
}

// ParseVersion parses "1.2.3" or "v1.2.3". All three parts are required.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	parts := strings.Split(s, ".")
	if len(parts) != 3 || !semver.IsValid("v"+s) || semver.Prerelease("v"+s) != "" || semver.Build("v"+s) != "" {
		return Version{}, fmt.Errorf("invalid version %q (want major.minor.patch)", s)
	}
	var v Version
	var err error
	if v.Major, err = strconv.Atoi(parts[0]); err != nil {
		return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
	}
	if v.Minor, err = strconv.Atoi(parts[1]); err != nil {
		return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
	}
	if v.Patch, err = strconv.Atoi(parts[2]); err != nil {
		return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return v, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Bump returns the next version for ct.
func (v Version) Bump(ct ChangeType) Version {
	switch ct {
	case ChangeMajor:
		return Version{Major: v.Major + 1}
	case ChangeMinor:
		return Version{Major: v.Major, Minor: v.Minor + 1}
	default:
		return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
	}
}

// Compare returns -1, 0 or +1.
func (v Version) Compare(o Version) int {
	return semver.Compare("v"+v.String(), "v"+o.String())
}

// VCSRef points at the commit and tag recorded for a version.
type VCSRef struct {
	Commit string `json:"commit"`
	Tag    string `json:"tag,omitempty"`
}

// VersionRecord is one released version of an agent.
type VersionRecord struct {
	Agent              string              `json:"agent"`
	Version            string              `json:"version"`
	ChangeType         ChangeType          `json:"change_type"`
	ChangeDescription  string              `json:"change_description"`
	BreakingChanges    []string            `json:"breaking_changes"`
	DetectedChanges    []changespec.Change `json:"detected_changes,omitempty"`
	MigrationRequired  bool                `json:"migration_required"`
	MigrationReference string              `json:"migration_reference,omitempty"`
	CodeHash           string              `json:"code_hash"`
	CreatedAt          time.Time           `json:"created_at"`
	VCSRef             *VCSRef             `json:"vcs_ref,omitempty"`
}

// EventType names a history event.
type EventType string

const EventRollback EventType = "rollback"

// Event is an entry in an agent's audit trail.
type Event struct {
	ID     string      `json:"id"`
	Type   EventType   `json:"type"`
	From   string      `json:"from"`
	To     string      `json:"to"`
	Safety SafetyLevel `json:"safety"`
	Forced bool        `json:"forced"`
	Source string      `json:"source"`
	At     time.Time   `json:"at"`
}

// VersionHistory is the persisted document for one agent. Records are
// never removed; CurrentVersion always names one of them.
type VersionHistory struct {
	Agent          string          `json:"agent"`
	Versions       []VersionRecord `json:"versions"`
	CurrentVersion string          `json:"current_version"`
	Events         []Event         `json:"events"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Find returns the record for version v.
func (h *VersionHistory) Find(v string) (*VersionRecord, bool) {
	for i := range h.Versions {
		if h.Versions[i].Version == v {
			return &h.Versions[i], true
		}
	}
	return nil, false
}

// Current returns the record CurrentVersion points at.
func (h *VersionHistory) Current() (*VersionRecord, bool) {
	return h.Find(h.CurrentVersion)
}

// Highest returns the greatest version in the history, or 0.0.0 when
// it is empty.
func (h *VersionHistory) Highest() (Version, error) {
	var top Version
	for _, r := range h.Versions {
		v, err := ParseVersion(r.Version)
		if err != nil {
			return Version{}, err
		}
		if v.Compare(top) > 0 {
			top = v
		}
	}
	return top, nil
}

// Workspace reads and restores the code of an agent.
type Workspace interface {
	Snapshot(ctx context.Context, agent string) (snapshot.Snapshot, error)
	Restore(ctx context.Context, agent string, snap snapshot.Snapshot) error
}

// VCS records versions in a version control system. Commit and Checkout
// are scoped to one agent's code. It is optional and its failures never
// abort a version operation.
type VCS interface {
	Commit(ctx context.Context, agent, message string) (string, error)
	Tag(ctx context.Context, name, ref string) error
	Checkout(ctx context.Context, agent, ref string) error
}
