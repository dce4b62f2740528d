package versioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/emenda-labs/agentver/core/breaking"
	"github.com/emenda-labs/agentver/core/changespec"
	"github.com/emenda-labs/agentver/core/metrics"
	"github.com/emenda-labs/agentver/core/snapshot"
	"github.com/emenda-labs/agentver/core/store"
)

const (
	agentsPrefix = "agents/"
	historyFile  = "history.json"
)

// HistoryKey returns the store key of an agent's version history.
func HistoryKey(agent string) string {
	return agentsPrefix + url.PathEscape(agent) + "/" + historyFile
}

// BackupKey returns the store key of the code backup with the given hash.
func BackupKey(hash string) string {
	return "backups/" + hash + ".zip"
}

// GuideKey returns the store key of the migration guide of one version.
func GuideKey(agent, version string) string {
	return "guides/" + url.PathEscape(agent) + "/" + version + ".md"
}

func validateAgent(agent string) error {
	seg := url.PathEscape(agent)
	if strings.TrimSpace(agent) == "" || seg == "." || seg == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidAgent, agent)
	}
	return nil
}

// Manager creates versions, answers history queries and performs
// rollbacks. All mutations of one agent are serialized by the store lock
// on its history document.
type Manager struct {
	store     store.Store
	workspace Workspace
	vcs       VCS
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithWorkspace sets the workspace used to snapshot and restore code.
func WithWorkspace(w Workspace) Option {
	return func(m *Manager) { m.workspace = w }
}

// WithVCS enables commits and tags for new versions.
func WithVCS(v VCS) Option {
	return func(m *Manager) { m.vcs = v }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager over s.
func NewManager(s store.Store, opts ...Option) *Manager {
	m := &Manager{store: s, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateRequest describes a new version.
type CreateRequest struct {
	Agent           string
	ChangeType      ChangeType
	Description     string
	BreakingChanges []string

	// Snapshot is the code to record. When nil the workspace is read.
	Snapshot *snapshot.Snapshot

	// Detection is an optional detector report for the change. Its
	// changes are stored on the record and in the migration guide.
	Detection *changespec.Report
}

// CreateVersion records a new version of req.Agent. The code backup is
// written before the history, so a failed backup leaves the history
// untouched.
func (m *Manager) CreateVersion(ctx context.Context, req CreateRequest) (rec *VersionRecord, err error) {
	defer m.metrics.ObserveOperation("create_version", time.Now(), &err)

	if err := validateAgent(req.Agent); err != nil {
		return nil, err
	}
	ct, err := ParseChangeType(string(req.ChangeType))
	if err != nil {
		return nil, err
	}

	key := HistoryKey(req.Agent)
	unlock, err := m.store.Lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("locking history of %s: %w", req.Agent, err)
	}
	defer unlock()

	now := m.now().UTC()
	history, err := m.loadHistory(ctx, req.Agent)
	if errors.Is(err, ErrAgentNotFound) {
		history = &VersionHistory{Agent: req.Agent, CreatedAt: now}
	} else if err != nil {
		return nil, err
	}

	// Versions are numbered from the highest recorded one, so a version
	// created after a rollback never collides with an abandoned one.
	base, err := history.Highest()
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", req.Agent, err)
	}
	next := base.Bump(ct).String()

	snap, err := m.snapshotFor(ctx, req)
	if err != nil {
		return nil, err
	}
	hash := snap.Hash()
	for _, r := range history.Versions {
		if r.CodeHash == hash {
			return nil, fmt.Errorf("%w: %s matches %s", ErrDuplicateSnapshot, req.Agent, r.Version)
		}
	}

	size, err := m.writeBackup(ctx, hash, snap)
	if err != nil {
		m.logger.Error("backup failed", "agent", req.Agent, "version", next, "error", err)
		m.metrics.RecordBackupFailure()
		return nil, err
	}

	rec = &VersionRecord{
		Agent:             req.Agent,
		Version:           next,
		ChangeType:        ct,
		ChangeDescription: req.Description,
		BreakingChanges:   nonNil(req.BreakingChanges),
		CodeHash:          hash,
		CreatedAt:         now,
	}
	if req.Detection != nil {
		rec.DetectedChanges = req.Detection.Changes
		rec.MigrationRequired = req.Detection.MigrationRequired
	}
	if len(rec.BreakingChanges) > 0 {
		rec.MigrationRequired = true
	}

	if rec.MigrationRequired {
		guideKey := GuideKey(req.Agent, next)
		guide := breaking.GuideFromDescriptions(rec.BreakingChanges, rec.DetectedChanges)
		if err := m.store.Put(ctx, guideKey, []byte(guide)); err != nil {
			return nil, fmt.Errorf("writing migration guide for %s %s: %w", req.Agent, next, err)
		}
		rec.MigrationReference = guideKey
	}

	history.Versions = append(history.Versions, *rec)
	history.CurrentVersion = next
	history.UpdatedAt = now
	if err := m.saveHistory(ctx, history); err != nil {
		return nil, err
	}

	// Tags are only made for versions the history already holds.
	if m.vcs != nil {
		if ref := m.recordInVCS(ctx, rec); ref != nil {
			history.Versions[len(history.Versions)-1].VCSRef = ref
			if err := m.saveHistory(ctx, history); err != nil {
				m.logger.Warn("vcs ref not recorded", "agent", req.Agent, "version", next, "commit", ref.Commit, "error", err)
				m.metrics.RecordVCSFailure("record")
			} else {
				rec.VCSRef = ref
			}
		}
	}

	m.metrics.RecordVersionCreated(string(ct), size)
	m.logger.Info("version created",
		"agent", req.Agent,
		"version", next,
		"change_type", ct,
		"migration_required", rec.MigrationRequired,
		"code_hash", hash)
	return rec, nil
}

func (m *Manager) snapshotFor(ctx context.Context, req CreateRequest) (snapshot.Snapshot, error) {
	if req.Snapshot != nil {
		return *req.Snapshot, nil
	}
	if m.workspace == nil {
		return snapshot.Snapshot{}, ErrNoSnapshot
	}
	snap, err := m.workspace.Snapshot(ctx, req.Agent)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("reading code of %s: %w", req.Agent, err)
	}
	return snap, nil
}

// recordInVCS commits and tags the version. Failures are logged and leave
// the record without a ref.
func (m *Manager) recordInVCS(ctx context.Context, rec *VersionRecord) *VCSRef {
	msg := fmt.Sprintf("%s %s: %s", rec.Agent, rec.Version, rec.ChangeDescription)
	commit, err := m.vcs.Commit(ctx, rec.Agent, msg)
	if err != nil {
		m.logger.Warn("vcs commit failed", "agent", rec.Agent, "version", rec.Version, "error", err)
		m.metrics.RecordVCSFailure("commit")
		return nil
	}
	ref := &VCSRef{Commit: commit}
	tag := TagName(rec.Agent, rec.Version)
	if err := m.vcs.Tag(ctx, tag, commit); err != nil {
		m.logger.Warn("vcs tag failed", "agent", rec.Agent, "version", rec.Version, "tag", tag, "error", err)
		m.metrics.RecordVCSFailure("tag")
		return ref
	}
	ref.Tag = tag
	return ref
}

// TagName returns the VCS tag for a version, such as "batman/v1.0.0".
func TagName(agent, version string) string {
	return url.PathEscape(agent) + "/v" + version
}

func (m *Manager) loadHistory(ctx context.Context, agent string) (*VersionHistory, error) {
	var h VersionHistory
	err := store.GetJSON(ctx, m.store, HistoryKey(agent), &h)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agent)
	}
	if err != nil {
		return nil, fmt.Errorf("loading history of %s: %w", agent, err)
	}
	return &h, nil
}

func (m *Manager) saveHistory(ctx context.Context, h *VersionHistory) error {
	if err := store.PutJSON(ctx, m.store, HistoryKey(h.Agent), h); err != nil {
		return fmt.Errorf("saving history of %s: %w", h.Agent, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// History returns the full history of an agent.
func (m *Manager) History(ctx context.Context, agent string) (*VersionHistory, error) {
	if err := validateAgent(agent); err != nil {
		return nil, err
	}
	return m.loadHistory(ctx, agent)
}

// CurrentVersion returns the version the agent's pointer names.
func (m *Manager) CurrentVersion(ctx context.Context, agent string) (string, error) {
	h, err := m.History(ctx, agent)
	if err != nil {
		return "", err
	}
	return h.CurrentVersion, nil
}

// Version returns one record of the agent's history.
func (m *Manager) Version(ctx context.Context, agent, version string) (*VersionRecord, error) {
	h, err := m.History(ctx, agent)
	if err != nil {
		return nil, err
	}
	v, err := ParseVersion(version)
	if err != nil {
		return nil, err
	}
	rec, ok := h.Find(v.String())
	if !ok {
		return nil, fmt.Errorf("%s has no version %s: %w", agent, v, store.ErrNotFound)
	}
	return rec, nil
}

// MigrationGuide returns the Markdown guide written for a version.
func (m *Manager) MigrationGuide(ctx context.Context, agent, version string) (string, error) {
	rec, err := m.Version(ctx, agent, version)
	if err != nil {
		return "", err
	}
	if rec.MigrationReference == "" {
		return "", fmt.Errorf("%w: %s %s", ErrNoMigrationGuide, agent, rec.Version)
	}
	data, err := m.store.Get(ctx, rec.MigrationReference)
	if err != nil {
		return "", fmt.Errorf("loading migration guide for %s %s: %w", agent, rec.Version, err)
	}
	return string(data), nil
}

// Agents returns every agent with a recorded history, sorted.
func (m *Manager) Agents(ctx context.Context) ([]string, error) {
	keys, err := m.store.List(ctx, agentsPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	var agents []string
	for _, key := range keys {
		rest := strings.TrimPrefix(key, agentsPrefix)
		seg, file, ok := strings.Cut(rest, "/")
		if !ok || file != historyFile {
			continue
		}
		agent, err := url.PathUnescape(seg)
		if err != nil {
			m.logger.Warn("skipping malformed history key", "key", key, "error", err)
			continue
		}
		agents = append(agents, agent)
	}
	return agents, nil
}
