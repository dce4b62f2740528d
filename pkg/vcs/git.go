// Package vcs records agent versions in a git repository.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
)

// ErrGitNotFound is returned when the git binary is not on PATH.
var ErrGitNotFound = errors.New("git executable not found")

// Git commits, tags and checks out agent code with the git binary. Commit
// and Checkout only touch the named agent's directory, so versions of one
// agent never carry or revert another agent's edits.
type Git struct {
	// Dir is the repository work tree.
	Dir string
	// AgentPath maps an agent to its directory, absolute or relative to
	// Dir. Nil means the escaped agent id relative to Dir.
	AgentPath func(agent string) (string, error)

	AuthorName  string
	AuthorEmail string
}

// NewGit returns a Git adapter for the repository at dir.
func NewGit(dir string, agentPath func(agent string) (string, error)) (*Git, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, ErrGitNotFound
	}
	return &Git{Dir: dir, AgentPath: agentPath}, nil
}

// Commit stages the agent's directory and commits only that path. A commit
// is made even when nothing changed so every version has its own ref. It
// returns the new commit hash.
func (g *Git) Commit(ctx context.Context, agent, message string) (string, error) {
	path, err := g.pathFor(agent)
	if err != nil {
		return "", err
	}
	if _, err := g.run(ctx, "add", "-A", "--", path); err != nil {
		return "", err
	}

	args := []string{"commit", "--allow-empty", "-m", message}
	if g.AuthorName != "" && g.AuthorEmail != "" {
		args = append(args, "--author", fmt.Sprintf("%s <%s>", g.AuthorName, g.AuthorEmail))
	}
	args = append(args, "--", path)
	if _, err := g.run(ctx, args...); err != nil {
		return "", err
	}

	out, err := g.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Tag creates a lightweight tag pointing at ref.
func (g *Git) Tag(ctx context.Context, name, ref string) error {
	_, err := g.run(ctx, "tag", name, ref)
	return err
}

// Checkout makes the agent's directory match ref without moving HEAD.
// Tracked files added after ref are removed; other agents are untouched.
func (g *Git) Checkout(ctx context.Context, agent, ref string) error {
	path, err := g.pathFor(agent)
	if err != nil {
		return err
	}
	_, err = g.run(ctx, "checkout", "--no-overlay", ref, "--", path)
	return err
}

func (g *Git) pathFor(agent string) (string, error) {
	if g.AgentPath != nil {
		return g.AgentPath(agent)
	}
	seg := url.PathEscape(agent)
	if seg == "" || seg == "." || seg == ".." {
		return "", fmt.Errorf("invalid agent id %q", agent)
	}
	return seg, nil
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.Dir

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w\nOutput: %s", strings.Join(args, " "), err, string(output))
	}
	return string(output), nil
}
