// Package gitdriver wraps the git CLI as argument-vector subprocesses for
// the operations the Orchestrator's creation/deletion pipelines need
// (spec §4.C). No git call is ever built as a shell string.
package gitdriver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/opencode-kanban/okb/internal/constants"
)

// Driver runs git subprocesses. Stateless; safe for concurrent use across
// different repo paths (the Orchestrator serializes per-task operations
// itself, see spec §5).
type Driver struct{}

// New returns a ready Driver.
func New() *Driver {
	return &Driver{}
}

func (d *Driver) run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &Error{Op: strings.Join(args, " "), Args: args, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// IsValidRepo reports whether path is inside a git working tree.
func (d *Driver) IsValidRepo(path string) bool {
	_, err := d.run(path, "rev-parse", "--git-dir")
	return err == nil
}

// CurrentBranch returns the checked-out branch name at path.
func (d *Driver) CurrentBranch(path string) (string, error) {
	return d.run(path, "rev-parse", "--abbrev-ref", "HEAD")
}

// Rev resolves ref to its full commit hash.
func (d *Driver) Rev(path, ref string) (string, error) {
	return d.run(path, "rev-parse", ref)
}

// CheckRefFormat validates branch as a legal git branch ref name without
// touching the filesystem (spec §8 property 9).
func (d *Driver) CheckRefFormat(branch string) error {
	_, err := d.run(".", "check-ref-format", "--branch", branch)
	if err != nil {
		return fmt.Errorf("invalid branch name %q: %w", branch, err)
	}
	return nil
}

// DetectDefaultBranch resolves a repo's default branch: origin/HEAD's
// symbolic target, then main, then master, then the first local branch.
func (d *Driver) DetectDefaultBranch(repoPath string) (string, error) {
	if out, err := d.run(repoPath, "symbolic-ref", "refs/remotes/origin/HEAD"); err == nil {
		return strings.TrimPrefix(out, "refs/remotes/origin/"), nil
	}

	for _, candidate := range []string{"main", "master"} {
		if _, err := d.run(repoPath, "show-ref", "--verify", "--quiet", "refs/heads/"+candidate); err == nil {
			return candidate, nil
		}
	}

	out, err := d.run(repoPath, "branch", "--format=%(refname:short)")
	if err != nil {
		return "", fmt.Errorf("detecting default branch: %w", err)
	}
	lines := strings.Split(out, "\n")
	if len(lines) == 0 || lines[0] == "" {
		return "", fmt.Errorf("no branches found in %s", repoPath)
	}
	return lines[0], nil
}

// Fetch runs `git fetch origin`, retrying transient failures a few times
// with bounded exponential backoff before surfacing ErrTransient so the
// creation pipeline can proceed offline (spec §4.C, §7).
func (d *Driver) Fetch(ctx context.Context, repoPath string) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	op := func() error {
		fetchCtx, cancel := context.WithTimeout(ctx, constants.GitFetchTimeout)
		defer cancel()
		cmd := exec.CommandContext(fetchCtx, "git", "fetch", "origin")
		cmd.Dir = repoPath
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return &Error{Op: "fetch", Stderr: strings.TrimSpace(stderr.String()), Err: err}
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, 2), ctx)); err != nil {
		return &ErrTransient{Err: err}
	}
	return nil
}

// CreateWorktree validates newBranch, ensures worktreePath's parent exists,
// and runs `git worktree add -b <branch> <path> <baseRef>`. It never
// overwrites an existing path, and best-effort cleans up a partial
// directory on failure (spec §4.C).
func (d *Driver) CreateWorktree(repoPath, worktreePath, newBranch, baseRef string) error {
	if err := d.CheckRefFormat(newBranch); err != nil {
		return err
	}
	if _, err := os.Stat(worktreePath); err == nil {
		return &ErrWorktreeExists{Path: worktreePath}
	}
	if err := os.MkdirAll(filepath.Dir(worktreePath), 0o755); err != nil {
		return fmt.Errorf("creating worktree parent dir: %w", err)
	}

	_, err := d.run(repoPath, "worktree", "add", "-b", newBranch, worktreePath, baseRef)
	if err != nil {
		_ = os.RemoveAll(worktreePath)
		return err
	}
	return nil
}

// RemoveWorktree removes a worktree, optionally forcing past uncommitted
// changes.
func (d *Driver) RemoveWorktree(repoPath, worktreePath string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, worktreePath)
	_, err := d.run(repoPath, args...)
	return err
}

// DeleteBranch performs a safe delete only (`git branch -d`), never -D.
func (d *Driver) DeleteBranch(repoPath, branch string) error {
	_, err := d.run(repoPath, "branch", "-d", branch)
	return err
}

// ListBranches returns local branch short names.
func (d *Driver) ListBranches(repoPath string) ([]string, error) {
	out, err := d.run(repoPath, "branch", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// GetRemoteURL returns origin's URL, or "" if there is no origin remote.
func (d *Driver) GetRemoteURL(repoPath string) string {
	out, err := d.run(repoPath, "remote", "get-url", "origin")
	if err != nil {
		return ""
	}
	return out
}
