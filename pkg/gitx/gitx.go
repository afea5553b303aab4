// Package gitx wraps the git CLI for workspace provisioning and finalization.
// Every operation runs through an injected Executor so tests never need a real
// repository, and every failure is classified into one of the exported
// sentinels the caller can act on.
package gitx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"conductor/pkg/execx"
	"conductor/pkg/logx"
)

// Classified git failures. Callers match with errors.Is.
var (
	// ErrRepoUnreachable means the remote repository could not be reached or
	// does not exist.
	ErrRepoUnreachable = errors.New("repository unreachable")

	// ErrBranchNotFound means the requested branch does not exist in the
	// repository.
	ErrBranchNotFound = errors.New("branch not found")

	// ErrPushRejected means the remote refused the push (non-fast-forward,
	// permissions, protected branch).
	ErrPushRejected = errors.New("push rejected")

	// ErrNothingToCommit means the working tree had no outstanding changes.
	ErrNothingToCommit = errors.New("nothing to commit")
)

// DefaultTimeout bounds each git invocation. Clones of large repositories can
// be slow, so this is generous; callers pass a tighter context when needed.
const DefaultTimeout = 5 * time.Minute

// Runner executes git commands against local working directories.
type Runner struct {
	exec    execx.Executor
	logger  *logx.Logger
	timeout time.Duration
}

// NewRunner creates a git runner on top of the given executor.
func NewRunner(exec execx.Executor) *Runner {
	return &Runner{
		exec:    exec,
		logger:  logx.NewLogger("git"),
		timeout: DefaultTimeout,
	}
}

// WithTimeout returns a runner with a different per-invocation timeout.
func (r *Runner) WithTimeout(timeout time.Duration) *Runner {
	return &Runner{exec: r.exec, logger: r.logger, timeout: timeout}
}

// run executes git with args in dir ("" for no working directory) and returns
// stdout. Non-zero exits are classified via the combined output.
func (r *Runner) run(ctx context.Context, dir string, args ...string) (string, error) {
	r.logger.Debug("Executing: git %s (dir=%s)", strings.Join(args, " "), dir)

	result, err := r.exec.Run(ctx, append([]string{"git"}, args...), execx.Opts{
		WorkDir: dir,
		Timeout: r.timeout,
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// The local checkout directory is gone (or never existed), so git
			// never ran. The repository is just as unreachable as a bad remote.
			return "", fmt.Errorf("%w: %v", ErrRepoUnreachable, err)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	if result.ExitCode != 0 {
		combined := result.Stderr + result.Stdout
		r.logger.Debug("git %s exited %d: %s", args[0], result.ExitCode, strings.TrimSpace(combined))
		return "", classify(args[0], result.ExitCode, combined)
	}
	return result.Stdout, nil
}

// classify maps a failed git invocation onto a sentinel based on the output
// text. Unrecognized failures come back as plain errors carrying the output.
func classify(subcommand string, exitCode int, output string) error {
	lower := strings.ToLower(output)

	switch {
	case strings.Contains(lower, "could not resolve host"),
		strings.Contains(lower, "repository not found"),
		strings.Contains(lower, "unable to access"),
		strings.Contains(lower, "does not appear to be a git repository"),
		strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "authentication failed"):
		return fmt.Errorf("%w: %s", ErrRepoUnreachable, strings.TrimSpace(output))

	case strings.Contains(lower, "remote branch") && strings.Contains(lower, "not found"),
		strings.Contains(lower, "couldn't find remote ref"),
		strings.Contains(lower, "invalid reference"),
		strings.Contains(lower, "not a valid object name"),
		strings.Contains(lower, "pathspec") && strings.Contains(lower, "did not match"):
		return fmt.Errorf("%w: %s", ErrBranchNotFound, strings.TrimSpace(output))

	case strings.Contains(lower, "[rejected]"),
		strings.Contains(lower, "failed to push"),
		strings.Contains(lower, "non-fast-forward"),
		strings.Contains(lower, "protected branch"):
		return fmt.Errorf("%w: %s", ErrPushRejected, strings.TrimSpace(output))

	case strings.Contains(lower, "nothing to commit"):
		return ErrNothingToCommit

	default:
		return fmt.Errorf("git %s exited %d: %s", subcommand, exitCode, strings.TrimSpace(output))
	}
}

// Clone clones repo at branch into dir.
func (r *Runner) Clone(ctx context.Context, repo, branch, dir string) error {
	_, err := r.run(ctx, "", "clone", "--branch", branch, "--single-branch", repo, dir)
	return err
}

// WorktreeAdd creates a linked worktree of repoDir at path on a new branch
// starting from base.
func (r *Runner) WorktreeAdd(ctx context.Context, repoDir, path, branch, base string) error {
	_, err := r.run(ctx, repoDir, "worktree", "add", "-b", branch, path, base)
	return err
}

// WorktreeRemove removes a linked worktree and prunes stale registrations.
// Removing a worktree that is already gone is a success.
func (r *Runner) WorktreeRemove(ctx context.Context, repoDir, path string) error {
	if _, err := r.run(ctx, repoDir, "worktree", "remove", "--force", path); err != nil {
		lower := strings.ToLower(err.Error())
		if !strings.Contains(lower, "is not a working tree") && !strings.Contains(lower, "no such file") {
			return err
		}
	}
	// Best-effort prune of stale registrations.
	_, _ = r.run(ctx, repoDir, "worktree", "prune")
	return nil
}

// CheckoutNewBranch creates and checks out branch in dir.
func (r *Runner) CheckoutNewBranch(ctx context.Context, dir, branch string) error {
	_, err := r.run(ctx, dir, "checkout", "-b", branch)
	return err
}

// HasChanges reports whether dir has uncommitted changes (staged, unstaged, or
// untracked).
func (r *Runner) HasChanges(ctx context.Context, dir string) (bool, error) {
	out, err := r.run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// CommitAll stages everything and commits with message. Returns
// ErrNothingToCommit when the tree is clean.
func (r *Runner) CommitAll(ctx context.Context, dir, message string) error {
	if _, err := r.run(ctx, dir, "add", "-A"); err != nil {
		return err
	}
	dirty, err := r.HasChanges(ctx, dir)
	if err != nil {
		return err
	}
	if !dirty {
		return ErrNothingToCommit
	}
	_, err = r.run(ctx, dir, "commit", "-m", message)
	return err
}

// Push pushes branch to origin, setting the upstream.
func (r *Runner) Push(ctx context.Context, dir, branch string) error {
	_, err := r.run(ctx, dir, "push", "-u", "origin", branch)
	return err
}

// HeadSHA returns the commit id of HEAD in dir.
func (r *Runner) HeadSHA(ctx context.Context, dir string) (string, error) {
	out, err := r.run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// AheadCount returns how many commits HEAD in dir carries beyond base.
func (r *Runner) AheadCount(ctx context.Context, dir, base string) (int, error) {
	out, err := r.run(ctx, dir, "rev-list", "--count", base+"..HEAD")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("unexpected rev-list output %q: %w", strings.TrimSpace(out), err)
	}
	return n, nil
}

// RemoteURL returns the origin remote URL of dir.
func (r *Runner) RemoteURL(ctx context.Context, dir string) (string, error) {
	out, err := r.run(ctx, dir, "remote", "get-url", "origin")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
