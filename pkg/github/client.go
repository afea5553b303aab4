// Package github provides pull-request operations through the gh CLI. These
// are pure API calls and always run on the host.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"conductor/pkg/execx"
	"conductor/pkg/logx"
)

// ErrPRCreationFailed means the pull request could not be created. The wrapped
// text carries the gh CLI output for remediation.
var ErrPRCreationFailed = errors.New("pull request creation failed")

// DefaultTimeout bounds gh invocations other than PR creation, which gets a
// longer window.
const DefaultTimeout = 30 * time.Second

// PullRequest is the subset of gh CLI --json output the orchestrator needs.
type PullRequest struct {
	Number      int    `json:"number"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	State       string `json:"state"`
	HeadRefName string `json:"headRefName"`
}

// PRCreateOptions contains options for creating a pull request.
type PRCreateOptions struct {
	Title string
	Body  string
	Head  string // source branch
	Base  string // target branch
	Draft bool
}

// PRClient is the seam the workspace service depends on; tests substitute a
// fake so finalization never talks to a real forge.
type PRClient interface {
	ListPRsForBranch(ctx context.Context, branch string) ([]PullRequest, error)
	GetOrCreatePR(ctx context.Context, opts PRCreateOptions) (*PullRequest, error)
}

// Client implements PRClient via the gh CLI.
type Client struct {
	repoPath string // owner/repo
	exec     execx.Executor
	logger   *logx.Logger
	timeout  time.Duration
}

// NewClient creates a client for the owner/repo the remote URL points at.
func NewClient(remoteURL string, exec execx.Executor) (*Client, error) {
	owner, repo, err := ParseGitHubURL(remoteURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		repoPath: fmt.Sprintf("%s/%s", owner, repo),
		exec:     exec,
		logger:   logx.NewLogger("github"),
		timeout:  DefaultTimeout,
	}, nil
}

// RepoPath returns the owner/repo path.
func (c *Client) RepoPath() string {
	return c.repoPath
}

func (c *Client) run(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	c.logger.Debug("Executing: gh %s", strings.Join(args, " "))

	result, err := c.exec.Run(ctx, append([]string{"gh"}, args...), execx.Opts{Timeout: timeout})
	if err != nil {
		return "", fmt.Errorf("gh %s: %w", args[0], err)
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("gh %s exited %d: %s",
			args[0], result.ExitCode, strings.TrimSpace(result.Stderr+result.Stdout))
	}
	return result.Stdout, nil
}

// ListPRsForBranch lists pull requests whose head is branch.
func (c *Client) ListPRsForBranch(ctx context.Context, branch string) ([]PullRequest, error) {
	out, err := c.run(ctx, c.timeout,
		"pr", "list",
		"--repo", c.repoPath,
		"--head", branch,
		"--json", "number,url,title,state,headRefName")
	if err != nil {
		return nil, fmt.Errorf("failed to list PRs for branch %s: %w", branch, err)
	}

	var prs []PullRequest
	if err := json.Unmarshal([]byte(out), &prs); err != nil {
		return nil, fmt.Errorf("failed to parse PR list: %w", err)
	}
	return prs, nil
}

// CreatePR creates a new pull request and returns it.
func (c *Client) CreatePR(ctx context.Context, opts PRCreateOptions) (*PullRequest, error) {
	if opts.Head == "" || opts.Title == "" {
		return nil, fmt.Errorf("%w: head branch and title are required", ErrPRCreationFailed)
	}
	base := opts.Base
	if base == "" {
		base = "main"
	}

	args := []string{
		"pr", "create",
		"--repo", c.repoPath,
		"--title", opts.Title,
		"--head", opts.Head,
		"--base", base,
		"--body", opts.Body,
	}
	if opts.Draft {
		args = append(args, "--draft")
	}

	out, err := c.run(ctx, 2*time.Minute, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPRCreationFailed, err)
	}

	// gh pr create prints the PR URL.
	prURL := strings.TrimSpace(out)
	if prURL == "" {
		return nil, fmt.Errorf("%w: no URL returned", ErrPRCreationFailed)
	}
	return &PullRequest{URL: prURL, Title: opts.Title, HeadRefName: opts.Head, State: "OPEN"}, nil
}

// GetOrCreatePR returns the existing open PR for the branch, or creates one.
func (c *Client) GetOrCreatePR(ctx context.Context, opts PRCreateOptions) (*PullRequest, error) {
	prs, err := c.ListPRsForBranch(ctx, opts.Head)
	if err != nil {
		c.logger.Debug("Failed to check for existing PR, will try to create: %v", err)
	} else if len(prs) > 0 {
		c.logger.Debug("Found existing PR #%d for branch %s", prs[0].Number, opts.Head)
		return &prs[0], nil
	}
	return c.CreatePR(ctx, opts)
}

// ParseGitHubURL extracts owner and repo from SSH and HTTPS remote URLs.
func ParseGitHubURL(url string) (owner, repo string, err error) {
	var path string
	switch {
	case strings.HasPrefix(url, "git@github.com:"):
		path = strings.TrimPrefix(url, "git@github.com:")
	case strings.HasPrefix(url, "https://github.com/"):
		path = strings.TrimPrefix(url, "https://github.com/")
	default:
		return "", "", fmt.Errorf("unsupported Git URL format: %s", url)
	}

	path = strings.TrimSuffix(path, ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GitHub URL format: %s", url)
	}
	return parts[0], parts[1], nil
}

var _ PRClient = (*Client)(nil)
