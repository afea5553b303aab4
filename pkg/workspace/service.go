// Package workspace provisions isolated git working directories for
// coding-agent sessions and finalizes completed work into a pushed branch with
// a pull request. Provisioning rolls back partial state on failure; finalize
// is idempotent per workspace.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"conductor/pkg/execx"
	"conductor/pkg/github"
	"conductor/pkg/gitx"
	"conductor/pkg/logx"
)

// Status is a workspace lifecycle state.
type Status string

// Workspace lifecycle states.
const (
	StatusProvisioning Status = "provisioning"
	StatusReady        Status = "ready"
	StatusFinalizing   Status = "finalizing"
	StatusFinalized    Status = "finalized"
	StatusFailed       Status = "failed"
	StatusTornDown     Status = "torn-down"
)

var (
	// ErrWorkspaceNotFound means the workspace id is unknown.
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrFinalizeInFlight means another finalize call for the same workspace
	// is still running. The caller retries after it settles.
	ErrFinalizeInFlight = errors.New("finalize already in flight")
)

// Workspace is one isolated git working directory.
type Workspace struct {
	ID         string    `json:"id"`
	Repo       string    `json:"repo"`
	BaseBranch string    `json:"baseBranch"`
	Worktree   bool      `json:"worktree"`
	LocalPath  string    `json:"localPath"`
	Branch     string    `json:"branch"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ProvisionRequest describes a workspace to create.
type ProvisionRequest struct {
	// Repo is a remote URL for clones, or the path of an existing local
	// checkout when UseWorktree is set.
	Repo string

	// BaseBranch is the branch the workspace starts from.
	BaseBranch string

	// UseWorktree selects a linked worktree instead of a fresh clone.
	UseWorktree bool

	// Name, when set, names the directory and the work branch; otherwise a
	// short generated name is used.
	Name string
}

// FinalizeRequest describes how to land a workspace's changes.
type FinalizeRequest struct {
	WorkspaceID   string
	CommitMessage string
	PRTitle       string
	PRBody        string
	Draft         bool
}

// FinalizeResult is the durable outcome of a finalize, returned verbatim on
// repeat calls.
type FinalizeResult struct {
	CommitSHA string `json:"commitSha,omitempty"`
	PRURL     string `json:"prUrl,omitempty"`
}

// PRClientFactory builds a PR client for a remote URL. Injected so tests never
// reach a real forge.
type PRClientFactory func(remoteURL string) (github.PRClient, error)

type entry struct {
	ws         Workspace
	finalizing bool
	result     *FinalizeResult
}

// Service owns the workspace registry and all git side effects.
type Service struct {
	root      string
	git       *gitx.Runner
	prFactory PRClientFactory
	logger    *logx.Logger

	mu         sync.Mutex
	workspaces map[string]*entry
}

// NewService creates a workspace service rooted at root. Directories are
// created under root; root itself is created on first provision.
func NewService(root string, git *gitx.Runner, prFactory PRClientFactory) *Service {
	return &Service{
		root:       root,
		git:        git,
		prFactory:  prFactory,
		logger:     logx.NewLogger("workspace"),
		workspaces: make(map[string]*entry),
	}
}

// DefaultPRClientFactory builds gh-CLI clients over the given executor.
func DefaultPRClientFactory(exec execx.Executor) PRClientFactory {
	return func(remoteURL string) (github.PRClient, error) {
		return github.NewClient(remoteURL, exec)
	}
}

// Provision creates an isolated working directory off req.BaseBranch and
// registers it. Any partially created directory or worktree is rolled back
// before an error is returned.
func (s *Service) Provision(ctx context.Context, req ProvisionRequest) (Workspace, error) {
	if req.Repo == "" {
		return Workspace{}, fmt.Errorf("repo is required")
	}
	baseBranch := req.BaseBranch
	if baseBranch == "" {
		baseBranch = "main"
	}

	id := uuid.New().String()
	name := req.Name
	if name == "" {
		name = "ws-" + id[:8]
	}
	branch := "task-" + name
	localPath := filepath.Join(s.root, name)

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return Workspace{}, fmt.Errorf("failed to create workspace root: %w", err)
	}
	if _, err := os.Stat(localPath); err == nil {
		return Workspace{}, fmt.Errorf("workspace directory already exists: %s", localPath)
	}

	ws := Workspace{
		ID:         id,
		Repo:       req.Repo,
		BaseBranch: baseBranch,
		Worktree:   req.UseWorktree,
		LocalPath:  localPath,
		Branch:     branch,
		Status:     StatusProvisioning,
		CreatedAt:  time.Now(),
	}

	s.mu.Lock()
	s.workspaces[id] = &entry{ws: ws}
	s.mu.Unlock()

	s.logger.Info("Provisioning workspace %s at %s (worktree=%t)", name, localPath, req.UseWorktree)

	var err error
	if req.UseWorktree {
		err = s.git.WorktreeAdd(ctx, req.Repo, localPath, branch, baseBranch)
	} else {
		if err = s.git.Clone(ctx, req.Repo, baseBranch, localPath); err == nil {
			err = s.git.CheckoutNewBranch(ctx, localPath, branch)
		}
	}

	if err != nil {
		s.rollback(ctx, ws)
		s.setStatus(id, StatusFailed)
		return Workspace{}, fmt.Errorf("failed to provision workspace %s: %w", name, err)
	}

	s.setStatus(id, StatusReady)
	ws.Status = StatusReady
	return ws, nil
}

// rollback removes whatever the failed provision left on disk.
func (s *Service) rollback(ctx context.Context, ws Workspace) {
	s.logger.Warn("Rolling back partial workspace %s", ws.LocalPath)

	if ws.Worktree {
		if err := s.git.WorktreeRemove(ctx, ws.Repo, ws.LocalPath); err != nil {
			s.logger.Warn("Worktree rollback failed: %v", err)
		}
	}
	if err := os.RemoveAll(ws.LocalPath); err != nil {
		s.logger.Warn("Failed to remove partial directory %s: %v", ws.LocalPath, err)
	}
}

// Finalize commits outstanding changes, pushes the work branch, and opens a
// pull request. A repeat call on a finalized workspace returns the prior
// result without touching git.
func (s *Service) Finalize(ctx context.Context, req FinalizeRequest) (FinalizeResult, error) {
	s.mu.Lock()
	e, ok := s.workspaces[req.WorkspaceID]
	if !ok {
		s.mu.Unlock()
		return FinalizeResult{}, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, req.WorkspaceID)
	}
	if e.result != nil {
		result := *e.result
		s.mu.Unlock()
		s.logger.Info("Workspace %s already finalized, returning prior result", req.WorkspaceID)
		return result, nil
	}
	if e.finalizing {
		s.mu.Unlock()
		return FinalizeResult{}, fmt.Errorf("%w: %s", ErrFinalizeInFlight, req.WorkspaceID)
	}
	if e.ws.Status != StatusReady {
		status := e.ws.Status
		s.mu.Unlock()
		return FinalizeResult{}, fmt.Errorf("workspace %s is %s, not ready", req.WorkspaceID, status)
	}
	e.finalizing = true
	e.ws.Status = StatusFinalizing
	ws := e.ws
	s.mu.Unlock()

	result, err := s.finalize(ctx, ws, req)

	s.mu.Lock()
	e.finalizing = false
	if err != nil {
		// The workspace stays usable so the caller can retry after fixing
		// the cause (e.g. a rejected push).
		e.ws.Status = StatusReady
	} else {
		e.ws.Status = StatusFinalized
		e.result = &result
	}
	s.mu.Unlock()

	return result, err
}

func (s *Service) finalize(ctx context.Context, ws Workspace, req FinalizeRequest) (FinalizeResult, error) {
	dirty, err := s.git.HasChanges(ctx, ws.LocalPath)
	if err != nil {
		return FinalizeResult{}, err
	}

	if dirty {
		message := req.CommitMessage
		if message == "" {
			message = "Apply coding-agent changes"
		}
		if err := s.git.CommitAll(ctx, ws.LocalPath, message); err != nil {
			return FinalizeResult{}, err
		}
	} else {
		// Clean tree: the agent may have committed its own work. Only a
		// branch with no commits beyond base has truly nothing to land.
		ahead, err := s.git.AheadCount(ctx, ws.LocalPath, ws.BaseBranch)
		if err != nil {
			return FinalizeResult{}, err
		}
		if ahead == 0 {
			return FinalizeResult{}, gitx.ErrNothingToCommit
		}
		s.logger.Debug("Tree clean with %d commits ahead of %s, skipping commit", ahead, ws.BaseBranch)
	}

	if err := s.git.Push(ctx, ws.LocalPath, ws.Branch); err != nil {
		return FinalizeResult{}, err
	}

	sha, err := s.git.HeadSHA(ctx, ws.LocalPath)
	if err != nil {
		return FinalizeResult{}, err
	}

	remoteURL, err := s.git.RemoteURL(ctx, ws.LocalPath)
	if err != nil {
		return FinalizeResult{}, err
	}
	prClient, err := s.prFactory(remoteURL)
	if err != nil {
		return FinalizeResult{}, fmt.Errorf("%w: %v", github.ErrPRCreationFailed, err)
	}

	title := req.PRTitle
	if title == "" {
		title = fmt.Sprintf("Agent work on %s", ws.Branch)
	}
	pr, err := prClient.GetOrCreatePR(ctx, github.PRCreateOptions{
		Title: title,
		Body:  req.PRBody,
		Head:  ws.Branch,
		Base:  ws.BaseBranch,
		Draft: req.Draft,
	})
	if err != nil {
		return FinalizeResult{}, err
	}

	s.logger.Info("Finalized workspace %s: commit %s, PR %s", ws.ID, sha, pr.URL)
	return FinalizeResult{CommitSHA: sha, PRURL: pr.URL}, nil
}

// Teardown removes the workspace's directory (and worktree registration) and
// marks it torn down. Tearing down an unknown or already-gone workspace is a
// success.
func (s *Service) Teardown(ctx context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.workspaces[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if e.finalizing {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrFinalizeInFlight, id)
	}
	ws := e.ws
	s.mu.Unlock()

	if ws.Worktree {
		if err := s.git.WorktreeRemove(ctx, ws.Repo, ws.LocalPath); err != nil {
			s.logger.Warn("Worktree removal failed during teardown: %v", err)
		}
	}
	if err := os.RemoveAll(ws.LocalPath); err != nil {
		return fmt.Errorf("failed to remove workspace directory: %w", err)
	}

	s.setStatus(id, StatusTornDown)
	s.logger.Info("Tore down workspace %s (%s)", id, ws.LocalPath)
	return nil
}

// Get returns a workspace by id.
func (s *Service) Get(id string) (Workspace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.workspaces[id]
	if !ok {
		return Workspace{}, false
	}
	return e.ws, true
}

// List returns all registered workspaces.
func (s *Service) List() []Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Workspace, 0, len(s.workspaces))
	for _, e := range s.workspaces {
		out = append(out, e.ws)
	}
	return out
}

// ReadyPath reports whether path is the local path of a workspace in ready
// state. The session manager gates spawns on this.
func (s *Service) ReadyPath(path string) bool {
	cleaned := filepath.Clean(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.workspaces {
		if filepath.Clean(e.ws.LocalPath) == cleaned && e.ws.Status == StatusReady {
			return true
		}
	}
	return false
}

func (s *Service) setStatus(id string, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.workspaces[id]; ok {
		e.ws.Status = status
	}
}
