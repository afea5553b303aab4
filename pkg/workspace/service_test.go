package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/pkg/execx"
	"conductor/pkg/github"
	"conductor/pkg/gitx"
)

// fakeGitExec answers git invocations from a canned table keyed by subcommand
// and can simulate the partial directory a failed clone leaves behind.
type fakeGitExec struct {
	mu              sync.Mutex
	results         map[string]execx.Result
	cloneCreatesDir bool
	subcommands     []string
}

func newFakeGitExec() *fakeGitExec {
	return &fakeGitExec{results: map[string]execx.Result{
		"rev-parse": {Stdout: "abc1234\n"},
		"remote":    {Stdout: "https://github.com/acme/widgets.git\n"},
		"rev-list":  {Stdout: "0\n"},
	}}
}

func (f *fakeGitExec) on(subcommand string, result execx.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[subcommand] = result
}

func (f *fakeGitExec) Run(_ context.Context, cmd []string, _ execx.Opts) (execx.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub := cmd[1]
	f.subcommands = append(f.subcommands, sub)

	if sub == "clone" && f.cloneCreatesDir {
		_ = os.MkdirAll(cmd[len(cmd)-1], 0o755)
	}
	if result, ok := f.results[sub]; ok {
		return result, nil
	}
	return execx.Result{}, nil
}

func (f *fakeGitExec) seen(subcommand string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, s := range f.subcommands {
		if s == subcommand {
			n++
		}
	}
	return n
}

type fakePRClient struct {
	mu      sync.Mutex
	created int
	entered chan struct{}
	block   chan struct{}
	url     string
}

func (f *fakePRClient) ListPRsForBranch(context.Context, string) ([]github.PullRequest, error) {
	return nil, nil
}

func (f *fakePRClient) GetOrCreatePR(context.Context, github.PRCreateOptions) (*github.PullRequest, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return &github.PullRequest{URL: f.url, Number: f.created}, nil
}

func newTestService(t *testing.T, exec *fakeGitExec, pr *fakePRClient) *Service {
	t.Helper()
	factory := func(string) (github.PRClient, error) { return pr, nil }
	return NewService(t.TempDir(), gitx.NewRunner(exec), factory)
}

func TestProvisionClone(t *testing.T) {
	exec := newFakeGitExec()
	exec.cloneCreatesDir = true
	svc := newTestService(t, exec, &fakePRClient{})

	ws, err := svc.Provision(context.Background(), ProvisionRequest{
		Repo:       "https://github.com/acme/widgets.git",
		BaseBranch: "main",
		Name:       "feature-x",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusReady, ws.Status)
	assert.Equal(t, "task-feature-x", ws.Branch)
	assert.True(t, svc.ReadyPath(ws.LocalPath))

	// Fresh clone checks out the work branch after cloning.
	assert.Equal(t, 1, exec.seen("clone"))
	assert.Equal(t, 1, exec.seen("checkout"))
}

func TestProvisionUnreachableRollsBack(t *testing.T) {
	exec := newFakeGitExec()
	exec.cloneCreatesDir = true
	exec.on("clone", execx.Result{
		ExitCode: 128,
		Stderr:   "fatal: unable to access 'https://host/repo.git/': Could not resolve host: host",
	})
	svc := newTestService(t, exec, &fakePRClient{})

	_, err := svc.Provision(context.Background(), ProvisionRequest{
		Repo:       "https://host/repo.git",
		BaseBranch: "main",
		Name:       "doomed",
	})
	require.ErrorIs(t, err, gitx.ErrRepoUnreachable)

	// The partial clone directory must not survive the failure.
	entries := svc.List()
	require.Len(t, entries, 1)
	assert.Equal(t, StatusFailed, entries[0].Status)
	_, statErr := os.Stat(entries[0].LocalPath)
	assert.True(t, os.IsNotExist(statErr))
	assert.False(t, svc.ReadyPath(entries[0].LocalPath))
}

func TestProvisionWorktree(t *testing.T) {
	exec := newFakeGitExec()
	svc := newTestService(t, exec, &fakePRClient{})

	checkout := t.TempDir()
	ws, err := svc.Provision(context.Background(), ProvisionRequest{
		Repo:        checkout,
		BaseBranch:  "main",
		UseWorktree: true,
		Name:        "wt-1",
	})
	require.NoError(t, err)
	assert.True(t, ws.Worktree)
	assert.Equal(t, 1, exec.seen("worktree"))
	assert.Equal(t, 0, exec.seen("clone"))
}

func TestProvisionWorktreeMissingCheckout(t *testing.T) {
	// Real executor: the checkout directory is stat-checked before git ever
	// runs, and that failure must land on the same sentinel as a bad remote.
	factory := func(string) (github.PRClient, error) { return &fakePRClient{}, nil }
	svc := NewService(t.TempDir(), gitx.NewRunner(execx.NewLocal()), factory)

	_, err := svc.Provision(context.Background(), ProvisionRequest{
		Repo:        filepath.Join(t.TempDir(), "no-checkout-here"),
		BaseBranch:  "main",
		UseWorktree: true,
		Name:        "wt-missing",
	})
	require.ErrorIs(t, err, gitx.ErrRepoUnreachable)

	entries := svc.List()
	require.Len(t, entries, 1)
	assert.Equal(t, StatusFailed, entries[0].Status)
}

func TestProvisionMissingBranch(t *testing.T) {
	exec := newFakeGitExec()
	exec.on("clone", execx.Result{
		ExitCode: 128,
		Stderr:   "fatal: Remote branch nope not found in upstream origin",
	})
	svc := newTestService(t, exec, &fakePRClient{})

	_, err := svc.Provision(context.Background(), ProvisionRequest{
		Repo:       "https://github.com/acme/widgets.git",
		BaseBranch: "nope",
	})
	assert.ErrorIs(t, err, gitx.ErrBranchNotFound)
}

func provisionReady(t *testing.T, svc *Service, exec *fakeGitExec) Workspace {
	t.Helper()
	exec.cloneCreatesDir = true
	ws, err := svc.Provision(context.Background(), ProvisionRequest{
		Repo:       "https://github.com/acme/widgets.git",
		BaseBranch: "main",
	})
	require.NoError(t, err)
	return ws
}

func TestFinalizeCommitsPushesAndOpensPR(t *testing.T) {
	exec := newFakeGitExec()
	pr := &fakePRClient{url: "https://github.com/acme/widgets/pull/42"}
	svc := newTestService(t, exec, pr)
	ws := provisionReady(t, svc, exec)

	exec.on("status", execx.Result{Stdout: " M main.go\n"})

	result, err := svc.Finalize(context.Background(), FinalizeRequest{
		WorkspaceID:   ws.ID,
		CommitMessage: "Implement the task",
		PRTitle:       "Task",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc1234", result.CommitSHA)
	assert.Equal(t, "https://github.com/acme/widgets/pull/42", result.PRURL)

	got, _ := svc.Get(ws.ID)
	assert.Equal(t, StatusFinalized, got.Status)
	assert.Equal(t, 1, exec.seen("commit"))
	assert.Equal(t, 1, exec.seen("push"))
}

func TestFinalizeIdempotent(t *testing.T) {
	exec := newFakeGitExec()
	pr := &fakePRClient{url: "https://github.com/acme/widgets/pull/42"}
	svc := newTestService(t, exec, pr)
	ws := provisionReady(t, svc, exec)

	exec.on("status", execx.Result{Stdout: " M main.go\n"})

	first, err := svc.Finalize(context.Background(), FinalizeRequest{WorkspaceID: ws.ID})
	require.NoError(t, err)

	second, err := svc.Finalize(context.Background(), FinalizeRequest{WorkspaceID: ws.ID})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, pr.created, "repeat finalize must not open a second PR")
	assert.Equal(t, 1, exec.seen("push"))
}

func TestFinalizeNothingToCommit(t *testing.T) {
	exec := newFakeGitExec()
	svc := newTestService(t, exec, &fakePRClient{})
	ws := provisionReady(t, svc, exec)

	// Clean tree and zero commits ahead of base.
	result, err := svc.Finalize(context.Background(), FinalizeRequest{WorkspaceID: ws.ID})
	assert.ErrorIs(t, err, gitx.ErrNothingToCommit)
	assert.Zero(t, result)

	// The workspace stays ready so work can continue.
	got, _ := svc.Get(ws.ID)
	assert.Equal(t, StatusReady, got.Status)
}

func TestFinalizeCleanTreeWithAgentCommits(t *testing.T) {
	exec := newFakeGitExec()
	pr := &fakePRClient{url: "https://github.com/acme/widgets/pull/8"}
	svc := newTestService(t, exec, pr)
	ws := provisionReady(t, svc, exec)

	// The agent committed its own work: clean tree, two commits ahead.
	exec.on("rev-list", execx.Result{Stdout: "2\n"})

	result, err := svc.Finalize(context.Background(), FinalizeRequest{WorkspaceID: ws.ID})
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/widgets/pull/8", result.PRURL)
	assert.Equal(t, 0, exec.seen("commit"), "no extra commit on a clean tree")
}

func TestFinalizePushRejectedLeavesWorkspaceRetryable(t *testing.T) {
	exec := newFakeGitExec()
	svc := newTestService(t, exec, &fakePRClient{})
	ws := provisionReady(t, svc, exec)

	exec.on("status", execx.Result{Stdout: " M main.go\n"})
	exec.on("push", execx.Result{ExitCode: 1, Stderr: " ! [rejected] task -> task (non-fast-forward)"})

	_, err := svc.Finalize(context.Background(), FinalizeRequest{WorkspaceID: ws.ID})
	require.ErrorIs(t, err, gitx.ErrPushRejected)

	got, _ := svc.Get(ws.ID)
	assert.Equal(t, StatusReady, got.Status)

	// A retry after the push is fixed succeeds.
	exec.on("push", execx.Result{})
	_, err = svc.Finalize(context.Background(), FinalizeRequest{WorkspaceID: ws.ID})
	assert.NoError(t, err)
}

func TestFinalizeUnknownWorkspace(t *testing.T) {
	svc := newTestService(t, newFakeGitExec(), &fakePRClient{})
	_, err := svc.Finalize(context.Background(), FinalizeRequest{WorkspaceID: "nope"})
	assert.ErrorIs(t, err, ErrWorkspaceNotFound)
}

func TestFinalizeConcurrentSameIDRejected(t *testing.T) {
	exec := newFakeGitExec()
	pr := &fakePRClient{
		url:     "https://x/pull/1",
		entered: make(chan struct{}, 1),
		block:   make(chan struct{}),
	}
	svc := newTestService(t, exec, pr)
	ws := provisionReady(t, svc, exec)

	exec.on("status", execx.Result{Stdout: " M main.go\n"})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Finalize(context.Background(), FinalizeRequest{WorkspaceID: ws.ID})
		done <- err
	}()

	// Wait until the first finalize is parked inside PR creation, then a
	// second call for the same id must be rejected, not queued.
	<-pr.entered
	_, err := svc.Finalize(context.Background(), FinalizeRequest{WorkspaceID: ws.ID})
	assert.ErrorIs(t, err, ErrFinalizeInFlight)

	close(pr.block)
	require.NoError(t, <-done)
}

func TestTeardownIdempotent(t *testing.T) {
	exec := newFakeGitExec()
	svc := newTestService(t, exec, &fakePRClient{})
	ws := provisionReady(t, svc, exec)

	require.NoError(t, svc.Teardown(context.Background(), ws.ID))
	got, _ := svc.Get(ws.ID)
	assert.Equal(t, StatusTornDown, got.Status)
	_, statErr := os.Stat(ws.LocalPath)
	assert.True(t, os.IsNotExist(statErr))

	// Again, and for an id that never existed: both succeed.
	require.NoError(t, svc.Teardown(context.Background(), ws.ID))
	require.NoError(t, svc.Teardown(context.Background(), "never-existed"))
}

func TestReadyPathUnknownDir(t *testing.T) {
	svc := newTestService(t, newFakeGitExec(), &fakePRClient{})
	assert.False(t, svc.ReadyPath(filepath.Join(os.TempDir(), "not-a-workspace")))
}
