package github

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/pkg/execx"
)

type stubExec struct {
	results map[string]execx.Result // keyed by gh subcommand ("pr list" uses cmd[2])
	calls   [][]string
}

func (s *stubExec) Run(_ context.Context, cmd []string, _ execx.Opts) (execx.Result, error) {
	s.calls = append(s.calls, cmd)
	if len(cmd) > 2 {
		if result, ok := s.results[cmd[2]]; ok {
			return result, nil
		}
	}
	return execx.Result{}, nil
}

func TestParseGitHubURL(t *testing.T) {
	tests := []struct {
		url       string
		owner     string
		repo      string
		expectErr bool
	}{
		{url: "https://github.com/acme/widgets.git", owner: "acme", repo: "widgets"},
		{url: "https://github.com/acme/widgets", owner: "acme", repo: "widgets"},
		{url: "git@github.com:acme/widgets.git", owner: "acme", repo: "widgets"},
		{url: "https://gitlab.com/acme/widgets.git", expectErr: true},
		{url: "https://github.com/acme", expectErr: true},
	}

	for _, tt := range tests {
		owner, repo, err := ParseGitHubURL(tt.url)
		if tt.expectErr {
			assert.Error(t, err, tt.url)
			continue
		}
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.owner, owner)
		assert.Equal(t, tt.repo, repo)
	}
}

func TestListPRsForBranch(t *testing.T) {
	exec := &stubExec{results: map[string]execx.Result{
		"list": {Stdout: `[{"number":12,"url":"https://github.com/acme/widgets/pull/12","title":"Task","state":"OPEN","headRefName":"task-1"}]`},
	}}
	client, err := NewClient("https://github.com/acme/widgets.git", exec)
	require.NoError(t, err)

	prs, err := client.ListPRsForBranch(context.Background(), "task-1")
	require.NoError(t, err)
	require.Len(t, prs, 1)
	assert.Equal(t, 12, prs[0].Number)
	assert.Equal(t, "task-1", prs[0].HeadRefName)
}

func TestCreatePRReturnsURL(t *testing.T) {
	exec := &stubExec{results: map[string]execx.Result{
		"create": {Stdout: "https://github.com/acme/widgets/pull/13\n"},
	}}
	client, err := NewClient("https://github.com/acme/widgets.git", exec)
	require.NoError(t, err)

	pr, err := client.CreatePR(context.Background(), PRCreateOptions{
		Title: "Add feature",
		Head:  "task-2",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/widgets/pull/13", pr.URL)
}

func TestCreatePRFailureClassified(t *testing.T) {
	exec := &stubExec{results: map[string]execx.Result{
		"create": {ExitCode: 1, Stderr: "pull request create failed: GraphQL: something"},
	}}
	client, err := NewClient("https://github.com/acme/widgets.git", exec)
	require.NoError(t, err)

	_, err = client.CreatePR(context.Background(), PRCreateOptions{Title: "x", Head: "task-3"})
	assert.ErrorIs(t, err, ErrPRCreationFailed)
}

func TestCreatePRRequiresHeadAndTitle(t *testing.T) {
	client, err := NewClient("https://github.com/acme/widgets.git", &stubExec{})
	require.NoError(t, err)

	_, err = client.CreatePR(context.Background(), PRCreateOptions{Title: "x"})
	assert.ErrorIs(t, err, ErrPRCreationFailed)
}

func TestGetOrCreatePRPrefersExisting(t *testing.T) {
	exec := &stubExec{results: map[string]execx.Result{
		"list": {Stdout: `[{"number":7,"url":"https://github.com/acme/widgets/pull/7","headRefName":"task-4","state":"OPEN"}]`},
	}}
	client, err := NewClient("https://github.com/acme/widgets.git", exec)
	require.NoError(t, err)

	pr, err := client.GetOrCreatePR(context.Background(), PRCreateOptions{Title: "x", Head: "task-4"})
	require.NoError(t, err)
	assert.Equal(t, 7, pr.Number)

	for _, call := range exec.calls {
		assert.NotEqual(t, "create", call[2], "existing PR must not be duplicated")
	}
}
