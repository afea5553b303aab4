package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/pkg/execx"
)

// stubExec returns canned results per binary name.
type stubExec struct {
	installed map[string]bool
}

func (s *stubExec) Run(_ context.Context, cmd []string, _ execx.Opts) (execx.Result, error) {
	if s.installed[cmd[0]] {
		return execx.Result{Stdout: "1.2.3 (test build)\nextra\n"}, nil
	}
	return execx.Result{ExitCode: -1}, errors.New("executable file not found in $PATH")
}

func TestCheckInstalledFound(t *testing.T) {
	p := NewPreflight(&stubExec{installed: map[string]bool{"claude": true}})

	result := p.CheckInstalled(context.Background(), TypeClaude)
	assert.True(t, result.Installed)
	assert.Equal(t, "1.2.3 (test build)", result.Version)
	assert.Equal(t, TypeClaude, result.Type)
}

func TestCheckInstalledMissingNeverErrors(t *testing.T) {
	p := NewPreflight(&stubExec{})

	result := p.CheckInstalled(context.Background(), TypeCodex)
	assert.False(t, result.Installed)
	assert.NotEmpty(t, result.InstallCommand, "failed probe must carry install guidance")
	assert.NotEmpty(t, result.DocsURL)
}

func TestCheckInstalledUnknownType(t *testing.T) {
	p := NewPreflight(&stubExec{})
	result := p.CheckInstalled(context.Background(), Type("vim"))
	assert.False(t, result.Installed)
}

func TestCheckInstalledRealShell(t *testing.T) {
	// sh is present on any POSIX host; exercise the real executor path.
	p := NewPreflight(execx.NewLocal()).WithTimeout(5 * time.Second)
	result := p.CheckInstalled(context.Background(), TypeShell)
	assert.True(t, result.Installed)
}

func TestListInstalledCoversAllAdapters(t *testing.T) {
	p := NewPreflight(&stubExec{installed: map[string]bool{"sh": true, "aider": true}})

	results := p.ListInstalled(context.Background())
	require.Len(t, results, len(All()))

	byType := make(map[Type]PreflightResult)
	for _, r := range results {
		byType[r.Type] = r
	}
	assert.True(t, byType[TypeShell].Installed)
	assert.True(t, byType[TypeAider].Installed)
	assert.False(t, byType[TypeClaude].Installed)
}

func TestInstalledTypesPreservesRegistryOrder(t *testing.T) {
	p := NewPreflight(&stubExec{installed: map[string]bool{"sh": true, "claude": true}})

	installed := p.InstalledTypes(context.Background())
	assert.Equal(t, []Type{TypeClaude, TypeShell}, installed)
}
