package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.Session.StallTimeout)
	assert.Equal(t, 5*time.Second, cfg.Session.KillGrace)
	assert.Equal(t, 100, cfg.Session.HistoryCap)
	assert.Equal(t, StrategyFixed, cfg.Selection.Strategy)
	assert.Equal(t, "claude", cfg.Selection.FixedAgentType)
	assert.NotEmpty(t, cfg.Workspace.Root)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Session.HistoryCap, cfg.Session.HistoryCap)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conductor.yaml")
	content := `
session:
  stall_timeout: 90s
  history_cap: 10
selection:
  strategy: ranked
  fixed_agent_type: codex
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Session.StallTimeout)
	assert.Equal(t, 10, cfg.Session.HistoryCap)
	assert.Equal(t, StrategyRanked, cfg.Selection.Strategy)
	assert.Equal(t, "codex", cfg.Selection.FixedAgentType)
	// Unset fields keep defaults.
	assert.Equal(t, 5*time.Second, cfg.Session.KillGrace)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONDUCTOR_STALL_TIMEOUT", "2m")
	t.Setenv("CONDUCTOR_AGENT_TYPE", "aider")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Session.StallTimeout)
	assert.Equal(t, "aider", cfg.Selection.FixedAgentType)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session: ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(_ *Config) {}, false},
		{"zero stall timeout", func(c *Config) { c.Session.StallTimeout = 0 }, true},
		{"negative kill grace", func(c *Config) { c.Session.KillGrace = -time.Second }, true},
		{"zero history cap", func(c *Config) { c.Session.HistoryCap = 0 }, true},
		{"tiny transcript tail", func(c *Config) { c.Session.TranscriptTailBytes = 10 }, true},
		{"unknown strategy", func(c *Config) { c.Selection.Strategy = "random" }, true},
		{"empty fixed agent", func(c *Config) { c.Selection.FixedAgentType = "" }, true},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
