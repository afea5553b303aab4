// Package config provides configuration loading and validation for the
// orchestrator. Config values are plain data: they are loaded once at startup
// and passed by value to the components that need them, so tests can construct
// isolated instances without touching process-global state.
package config

import (
	"fmt"
	"time"
)

// Selection strategy constants.
const (
	StrategyFixed  = "fixed"
	StrategyRanked = "ranked"
)

// Config is the root configuration for the orchestrator.
type Config struct {
	Session   SessionConfig   `yaml:"session"`
	Selection SelectionConfig `yaml:"selection"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Server    ServerConfig    `yaml:"server"`
}

// SessionConfig controls session lifecycle behavior.
type SessionConfig struct {
	// StallTimeout is the quiet window after which a running session with no
	// output is flagged as stalled.
	StallTimeout time.Duration `yaml:"stall_timeout"`

	// KillGrace is how long stop waits after the termination signal before
	// escalating to a forced kill.
	KillGrace time.Duration `yaml:"kill_grace"`

	// HistoryCap bounds how many sessions (including terminal ones) are
	// retained for listing; oldest terminal sessions are evicted first.
	HistoryCap int `yaml:"history_cap"`

	// TranscriptTailBytes bounds the in-memory transcript tail per session.
	TranscriptTailBytes int `yaml:"transcript_tail_bytes"`
}

// SelectionConfig controls adapter selection for spawns without an explicit
// agent type.
type SelectionConfig struct {
	// Strategy is "fixed" or "ranked".
	Strategy string `yaml:"strategy"`

	// FixedAgentType is the adapter used by the fixed strategy, and the
	// fallback when ranked selection finds no installed candidate.
	FixedAgentType string `yaml:"fixed_agent_type"`
}

// WorkspaceConfig controls workspace provisioning.
type WorkspaceConfig struct {
	// Root is the directory under which workspaces are provisioned.
	Root string `yaml:"root"`
}

// MetricsConfig controls the metrics store backing.
type MetricsConfig struct {
	// SQLitePath, when set, persists per-adapter metrics across restarts.
	// Empty means in-memory only.
	SQLitePath string `yaml:"sqlite_path"`
}

// ServerConfig controls the action surface HTTP server.
type ServerConfig struct {
	// Addr is the listen address for the action surface and /metrics.
	Addr string `yaml:"addr"`
}

// Default returns the documented conservative defaults.
func Default() Config {
	return Config{
		Session: SessionConfig{
			StallTimeout:        60 * time.Second,
			KillGrace:           5 * time.Second,
			HistoryCap:          100,
			TranscriptTailBytes: 64 * 1024,
		},
		Selection: SelectionConfig{
			Strategy:       StrategyFixed,
			FixedAgentType: "claude",
		},
		Workspace: WorkspaceConfig{
			Root: "", // resolved to <home>/.conductor/workspaces by the loader
		},
		Metrics: MetricsConfig{},
		Server: ServerConfig{
			Addr: "127.0.0.1:7333",
		},
	}
}

// Validate rejects configurations that would misbehave at runtime.
func (c *Config) Validate() error {
	if c.Session.StallTimeout <= 0 {
		return fmt.Errorf("session.stall_timeout must be positive, got %s", c.Session.StallTimeout)
	}
	if c.Session.KillGrace <= 0 {
		return fmt.Errorf("session.kill_grace must be positive, got %s", c.Session.KillGrace)
	}
	if c.Session.HistoryCap < 1 {
		return fmt.Errorf("session.history_cap must be at least 1, got %d", c.Session.HistoryCap)
	}
	if c.Session.TranscriptTailBytes < 1024 {
		return fmt.Errorf("session.transcript_tail_bytes must be at least 1024, got %d", c.Session.TranscriptTailBytes)
	}

	switch c.Selection.Strategy {
	case StrategyFixed, StrategyRanked:
	default:
		return fmt.Errorf("selection.strategy must be %q or %q, got %q",
			StrategyFixed, StrategyRanked, c.Selection.Strategy)
	}
	if c.Selection.FixedAgentType == "" {
		return fmt.Errorf("selection.fixed_agent_type must not be empty")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}

	return nil
}
