package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"conductor/pkg/logx"
)

// Load reads configuration from the given YAML file, layered over Default().
// A missing file is not an error: defaults plus env overrides apply.
//
// Environment overrides (applied after the file):
//
//	CONDUCTOR_STALL_TIMEOUT     duration, e.g. "90s"
//	CONDUCTOR_KILL_GRACE        duration
//	CONDUCTOR_HISTORY_CAP       integer
//	CONDUCTOR_AGENT_TYPE        fixed agent type
//	CONDUCTOR_STRATEGY          "fixed" or "ranked"
//	CONDUCTOR_WORKSPACE_ROOT    directory
//	CONDUCTOR_METRICS_DB        sqlite path
//	CONDUCTOR_ADDR              listen address
func Load(path string) (Config, error) {
	logger := logx.NewLogger("config")
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			logger.Debug("No config file at %s, using defaults", path)
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
			logger.Debug("Loaded config from %s", path)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.Workspace.Root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("failed to resolve home directory for workspace root: %w", err)
		}
		cfg.Workspace.Root = filepath.Join(home, ".conductor", "workspaces")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv layers environment variable overrides onto cfg.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("CONDUCTOR_STALL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CONDUCTOR_STALL_TIMEOUT %q: %w", v, err)
		}
		cfg.Session.StallTimeout = d
	}
	if v := os.Getenv("CONDUCTOR_KILL_GRACE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CONDUCTOR_KILL_GRACE %q: %w", v, err)
		}
		cfg.Session.KillGrace = d
	}
	if v := os.Getenv("CONDUCTOR_HISTORY_CAP"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			return fmt.Errorf("invalid CONDUCTOR_HISTORY_CAP %q: %w", v, err)
		}
		cfg.Session.HistoryCap = n
	}
	if v := os.Getenv("CONDUCTOR_AGENT_TYPE"); v != "" {
		cfg.Selection.FixedAgentType = v
	}
	if v := os.Getenv("CONDUCTOR_STRATEGY"); v != "" {
		cfg.Selection.Strategy = v
	}
	if v := os.Getenv("CONDUCTOR_WORKSPACE_ROOT"); v != "" {
		cfg.Workspace.Root = v
	}
	if v := os.Getenv("CONDUCTOR_METRICS_DB"); v != "" {
		cfg.Metrics.SQLitePath = v
	}
	if v := os.Getenv("CONDUCTOR_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	return nil
}
