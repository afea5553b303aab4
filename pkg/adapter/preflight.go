package adapter

import (
	"context"
	"strings"
	"sync"
	"time"

	"conductor/pkg/execx"
	"conductor/pkg/logx"
)

// DefaultProbeTimeout bounds a single install probe. Version/help invocations
// should return in well under a second; anything slower is treated as absent.
const DefaultProbeTimeout = 10 * time.Second

// PreflightResult is the outcome of one install probe. Computed on demand,
// never persisted.
type PreflightResult struct {
	Type           Type   `json:"adapterType"`
	Installed      bool   `json:"installed"`
	Version        string `json:"version,omitempty"`
	InstallCommand string `json:"installCommand,omitempty"`
	DocsURL        string `json:"docsUrl,omitempty"`
}

// Preflight probes for adapter CLI binaries.
type Preflight struct {
	exec    execx.Executor
	logger  *logx.Logger
	timeout time.Duration
}

// NewPreflight creates a preflight checker using the given executor.
func NewPreflight(exec execx.Executor) *Preflight {
	return &Preflight{
		exec:    exec,
		logger:  logx.NewLogger("adapter"),
		timeout: DefaultProbeTimeout,
	}
}

// WithTimeout returns a preflight checker with a different probe timeout.
func (p *Preflight) WithTimeout(timeout time.Duration) *Preflight {
	return &Preflight{exec: p.exec, logger: p.logger, timeout: timeout}
}

// CheckInstalled probes whether the adapter's binary is usable. It never
// returns an error: any probe failure (missing binary, non-zero exit, timeout)
// yields Installed=false plus install guidance.
func (p *Preflight) CheckInstalled(ctx context.Context, t Type) PreflightResult {
	spec, err := Lookup(t)
	if err != nil {
		return PreflightResult{Type: t, Installed: false}
	}

	result := PreflightResult{
		Type:           t,
		InstallCommand: spec.InstallCommand,
		DocsURL:        spec.DocsURL,
	}

	probe := append([]string{spec.Binary}, spec.ProbeArgs...)
	run, err := p.exec.Run(ctx, probe, execx.Opts{Timeout: p.timeout})
	if err != nil || run.ExitCode != 0 {
		p.logger.Debug("Probe failed for %s: err=%v exit=%d", t, err, run.ExitCode)
		return result
	}

	result.Installed = true
	result.Version = firstLine(run.Stdout)
	return result
}

// ListInstalled probes the full candidate set concurrently.
func (p *Preflight) ListInstalled(ctx context.Context) []PreflightResult {
	specs := All()
	results := make([]PreflightResult, len(specs))

	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, t Type) {
			defer wg.Done()
			results[i] = p.CheckInstalled(ctx, t)
		}(i, spec.Type)
	}
	wg.Wait()

	return results
}

// InstalledTypes returns just the types whose probes succeeded, in registry order.
func (p *Preflight) InstalledTypes(ctx context.Context) []Type {
	var installed []Type
	for _, r := range p.ListInstalled(ctx) {
		if r.Installed {
			installed = append(installed, r.Type)
		}
	}
	return installed
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
