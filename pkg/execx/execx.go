// Package execx provides bounded-timeout command execution used by adapter
// preflight probes and git operations.
package execx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Executor runs external commands. The interface exists so tests can substitute
// a fake without shelling out.
type Executor interface {
	// Run executes a command with the given options and returns the result.
	// A non-zero exit code is reported in Result, not as an error; the error
	// return covers failures to start (or a timeout/cancellation).
	Run(ctx context.Context, cmd []string, opts Opts) (Result, error)
}

// Opts contains options for command execution.
type Opts struct {
	// Env contains extra environment variables (KEY=VALUE), appended to the
	// current process environment.
	Env []string

	// Timeout bounds execution; zero means no additional bound beyond ctx.
	Timeout time.Duration

	// WorkDir is the working directory for the command.
	WorkDir string
}

// Result contains the result of command execution.
type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
	ExitCode int
}

// Local executes commands directly on the host.
type Local struct{}

// NewLocal creates a host executor.
func NewLocal() *Local {
	return &Local{}
}

// Run executes a command locally with the given options.
func (e *Local) Run(ctx context.Context, cmd []string, opts Opts) (Result, error) {
	if len(cmd) == 0 {
		return Result{}, fmt.Errorf("command cannot be empty")
	}

	start := time.Now()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	execCmd := exec.CommandContext(ctx, cmd[0], cmd[1:]...)

	if opts.WorkDir != "" {
		if _, err := os.Stat(opts.WorkDir); err != nil {
			return Result{}, fmt.Errorf("working directory unusable: %s: %w", opts.WorkDir, err)
		}
		execCmd.Dir = opts.WorkDir
	}

	if len(opts.Env) > 0 {
		execCmd.Env = append(os.Environ(), opts.Env...)
	}

	var stdout, stderr strings.Builder
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	err := execCmd.Run()
	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Non-zero exit is a result, not an error. The caller checks ExitCode.
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = -1
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, fmt.Errorf("command %q: %w", cmd[0], ctxErr)
		}
		return result, fmt.Errorf("command %q failed to start: %w", cmd[0], err)
	}

	return result, nil
}
