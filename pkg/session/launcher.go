package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"

	"conductor/pkg/adapter"
)

// Handle is one live adapter process attached to a pseudo-terminal.
type Handle interface {
	// Output streams process output chunks. The channel closes when the
	// process's output ends.
	Output() <-chan []byte

	// Write sends input to the process's terminal.
	Write(p []byte) error

	// Terminate asks the process to exit (SIGTERM).
	Terminate() error

	// Kill forcibly ends the process.
	Kill() error

	// Done closes once the process has exited and its exit code is available.
	Done() <-chan struct{}

	// ExitCode is valid only after Done is closed.
	ExitCode() int
}

// Launcher starts adapter processes. The interface is the seam tests use to
// run the full session state machine without real ptys.
type Launcher interface {
	Launch(ctx context.Context, spec adapter.Spec, workdir, task string) (Handle, error)
}

// PtyLauncher launches real processes under a pseudo-terminal.
type PtyLauncher struct{}

// NewPtyLauncher creates the production launcher.
func NewPtyLauncher() *PtyLauncher {
	return &PtyLauncher{}
}

// Launch starts the adapter's command in workdir attached to a fresh pty.
func (l *PtyLauncher) Launch(_ context.Context, spec adapter.Spec, workdir, task string) (Handle, error) {
	argv := spec.LaunchCommand(task)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = workdir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	f, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", spec.Binary, err)
	}

	h := &ptyHandle{
		cmd:    cmd,
		f:      f,
		output: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go h.pump()
	return h, nil
}

type ptyHandle struct {
	cmd    *exec.Cmd
	f      *os.File
	output chan []byte
	done   chan struct{}

	mu       sync.Mutex
	exitCode int
}

// pump drains the pty until the process closes its side, then reaps it.
func (h *ptyHandle) pump() {
	buf := make([]byte, 4096)
	for {
		n, err := h.f.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			h.output <- chunk
		}
		if err != nil {
			// EIO here is the normal pty close on process exit.
			break
		}
	}
	close(h.output)
	_ = h.f.Close()

	err := h.cmd.Wait()
	code := 0
	if err != nil {
		code = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
	}

	h.mu.Lock()
	h.exitCode = code
	h.mu.Unlock()
	close(h.done)
}

func (h *ptyHandle) Output() <-chan []byte { return h.output }

func (h *ptyHandle) Write(p []byte) error {
	_, err := h.f.Write(p)
	return err
}

func (h *ptyHandle) Terminate() error {
	if h.cmd.Process == nil {
		return nil
	}
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (h *ptyHandle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (h *ptyHandle) Done() <-chan struct{} { return h.done }

func (h *ptyHandle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}
