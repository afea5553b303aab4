// Package session owns the lifecycle of interactive coding-agent processes.
// Each session wraps one pseudo-terminal process bound to one adapter and
// moves through spawning → running → {stalled ⇄ running, completed, failed,
// stopped}. Terminal transitions feed the metrics store exactly once.
package session

import (
	"errors"
	"time"

	"conductor/pkg/adapter"
)

// Status is a session lifecycle state.
type Status string

// Session lifecycle states. stopped, completed, and failed are terminal.
const (
	StatusSpawning  Status = "spawning"
	StatusRunning   Status = "running"
	StatusStalled   Status = "stalled"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusStopped
}

var (
	// ErrSessionNotFound means the session id is unknown or already terminal.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAdapterNotInstalled means the requested adapter's CLI failed its
	// install probe. The wrapped text carries install guidance.
	ErrAdapterNotInstalled = errors.New("adapter not installed")

	// ErrWorkdirInvalid means the spawn workdir does not exist or is not a
	// ready workspace.
	ErrWorkdirInvalid = errors.New("workdir invalid")
)

// Session is the externally visible session record. List returns copies, so
// callers can hold them without racing the live state.
type Session struct {
	ID           string       `json:"id"`
	AdapterType  adapter.Type `json:"adapterType"`
	Workdir      string       `json:"workdir"`
	WorkspaceID  string       `json:"workspaceId,omitempty"`
	Task         string       `json:"task"`
	Status       Status       `json:"status"`
	StartedAt    time.Time    `json:"startedAt"`
	LastOutputAt time.Time    `json:"lastOutputAt"`
	CompletedAt  *time.Time   `json:"completedAt,omitempty"`
	StallCount   int64        `json:"stallCount"`
	Transcript   string       `json:"transcript,omitempty"`
	Error        string       `json:"error,omitempty"`
}
