// Package actions is the thin request/response surface the outer runtime
// consumes. Every action validates that the services it needs are wired
// before touching them, and every result carries a human-readable summary
// alongside the structured fields.
package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"conductor/pkg/adapter"
	"conductor/pkg/logx"
	"conductor/pkg/session"
	"conductor/pkg/workspace"
)

// Action names.
const (
	ActionSpawnCodingAgent   = "SPAWN_CODING_AGENT"
	ActionSendToCodingAgent  = "SEND_TO_CODING_AGENT"
	ActionListCodingAgents   = "LIST_CODING_AGENTS"
	ActionStopCodingAgent    = "STOP_CODING_AGENT"
	ActionProvisionWorkspace = "PROVISION_WORKSPACE"
	ActionFinalizeWorkspace  = "FINALIZE_WORKSPACE"
	ActionTeardownWorkspace  = "TEARDOWN_WORKSPACE"
)

// ErrServiceUnavailable means a prerequisite service is not wired or not
// responding; the caller gets a clear condition instead of a crash.
var ErrServiceUnavailable = errors.New("service unavailable")

// StopTargetAll is the sentinel session id that stops every live session.
const StopTargetAll = "all"

// SessionAPI is the session-manager surface the dispatcher needs.
type SessionAPI interface {
	Spawn(ctx context.Context, req session.SpawnRequest) (session.Session, error)
	Send(id, input string) error
	SendKeys(id string, keys []string) error
	List() []session.Session
	Stop(id string) bool
	StopAll() []string
}

// WorkspaceAPI is the workspace-service surface the dispatcher needs.
type WorkspaceAPI interface {
	Provision(ctx context.Context, req workspace.ProvisionRequest) (workspace.Workspace, error)
	Finalize(ctx context.Context, req workspace.FinalizeRequest) (workspace.FinalizeResult, error)
	Teardown(ctx context.Context, id string) error
}

// Dispatcher routes actions onto the wired services.
type Dispatcher struct {
	sessions   SessionAPI
	workspaces WorkspaceAPI
	logger     *logx.Logger
}

// NewDispatcher creates an action dispatcher. Either service may be nil; the
// affected actions then report ErrServiceUnavailable.
func NewDispatcher(sessions SessionAPI, workspaces WorkspaceAPI) *Dispatcher {
	return &Dispatcher{
		sessions:   sessions,
		workspaces: workspaces,
		logger:     logx.NewLogger("actions"),
	}
}

// SpawnRequest is the SPAWN_CODING_AGENT input.
type SpawnRequest struct {
	AgentType   string `json:"agentType,omitempty"`
	Workdir     string `json:"workdir"`
	WorkspaceID string `json:"workspaceId,omitempty"`
	Task        string `json:"task"`
}

// SpawnResult is the SPAWN_CODING_AGENT output.
type SpawnResult struct {
	SessionID   string `json:"sessionId"`
	AdapterType string `json:"adapterType"`
	Status      string `json:"status"`
	Summary     string `json:"summary"`
}

// Spawn starts a coding-agent session.
func (d *Dispatcher) Spawn(ctx context.Context, req SpawnRequest) (SpawnResult, error) {
	if d.sessions == nil {
		return SpawnResult{}, fmt.Errorf("%w: session manager", ErrServiceUnavailable)
	}

	s, err := d.sessions.Spawn(ctx, session.SpawnRequest{
		AgentType:   adapter.Type(req.AgentType),
		Workdir:     req.Workdir,
		WorkspaceID: req.WorkspaceID,
		Task:        req.Task,
	})
	if err != nil {
		return SpawnResult{}, err
	}

	return SpawnResult{
		SessionID:   s.ID,
		AdapterType: string(s.AdapterType),
		Status:      string(s.Status),
		Summary:     fmt.Sprintf("Spawned %s session %s in %s", s.AdapterType, s.ID, s.Workdir),
	}, nil
}

// SendRequest is the SEND_TO_CODING_AGENT input. Exactly one of Input or Keys
// carries the payload; Keys names terminal keys like "enter" or "ctrl-c".
type SendRequest struct {
	SessionID string   `json:"sessionId"`
	Input     string   `json:"input,omitempty"`
	Keys      []string `json:"keys,omitempty"`
}

// SendResult is the SEND_TO_CODING_AGENT output.
type SendResult struct {
	OK      bool   `json:"ok"`
	Summary string `json:"summary"`
}

// Send writes input or named keys to a session's terminal.
func (d *Dispatcher) Send(_ context.Context, req SendRequest) (SendResult, error) {
	if d.sessions == nil {
		return SendResult{}, fmt.Errorf("%w: session manager", ErrServiceUnavailable)
	}

	if len(req.Keys) > 0 {
		if err := d.sessions.SendKeys(req.SessionID, req.Keys); err != nil {
			return SendResult{}, err
		}
		return SendResult{
			OK:      true,
			Summary: fmt.Sprintf("Sent %d key(s) to session %s", len(req.Keys), req.SessionID),
		}, nil
	}

	if err := d.sessions.Send(req.SessionID, req.Input); err != nil {
		return SendResult{}, err
	}
	return SendResult{
		OK:      true,
		Summary: fmt.Sprintf("Sent %d bytes to session %s", len(req.Input), req.SessionID),
	}, nil
}

// ListResult is the LIST_CODING_AGENTS output.
type ListResult struct {
	Sessions []session.Session `json:"sessions"`
	Summary  string            `json:"summary"`
}

// List snapshots every retained session.
func (d *Dispatcher) List(_ context.Context) (ListResult, error) {
	if d.sessions == nil {
		return ListResult{}, fmt.Errorf("%w: session manager", ErrServiceUnavailable)
	}

	sessions := d.sessions.List()
	live := 0
	for _, s := range sessions {
		if !s.Status.Terminal() {
			live++
		}
	}
	return ListResult{
		Sessions: sessions,
		Summary:  fmt.Sprintf("%d sessions (%d live)", len(sessions), live),
	}, nil
}

// StopRequest is the STOP_CODING_AGENT input. SessionID may be "all".
type StopRequest struct {
	SessionID string `json:"sessionId"`
}

// StopResult is the STOP_CODING_AGENT output.
type StopResult struct {
	Stopped []string `json:"stopped"`
	Summary string   `json:"summary"`
}

// Stop terminates one session, or every live session for the "all" target.
// Stopping an unknown or terminal session succeeds with an empty list.
func (d *Dispatcher) Stop(_ context.Context, req StopRequest) (StopResult, error) {
	if d.sessions == nil {
		return StopResult{}, fmt.Errorf("%w: session manager", ErrServiceUnavailable)
	}

	var stopped []string
	if strings.EqualFold(req.SessionID, StopTargetAll) {
		stopped = d.sessions.StopAll()
	} else if d.sessions.Stop(req.SessionID) {
		stopped = []string{req.SessionID}
	}

	if stopped == nil {
		stopped = []string{}
	}
	return StopResult{
		Stopped: stopped,
		Summary: fmt.Sprintf("Stopped %d session(s)", len(stopped)),
	}, nil
}

// ProvisionRequest is the PROVISION_WORKSPACE input.
type ProvisionRequest struct {
	Repo        string `json:"repo"`
	BaseBranch  string `json:"baseBranch"`
	UseWorktree bool   `json:"useWorktree"`
	Name        string `json:"name,omitempty"`
}

// ProvisionResult is the PROVISION_WORKSPACE output.
type ProvisionResult struct {
	WorkspaceID string `json:"workspaceId"`
	LocalPath   string `json:"localPath"`
	Branch      string `json:"branch"`
	Summary     string `json:"summary"`
}

// Provision creates an isolated git workspace.
func (d *Dispatcher) Provision(ctx context.Context, req ProvisionRequest) (ProvisionResult, error) {
	if d.workspaces == nil {
		return ProvisionResult{}, fmt.Errorf("%w: workspace service", ErrServiceUnavailable)
	}

	ws, err := d.workspaces.Provision(ctx, workspace.ProvisionRequest{
		Repo:        req.Repo,
		BaseBranch:  req.BaseBranch,
		UseWorktree: req.UseWorktree,
		Name:        req.Name,
	})
	if err != nil {
		return ProvisionResult{}, err
	}

	return ProvisionResult{
		WorkspaceID: ws.ID,
		LocalPath:   ws.LocalPath,
		Branch:      ws.Branch,
		Summary:     fmt.Sprintf("Provisioned workspace %s at %s (branch %s)", ws.ID, ws.LocalPath, ws.Branch),
	}, nil
}

// FinalizeRequest is the FINALIZE_WORKSPACE input.
type FinalizeRequest struct {
	WorkspaceID   string `json:"workspaceId"`
	CommitMessage string `json:"commitMessage,omitempty"`
	PRTitle       string `json:"prTitle,omitempty"`
	PRBody        string `json:"prBody,omitempty"`
	Draft         bool   `json:"draft,omitempty"`
}

// FinalizeResult is the FINALIZE_WORKSPACE output.
type FinalizeResult struct {
	CommitSHA string `json:"commitSha,omitempty"`
	PRURL     string `json:"prUrl,omitempty"`
	Summary   string `json:"summary"`
}

// Finalize commits, pushes, and opens a pull request for a workspace.
func (d *Dispatcher) Finalize(ctx context.Context, req FinalizeRequest) (FinalizeResult, error) {
	if d.workspaces == nil {
		return FinalizeResult{}, fmt.Errorf("%w: workspace service", ErrServiceUnavailable)
	}

	result, err := d.workspaces.Finalize(ctx, workspace.FinalizeRequest{
		WorkspaceID:   req.WorkspaceID,
		CommitMessage: req.CommitMessage,
		PRTitle:       req.PRTitle,
		PRBody:        req.PRBody,
		Draft:         req.Draft,
	})
	if err != nil {
		return FinalizeResult{}, err
	}

	return FinalizeResult{
		CommitSHA: result.CommitSHA,
		PRURL:     result.PRURL,
		Summary:   fmt.Sprintf("Finalized workspace %s: %s", req.WorkspaceID, result.PRURL),
	}, nil
}

// TeardownRequest is the TEARDOWN_WORKSPACE input.
type TeardownRequest struct {
	WorkspaceID string `json:"workspaceId"`
}

// TeardownResult is the TEARDOWN_WORKSPACE output.
type TeardownResult struct {
	OK      bool   `json:"ok"`
	Summary string `json:"summary"`
}

// Teardown removes a workspace's directory. Idempotent.
func (d *Dispatcher) Teardown(ctx context.Context, req TeardownRequest) (TeardownResult, error) {
	if d.workspaces == nil {
		return TeardownResult{}, fmt.Errorf("%w: workspace service", ErrServiceUnavailable)
	}
	if err := d.workspaces.Teardown(ctx, req.WorkspaceID); err != nil {
		return TeardownResult{}, err
	}
	return TeardownResult{
		OK:      true,
		Summary: fmt.Sprintf("Tore down workspace %s", req.WorkspaceID),
	}, nil
}
