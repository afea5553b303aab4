package session

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"conductor/pkg/adapter"
	"conductor/pkg/config"
	"conductor/pkg/logx"
	"conductor/pkg/metrics"
)

// WorkspaceGate answers whether a directory is a ready workspace. The
// workspace service implements it; tests substitute a fake.
type WorkspaceGate interface {
	ReadyPath(path string) bool
}

// InstallChecker is the preflight surface the manager needs.
type InstallChecker interface {
	CheckInstalled(ctx context.Context, t adapter.Type) adapter.PreflightResult
	InstalledTypes(ctx context.Context) []adapter.Type
}

// AgentSelector resolves an adapter type when the caller names none.
type AgentSelector interface {
	Select(installed []adapter.Type) adapter.Type
}

// SpawnRequest describes a session to start.
type SpawnRequest struct {
	// AgentType, when empty, is resolved through the selector.
	AgentType adapter.Type

	// Workdir must be the local path of a ready workspace.
	Workdir string

	// WorkspaceID, when known, is recorded on the session for later finalize.
	WorkspaceID string

	// Task is the instruction handed to the adapter at launch.
	Task string
}

// record is the live state behind one session id. Its mutex serializes
// operations on this session only; different sessions never contend.
type record struct {
	mu          sync.Mutex
	s           Session
	handle      Handle
	spec        adapter.Spec
	stalls      int64
	stopping    bool
	finished    bool
	monitorStop chan struct{}
}

// Manager owns the session registry.
type Manager struct {
	cfg       config.SessionConfig
	selector  AgentSelector
	preflight InstallChecker
	gate      WorkspaceGate
	store     metrics.Store
	launcher  Launcher
	logger    *logx.Logger

	mu       sync.Mutex
	sessions map[string]*record
	order    []string // insertion order, for listing and eviction
}

// NewManager wires a session manager from its collaborators.
func NewManager(
	cfg config.SessionConfig,
	selector AgentSelector,
	preflight InstallChecker,
	gate WorkspaceGate,
	store metrics.Store,
	launcher Launcher,
) *Manager {
	return &Manager{
		cfg:       cfg,
		selector:  selector,
		preflight: preflight,
		gate:      gate,
		store:     store,
		launcher:  launcher,
		logger:    logx.NewLogger("session"),
		sessions:  make(map[string]*record),
	}
}

// Spawn validates the request, starts the adapter process, and registers the
// session. No session is registered and no metrics move when validation
// fails.
func (m *Manager) Spawn(ctx context.Context, req SpawnRequest) (Session, error) {
	agentType := req.AgentType
	if agentType == "" {
		agentType = m.selector.Select(m.preflight.InstalledTypes(ctx))
	}
	spec, err := adapter.Lookup(agentType)
	if err != nil {
		return Session{}, err
	}

	if info, statErr := os.Stat(req.Workdir); statErr != nil || !info.IsDir() {
		return Session{}, fmt.Errorf("%w: %s does not exist", ErrWorkdirInvalid, req.Workdir)
	}
	if !m.gate.ReadyPath(req.Workdir) {
		return Session{}, fmt.Errorf("%w: %s is not a ready workspace", ErrWorkdirInvalid, req.Workdir)
	}

	check := m.preflight.CheckInstalled(ctx, agentType)
	if !check.Installed {
		return Session{}, fmt.Errorf("%w: %s (install with: %s)",
			ErrAdapterNotInstalled, agentType, check.InstallCommand)
	}

	now := time.Now()
	rec := &record{
		s: Session{
			ID:           uuid.New().String(),
			AdapterType:  agentType,
			Workdir:      req.Workdir,
			WorkspaceID:  req.WorkspaceID,
			Task:         req.Task,
			Status:       StatusSpawning,
			StartedAt:    now,
			LastOutputAt: now,
		},
		spec:        spec,
		monitorStop: make(chan struct{}),
	}

	m.register(rec)
	m.store.RecordSpawn(agentType)
	m.logger.Info("Spawning %s session %s in %s", agentType, rec.s.ID, req.Workdir)

	handle, err := m.launcher.Launch(ctx, spec, req.Workdir, req.Task)
	if err != nil {
		m.finish(rec, StatusFailed, fmt.Sprintf("launch failed: %v", err))
		return Session{}, fmt.Errorf("failed to launch %s: %w", agentType, err)
	}

	rec.mu.Lock()
	if rec.finished {
		// Stopped (or stop-all) raced the launch.
		rec.mu.Unlock()
		_ = handle.Kill()
		return Session{}, fmt.Errorf("session %s stopped during spawn", rec.s.ID)
	}
	rec.handle = handle
	rec.s.Status = StatusRunning
	snapshot := rec.s
	rec.mu.Unlock()

	go m.pump(rec)
	go m.monitorStall(rec)

	return snapshot, nil
}

// register adds rec to the registry and evicts the oldest terminal sessions
// beyond the history cap. Live sessions are never evicted.
func (m *Manager) register(rec *record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[rec.s.ID] = rec
	m.order = append(m.order, rec.s.ID)

	for len(m.sessions) > m.cfg.HistoryCap {
		evicted := false
		for i, id := range m.order {
			r := m.sessions[id]
			r.mu.Lock()
			terminal := r.s.Status.Terminal()
			r.mu.Unlock()
			if terminal {
				delete(m.sessions, id)
				m.order = append(m.order[:i], m.order[i+1:]...)
				m.logger.Debug("Evicted terminal session %s from history", id)
				evicted = true
				break
			}
		}
		if !evicted {
			break
		}
	}
}

// pump consumes process output until exit and drives completion. A panic in
// output handling degrades only this session to failed.
func (m *Manager) pump(rec *record) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Output handling panic on session %s: %v", rec.s.ID, r)
			_ = rec.handle.Kill()
			m.finish(rec, StatusFailed, fmt.Sprintf("output handling panic: %v", r))
		}
	}()

	for chunk := range rec.handle.Output() {
		m.handleOutput(rec, chunk)
	}

	<-rec.handle.Done()
	code := rec.handle.ExitCode()

	rec.mu.Lock()
	stopping := rec.stopping
	rec.mu.Unlock()

	switch {
	case stopping:
		m.finish(rec, StatusStopped, "")
	case code == 0:
		m.finish(rec, StatusCompleted, "")
	default:
		m.finish(rec, StatusFailed, fmt.Sprintf("process exited with code %d", code))
	}
}

// handleOutput folds one output chunk into the session: activity bookkeeping,
// transcript tail, stall recovery, and sentinel completion.
func (m *Manager) handleOutput(rec *record, chunk []byte) {
	rec.mu.Lock()

	rec.s.LastOutputAt = time.Now()
	if rec.s.Status == StatusStalled {
		rec.s.Status = StatusRunning
		m.logger.Info("Session %s resumed after stall", rec.s.ID)
	}

	rec.s.Transcript += string(chunk)
	if over := len(rec.s.Transcript) - m.cfg.TranscriptTailBytes; over > 0 {
		rec.s.Transcript = rec.s.Transcript[over:]
	}

	sentinel := rec.spec.CompletionText
	completed := sentinel != "" && strings.Contains(rec.s.Transcript, sentinel)
	rec.mu.Unlock()

	if completed {
		m.logger.Info("Session %s reported completion, terminating lingering process", rec.s.ID)
		m.finish(rec, StatusCompleted, "")
		_ = rec.handle.Terminate()
	}
}

// monitorStall flags the session stalled after a quiet window with no output.
// Each episode increments the stall count exactly once; new output flips the
// session back to running.
func (m *Manager) monitorStall(rec *record) {
	interval := m.cfg.StallTimeout / 4
	if interval > time.Second {
		interval = time.Second
	}
	if interval < 5*time.Millisecond {
		interval = 5 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rec.monitorStop:
			return
		case <-ticker.C:
			rec.mu.Lock()
			if rec.s.Status == StatusRunning && time.Since(rec.s.LastOutputAt) > m.cfg.StallTimeout {
				rec.s.Status = StatusStalled
				rec.stalls++
				rec.s.StallCount = rec.stalls
				m.logger.Warn("Session %s stalled (no output for %s)", rec.s.ID, m.cfg.StallTimeout)
			}
			rec.mu.Unlock()
		}
	}
}

// finish applies the terminal transition once: status, timestamps, monitor
// shutdown, and the atomic metrics update.
func (m *Manager) finish(rec *record, status Status, errText string) {
	rec.mu.Lock()
	if rec.finished {
		rec.mu.Unlock()
		return
	}
	rec.finished = true
	rec.s.Status = status
	now := time.Now()
	rec.s.CompletedAt = &now
	if errText != "" {
		rec.s.Error = errText
	}
	stalls := rec.stalls
	elapsed := now.Sub(rec.s.StartedAt)
	agentType := rec.s.AdapterType
	close(rec.monitorStop)
	rec.mu.Unlock()

	m.store.RecordTerminal(agentType, metrics.Outcome{
		Success: status == StatusCompleted,
		Stalls:  stalls,
		Elapsed: elapsed,
	})
	m.logger.Info("Session %s terminal: %s after %s (%d stalls)", rec.s.ID, status, elapsed.Round(time.Millisecond), stalls)
}

// Send writes input to the session's terminal. Fire-and-forget: it does not
// wait for the process to react. Sending to a stalled session is allowed and
// counts as activity.
func (m *Manager) Send(id string, input string) error {
	rec := m.lookup(id)
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	rec.mu.Lock()
	if rec.s.Status.Terminal() {
		rec.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrSessionNotFound, id, rec.s.Status)
	}
	if rec.handle == nil {
		// Still spawning: the process has no terminal to write to yet.
		rec.mu.Unlock()
		return fmt.Errorf("%w: %s is still spawning", ErrSessionNotFound, id)
	}
	handle := rec.handle
	rec.s.LastOutputAt = time.Now()
	if rec.s.Status == StatusStalled {
		rec.s.Status = StatusRunning
	}
	rec.mu.Unlock()

	if err := handle.Write([]byte(input)); err != nil {
		return fmt.Errorf("failed to write to session %s: %w", id, err)
	}
	return nil
}

// SendKeys encodes named keys (enter, ctrl-c, arrows, ...) and writes the
// resulting sequence to the session's terminal in one write.
func (m *Manager) SendKeys(id string, keys []string) error {
	input, err := EncodeKeys(keys)
	if err != nil {
		return err
	}
	return m.Send(id, input)
}

// List returns a snapshot of every retained session in spawn order.
func (m *Manager) List() []Session {
	m.mu.Lock()
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	m.mu.Unlock()

	out := make([]Session, 0, len(ids))
	for _, id := range ids {
		if rec := m.lookup(id); rec != nil {
			rec.mu.Lock()
			out = append(out, rec.s)
			rec.mu.Unlock()
		}
	}
	return out
}

// Get returns one session snapshot.
func (m *Manager) Get(id string) (Session, bool) {
	rec := m.lookup(id)
	if rec == nil {
		return Session{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.s, true
}

// Stop terminates one session: termination signal, bounded grace, forced
// kill. Stopping an unknown or already-terminal session is a no-op. The
// returned bool says whether this call stopped a live session.
func (m *Manager) Stop(id string) bool {
	rec := m.lookup(id)
	if rec == nil {
		return false
	}

	rec.mu.Lock()
	if rec.s.Status.Terminal() || rec.stopping {
		rec.mu.Unlock()
		return false
	}
	rec.stopping = true
	handle := rec.handle
	rec.mu.Unlock()

	if handle == nil {
		m.finish(rec, StatusStopped, "")
		return true
	}

	m.logger.Info("Stopping session %s", id)
	_ = handle.Terminate()

	select {
	case <-handle.Done():
	case <-time.After(m.cfg.KillGrace):
		m.logger.Warn("Session %s ignored termination, killing", id)
		_ = handle.Kill()
		select {
		case <-handle.Done():
		case <-time.After(m.cfg.KillGrace):
			// The pump finishes the record when the process finally reaps.
		}
	}

	m.finish(rec, StatusStopped, "")
	return true
}

// StopAll stops every live session concurrently and returns the ids this call
// stopped. A repeat call returns an empty list.
func (m *Manager) StopAll() []string {
	m.mu.Lock()
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	m.mu.Unlock()

	var (
		wg      sync.WaitGroup
		stopMu  sync.Mutex
		stopped []string
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if m.Stop(id) {
				stopMu.Lock()
				stopped = append(stopped, id)
				stopMu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	return stopped
}

func (m *Manager) lookup(id string) *record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

