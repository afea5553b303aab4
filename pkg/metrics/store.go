// Package metrics provides the per-adapter session metrics store. The store is
// an explicitly owned, injectable component: production wires one instance
// (in-memory or SQLite-backed) into the session manager; tests supply isolated
// instances.
package metrics

import (
	"sync"
	"time"

	"conductor/pkg/adapter"
)

// AgentMetrics holds monotonic per-adapter counters. Counters are mutated only
// on session spawn and terminal transitions.
type AgentMetrics struct {
	Spawned         int64   `json:"spawned"`
	Completed       int64   `json:"completed"`
	StallCount      int64   `json:"stallCount"`
	AvgCompletionMs float64 `json:"avgCompletionMs"`
}

// Outcome describes one session's terminal transition.
type Outcome struct {
	// Success is true only for a completed session (not failed/stopped).
	Success bool

	// Stalls is the number of stall episodes the session went through.
	Stalls int64

	// Elapsed is the session's total runtime.
	Elapsed time.Duration
}

// Store records and exposes per-adapter metrics. Implementations must be safe
// for concurrent use: sessions on different adapters terminate concurrently.
type Store interface {
	// RecordSpawn increments the spawned counter for an adapter.
	RecordSpawn(t adapter.Type)

	// RecordTerminal folds a terminal transition into the adapter's counters:
	// completed is incremented (and elapsed folded into the running average)
	// only on success; stall episodes accumulate on every terminal.
	RecordTerminal(t adapter.Type, outcome Outcome)

	// Get returns the metrics for one adapter; ok is false if the adapter has
	// never been recorded.
	Get(t adapter.Type) (AgentMetrics, bool)

	// Snapshot returns a copy of all recorded metrics.
	Snapshot() map[adapter.Type]AgentMetrics
}

// Memory is the in-memory Store implementation.
type Memory struct {
	mu      sync.Mutex
	byAgent map[adapter.Type]AgentMetrics
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{byAgent: make(map[adapter.Type]AgentMetrics)}
}

// RecordSpawn increments the spawned counter for t.
func (m *Memory) RecordSpawn(t adapter.Type) {
	m.mu.Lock()
	defer m.mu.Unlock()

	am := m.byAgent[t]
	am.Spawned++
	m.byAgent[t] = am
}

// RecordTerminal folds outcome into t's counters atomically.
func (m *Memory) RecordTerminal(t adapter.Type, outcome Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	am := m.byAgent[t]
	m.byAgent[t] = fold(am, outcome)
}

// Get returns the metrics recorded for t.
func (m *Memory) Get(t adapter.Type) (AgentMetrics, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	am, ok := m.byAgent[t]
	return am, ok
}

// Snapshot returns a copy of all recorded metrics.
func (m *Memory) Snapshot() map[adapter.Type]AgentMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[adapter.Type]AgentMetrics, len(m.byAgent))
	for t, am := range m.byAgent {
		out[t] = am
	}
	return out
}

// fold applies one terminal outcome to a metrics record. The completion
// average only tracks successful runs; a failed or stopped session says
// nothing about how long this adapter needs to finish work.
func fold(am AgentMetrics, outcome Outcome) AgentMetrics {
	am.StallCount += outcome.Stalls
	if outcome.Success {
		elapsedMs := float64(outcome.Elapsed.Milliseconds())
		am.AvgCompletionMs = (am.AvgCompletionMs*float64(am.Completed) + elapsedMs) / float64(am.Completed+1)
		am.Completed++
	}
	return am
}
