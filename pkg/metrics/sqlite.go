package metrics

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // sqlite driver

	"conductor/pkg/adapter"
	"conductor/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS agent_metrics (
	adapter_type      TEXT PRIMARY KEY,
	spawned           INTEGER NOT NULL DEFAULT 0,
	completed         INTEGER NOT NULL DEFAULT 0,
	stall_count       INTEGER NOT NULL DEFAULT 0,
	avg_completion_ms REAL    NOT NULL DEFAULT 0
);`

// SQLite is a Store that persists counters across restarts. Counters are held
// in memory and written through on every mutation; the file is only read once
// at open.
type SQLite struct {
	mu      sync.Mutex
	db      *sql.DB
	byAgent map[adapter.Type]AgentMetrics
	logger  *logx.Logger
}

// OpenSQLite opens (or creates) a persisted metrics store at path.
func OpenSQLite(path string) (*SQLite, error) {
	// modernc.org/sqlite takes pragmas as _pragma=name(value) DSN params.
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping metrics database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize metrics schema: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLite{
		db:      db,
		byAgent: make(map[adapter.Type]AgentMetrics),
		logger:  logx.NewLogger("metrics"),
	}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.logger.Info("Metrics store opened: %s (%d adapters)", path, len(s.byAgent))
	return s, nil
}

func (s *SQLite) load() error {
	rows, err := s.db.Query(
		`SELECT adapter_type, spawned, completed, stall_count, avg_completion_ms FROM agent_metrics`)
	if err != nil {
		return fmt.Errorf("failed to load metrics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var t string
		var am AgentMetrics
		if err := rows.Scan(&t, &am.Spawned, &am.Completed, &am.StallCount, &am.AvgCompletionMs); err != nil {
			return fmt.Errorf("failed to scan metrics row: %w", err)
		}
		s.byAgent[adapter.Type(t)] = am
	}
	return rows.Err()
}

// persist writes one adapter's counters through to disk. Called with s.mu held.
func (s *SQLite) persist(t adapter.Type, am AgentMetrics) {
	_, err := s.db.Exec(`
		INSERT INTO agent_metrics (adapter_type, spawned, completed, stall_count, avg_completion_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(adapter_type) DO UPDATE SET
			spawned = excluded.spawned,
			completed = excluded.completed,
			stall_count = excluded.stall_count,
			avg_completion_ms = excluded.avg_completion_ms`,
		string(t), am.Spawned, am.Completed, am.StallCount, am.AvgCompletionMs)
	if err != nil {
		// A failed write-through loses durability, not correctness: the
		// in-memory counters stay authoritative for this process.
		s.logger.Warn("Failed to persist metrics for %s: %v", t, err)
	}
}

// RecordSpawn increments the spawned counter for t.
func (s *SQLite) RecordSpawn(t adapter.Type) {
	s.mu.Lock()
	defer s.mu.Unlock()

	am := s.byAgent[t]
	am.Spawned++
	s.byAgent[t] = am
	s.persist(t, am)
}

// RecordTerminal folds outcome into t's counters and writes through.
func (s *SQLite) RecordTerminal(t adapter.Type, outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	am := fold(s.byAgent[t], outcome)
	s.byAgent[t] = am
	s.persist(t, am)
}

// Get returns the metrics recorded for t.
func (s *SQLite) Get(t adapter.Type) (AgentMetrics, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	am, ok := s.byAgent[t]
	return am, ok
}

// Snapshot returns a copy of all recorded metrics.
func (s *SQLite) Snapshot() map[adapter.Type]AgentMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[adapter.Type]AgentMetrics, len(s.byAgent))
	for t, am := range s.byAgent {
		out[t] = am
	}
	return out
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Interface check.
var _ Store = (*SQLite)(nil)
