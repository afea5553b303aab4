package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"conductor/pkg/adapter"
)

// PromMirror wraps a Store and mirrors every mutation into Prometheus
// collectors, labeled by adapter. The wrapped store stays the source of truth
// for selection scoring; the collectors exist for external observability.
type PromMirror struct {
	inner Store

	spawnedTotal   *prometheus.CounterVec
	completedTotal *prometheus.CounterVec
	stallsTotal    *prometheus.CounterVec
	duration       *prometheus.HistogramVec
}

// NewPromMirror wraps inner, registering collectors with reg. Pass
// prometheus.DefaultRegisterer in production; tests use isolated registries.
func NewPromMirror(inner Store, reg prometheus.Registerer) *PromMirror {
	factory := promauto.With(reg)

	return &PromMirror{
		inner: inner,
		spawnedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_sessions_spawned_total",
				Help: "Total coding-agent sessions spawned, by adapter",
			},
			[]string{"adapter"},
		),
		completedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_sessions_completed_total",
				Help: "Total coding-agent sessions completed successfully, by adapter",
			},
			[]string{"adapter"},
		),
		stallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_session_stalls_total",
				Help: "Total stall episodes observed across sessions, by adapter",
			},
			[]string{"adapter"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_session_duration_seconds",
				Help:    "Duration of terminated coding-agent sessions in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~68m
			},
			[]string{"adapter"},
		),
	}
}

// RecordSpawn mirrors the spawn into both the store and the counter.
func (p *PromMirror) RecordSpawn(t adapter.Type) {
	p.inner.RecordSpawn(t)
	p.spawnedTotal.WithLabelValues(string(t)).Inc()
}

// RecordTerminal mirrors the terminal transition.
func (p *PromMirror) RecordTerminal(t adapter.Type, outcome Outcome) {
	p.inner.RecordTerminal(t, outcome)

	label := string(t)
	if outcome.Success {
		p.completedTotal.WithLabelValues(label).Inc()
	}
	if outcome.Stalls > 0 {
		p.stallsTotal.WithLabelValues(label).Add(float64(outcome.Stalls))
	}
	p.duration.WithLabelValues(label).Observe(outcome.Elapsed.Seconds())
}

// Get delegates to the wrapped store.
func (p *PromMirror) Get(t adapter.Type) (AgentMetrics, bool) {
	return p.inner.Get(t)
}

// Snapshot delegates to the wrapped store.
func (p *PromMirror) Snapshot() map[adapter.Type]AgentMetrics {
	return p.inner.Snapshot()
}

var _ Store = (*PromMirror)(nil)
