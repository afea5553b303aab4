package selection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"conductor/pkg/adapter"
	"conductor/pkg/config"
	"conductor/pkg/metrics"
)

func TestScoreColdStart(t *testing.T) {
	assert.Equal(t, 0.5, Score(metrics.AgentMetrics{}))
}

func TestScoreBounded(t *testing.T) {
	// Worst case: every spawn stalled and nothing completed, slow average.
	worst := metrics.AgentMetrics{
		Spawned:         100,
		Completed:       0,
		StallCount:      500,
		AvgCompletionMs: 10_000_000,
	}
	assert.Equal(t, 0.0, Score(worst))

	// Best case: perfect record, instant completions.
	best := metrics.AgentMetrics{
		Spawned:   100,
		Completed: 100,
	}
	assert.InDelta(t, 1.0, Score(best), 1e-9)

	for _, am := range []metrics.AgentMetrics{
		{Spawned: 1},
		{Spawned: 3, Completed: 1, StallCount: 2, AvgCompletionMs: 60_000},
		{Spawned: 50, Completed: 49, StallCount: 3, AvgCompletionMs: 200_000},
	} {
		score := Score(am)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestScoreMonotonicInCompletions(t *testing.T) {
	base := metrics.AgentMetrics{Spawned: 10, Completed: 3}
	better := metrics.AgentMetrics{Spawned: 10, Completed: 7}
	assert.Greater(t, Score(better), Score(base))
}

func TestScoreVolumeBlendsTowardPrior(t *testing.T) {
	// One spawn, one completion: volumeWeight 0.2 pulls the perfect ratio
	// toward the prior rather than granting a full 1.0.
	am := metrics.AgentMetrics{Spawned: 1, Completed: 1}
	assert.InDelta(t, 1.0*0.2+0.5*0.8, Score(am), 1e-9)

	// One spawn, zero completions likewise stays near the prior.
	assert.InDelta(t, 0.5*0.8, Score(metrics.AgentMetrics{Spawned: 1}), 1e-9)
}

func TestScoreStallPenalty(t *testing.T) {
	clean := metrics.AgentMetrics{Spawned: 10, Completed: 10}
	stally := metrics.AgentMetrics{Spawned: 10, Completed: 10, StallCount: 10}
	assert.InDelta(t, stallPenaltyWeight, Score(clean)-Score(stally), 1e-9)
}

func TestScoreSpeedPenaltyCapped(t *testing.T) {
	slow := metrics.AgentMetrics{Spawned: 10, Completed: 10, AvgCompletionMs: 300_000}
	slower := metrics.AgentMetrics{Spawned: 10, Completed: 10, AvgCompletionMs: 9_000_000}
	assert.Equal(t, Score(slow), Score(slower), "speed penalty saturates at the ceiling")
	assert.InDelta(t, 1.0-speedPenaltyWeight, Score(slow), 1e-9)
}

func newSelector(t *testing.T, strategy string, store metrics.Store) *Selector {
	t.Helper()
	if store == nil {
		store = metrics.NewMemory()
	}
	return NewSelector(config.SelectionConfig{
		Strategy:       strategy,
		FixedAgentType: "claude",
	}, store)
}

func TestFixedStrategyIgnoresMetrics(t *testing.T) {
	store := metrics.NewMemory()
	// Give codex a dominant record; fixed must not care.
	for i := 0; i < 20; i++ {
		store.RecordSpawn(adapter.TypeCodex)
		store.RecordTerminal(adapter.TypeCodex, metrics.Outcome{Success: true, Elapsed: time.Second})
	}

	sel := newSelector(t, config.StrategyFixed, store)
	got := sel.Select([]adapter.Type{adapter.TypeCodex, adapter.TypeClaude})
	assert.Equal(t, adapter.TypeClaude, got)
}

func TestRankedPicksHighestScore(t *testing.T) {
	store := metrics.NewMemory()
	// Codex: strong record. Claude: weak record.
	for i := 0; i < 10; i++ {
		store.RecordSpawn(adapter.TypeCodex)
		store.RecordTerminal(adapter.TypeCodex, metrics.Outcome{Success: true, Elapsed: time.Second})

		store.RecordSpawn(adapter.TypeClaude)
		store.RecordTerminal(adapter.TypeClaude, metrics.Outcome{Success: false, Stalls: 2})
	}

	sel := newSelector(t, config.StrategyRanked, store)
	got := sel.Select([]adapter.Type{adapter.TypeClaude, adapter.TypeCodex})
	assert.Equal(t, adapter.TypeCodex, got)
}

func TestRankedNeverPicksUninstalled(t *testing.T) {
	store := metrics.NewMemory()
	for i := 0; i < 10; i++ {
		store.RecordSpawn(adapter.TypeCodex)
		store.RecordTerminal(adapter.TypeCodex, metrics.Outcome{Success: true, Elapsed: time.Second})
	}

	sel := newSelector(t, config.StrategyRanked, store)
	got := sel.Select([]adapter.Type{adapter.TypeShell})
	assert.Equal(t, adapter.TypeShell, got, "codex scores highest but is not installed")
}

func TestRankedTieBreaksByRegistryOrder(t *testing.T) {
	// No history at all: every candidate scores the cold-start prior, so the
	// earliest registered installed adapter wins.
	sel := newSelector(t, config.StrategyRanked, nil)
	got := sel.Select([]adapter.Type{adapter.TypeShell, adapter.TypeGemini, adapter.TypeCodex})
	assert.Equal(t, adapter.TypeCodex, got)
}

func TestRankedNoInstalledFallsBackToFixed(t *testing.T) {
	sel := newSelector(t, config.StrategyRanked, nil)
	assert.Equal(t, adapter.TypeClaude, sel.Select(nil))
}
