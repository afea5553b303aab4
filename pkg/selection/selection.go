// Package selection chooses which adapter handles a spawn when the caller does
// not name one. Scoring is a pure function of the metrics snapshot so the
// ranking is reproducible from logged inputs.
package selection

import (
	"conductor/pkg/adapter"
	"conductor/pkg/config"
	"conductor/pkg/logx"
	"conductor/pkg/metrics"
)

// Scoring constants. The cold-start prior keeps unproven adapters competitive
// until volumeWeight saturates at fullConfidenceSpawns observations.
const (
	coldStartScore       = 0.5
	fullConfidenceSpawns = 5.0
	stallPenaltyWeight   = 0.3
	speedPenaltyWeight   = 0.1
	speedCeilingMs       = 300_000.0 // 5 minutes
)

// Score computes the selection score for one adapter from its recorded
// metrics. An adapter with no history scores exactly the cold-start prior.
// The result is always within [0, 1].
func Score(am metrics.AgentMetrics) float64 {
	if am.Spawned == 0 {
		return coldStartScore
	}

	spawned := float64(am.Spawned)
	rawSuccess := float64(am.Completed) / spawned

	// Blend toward the prior until enough spawns accumulate to trust the raw
	// success ratio.
	volumeWeight := spawned / fullConfidenceSpawns
	if volumeWeight > 1 {
		volumeWeight = 1
	}
	successRate := rawSuccess*volumeWeight + coldStartScore*(1-volumeWeight)

	stallPenalty := (float64(am.StallCount) / spawned) * stallPenaltyWeight

	speedRatio := am.AvgCompletionMs / speedCeilingMs
	if speedRatio > 1 {
		speedRatio = 1
	}
	speedPenalty := speedRatio * speedPenaltyWeight

	score := successRate - stallPenalty - speedPenalty
	if score < 0 {
		return 0
	}
	return score
}

// Selector resolves spawn requests without an explicit adapter type.
type Selector struct {
	cfg    config.SelectionConfig
	store  metrics.Store
	logger *logx.Logger
}

// NewSelector creates a selector over the given metrics store.
func NewSelector(cfg config.SelectionConfig, store metrics.Store) *Selector {
	return &Selector{
		cfg:    cfg,
		store:  store,
		logger: logx.NewLogger("selection"),
	}
}

// Fallback returns the configured fixed adapter type.
func (s *Selector) Fallback() adapter.Type {
	return adapter.Type(s.cfg.FixedAgentType)
}

// Select picks an adapter for a spawn with no explicit type. The fixed
// strategy always returns the configured adapter. The ranked strategy scores
// every installed adapter and picks the highest; ties break in favor of the
// earliest registry entry, and with nothing installed the fixed adapter is
// the fallback.
func (s *Selector) Select(installed []adapter.Type) adapter.Type {
	if s.cfg.Strategy != config.StrategyRanked {
		return s.Fallback()
	}
	if len(installed) == 0 {
		s.logger.Warn("Ranked selection found no installed adapters, falling back to %s", s.cfg.FixedAgentType)
		return s.Fallback()
	}

	installedSet := make(map[adapter.Type]bool, len(installed))
	for _, t := range installed {
		installedSet[t] = true
	}

	snapshot := s.store.Snapshot()

	var best adapter.Type
	bestScore := -1.0
	for _, t := range adapter.DefaultOrder() {
		if !installedSet[t] {
			continue
		}
		score := Score(snapshot[t])
		s.logger.Debug("Ranked candidate %s scored %.4f", t, score)
		// Strict greater keeps the first-listed candidate on ties.
		if score > bestScore {
			best = t
			bestScore = score
		}
	}

	s.logger.Info("Ranked selection chose %s (score %.4f)", best, bestScore)
	return best
}
