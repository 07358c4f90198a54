package tier

import (
	"errors"
	"fmt"

	"github.com/moneyclaw/moneyclaw/internal/config"
	"github.com/moneyclaw/moneyclaw/internal/observability"
	"github.com/moneyclaw/moneyclaw/internal/store"
)

// KVCurrentTier is the KV key holding the tier applied by the last call to
// Governor.Apply.
const KVCurrentTier = "current_tier"

// Governor owns the durable and observable side effects of a tier
// transition: persisting current_tier to KV and updating the tier gauge.
// Classification itself stays in the pure Classify function above so it
// can be tested and reasoned about without a store or metrics collaborator.
type Governor struct {
	store   *store.Store
	metrics *observability.Metrics
}

// NewGovernor constructs a Governor.
func NewGovernor(s *store.Store, m *observability.Metrics) *Governor {
	return &Governor{store: s, metrics: m}
}

// Apply classifies the given signals under thresholds, persists the result
// to KV, and updates the tier gauge. Transitions are monotonic only within
// a single call; across calls the governor may move in either direction,
// including recovering from critical back to normal as credits rise.
func (g *Governor) Apply(s Signals, thresholds config.TierThresholds) (Tier, error) {
	t := Classify(s, thresholds)

	if err := g.store.SetKV(KVCurrentTier, string(t)); err != nil {
		return t, fmt.Errorf("failed to persist current tier: %w", err)
	}
	g.metrics.SetTier(string(t))
	g.metrics.SetCredits(s.Credits)
	g.metrics.SetErrorRate(s.ErrorsPerHour)

	return t, nil
}

// Current returns the most recently applied tier, or Normal if none has
// been recorded yet (the conservative startup default before the first
// heartbeat classification runs).
func (g *Governor) Current() (Tier, error) {
	value, err := g.store.GetKV(KVCurrentTier)
	if err != nil {
		if errors.Is(err, store.ErrKVNotFound) {
			return Normal, nil
		}
		return "", fmt.Errorf("failed to read current tier: %w", err)
	}
	return Tier(value), nil
}
