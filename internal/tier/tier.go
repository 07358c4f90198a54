// Package tier implements the survival tier governor: a pure mapping from
// observed runtime health (credit balance, recent error rate, topup state)
// to a coarse operating tier that the inference router and agent loop use
// to restrict spend.
package tier

import "github.com/moneyclaw/moneyclaw/internal/config"

// Tier is the runtime's current survival classification.
type Tier string

const (
	High       Tier = "high"
	Normal     Tier = "normal"
	LowCompute Tier = "low_compute"
	Critical   Tier = "critical"
	Dead       Tier = "dead"
)

// Signals are the observable inputs to Classify.
type Signals struct {
	Credits           float64
	ErrorsPerHour     float64
	RecentTopupFailed bool
	TopupImpossible   bool
}

// Classify maps Signals to a Tier under the given thresholds. It is pure:
// same inputs always produce the same tier, and the result never mutates
// any collaborator. Callers observe recovery (e.g. critical -> normal)
// simply by calling Classify again after credits rise; the function itself
// has no memory of the previous tier.
func Classify(s Signals, t config.TierThresholds) Tier {
	if s.Credits < t.Critical && s.TopupImpossible {
		return Dead
	}
	if s.Credits >= t.High && s.ErrorsPerHour < t.ErrorRateHigh {
		return High
	}
	if s.Credits >= t.Normal {
		return Normal
	}
	if s.Credits >= t.LowCompute || s.RecentTopupFailed {
		return LowCompute
	}
	// Credits below LowCompute (and at or above Critical, or below Critical
	// with topup still possible) run restricted rather than terminating;
	// only a confirmed-impossible topup below Critical is fatal, above.
	return Critical
}

// CanRunInference reports whether the tier permits any inference call at
// all. Every tier but Dead can still run inference, possibly restricted.
func CanRunInference(t Tier) bool {
	return t != Dead
}

// GetModelForTier returns defaultModel for High/Normal and the configured
// cheap model for LowCompute/Critical/Dead.
func GetModelForTier(t Tier, defaultModel, cheapModel string) string {
	switch t {
	case High, Normal:
		return defaultModel
	default:
		return cheapModel
	}
}

// SuspendsOptionalWork reports whether the tier forces the agent loop to
// skip optional heartbeat side-effects: discovery refresh and replication.
func SuspendsOptionalWork(t Tier) bool {
	return t == LowCompute || t == Critical || t == Dead
}

// ReducesMaxTokens reports whether the tier forces a reduced max-output-token
// budget on inference calls.
func ReducesMaxTokens(t Tier) bool {
	return t == Critical || t == Dead
}

// rank orders tiers from least to most capable, for comparing a registry
// row's minimum tier against the runtime's current tier.
var rank = map[Tier]int{
	Dead:       0,
	Critical:   1,
	LowCompute: 2,
	Normal:     3,
	High:       4,
}

// Meets reports whether current is at least as capable as minimum, i.e.
// a registry row requiring minimum may run under current.
func Meets(current, minimum Tier) bool {
	return rank[current] >= rank[minimum]
}
