package replication

import (
	"context"
	"fmt"

	"github.com/moneyclaw/moneyclaw/internal/observability"
	"github.com/moneyclaw/moneyclaw/internal/store"
	"github.com/rs/zerolog"
)

// childStatuses enumerates every lifecycle status SetChildrenByStatus
// reports on, so a status that drops to zero after a prune pass still gets
// its gauge reset instead of showing a stale count.
var childStatuses = []store.ChildStatus{
	store.ChildSpawning, store.ChildHealthy, store.ChildStopped, store.ChildDead, store.ChildCleanedUp,
}

// Pruner removes the oldest dead children beyond a keep-last bound (spec
// §4.6: "Pruning").
type Pruner struct {
	store   *store.Store
	cleaner *Cleaner
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewPruner(s *store.Store, cleaner *Cleaner, metrics *observability.Metrics, logger zerolog.Logger) *Pruner {
	return &Pruner{store: s, cleaner: cleaner, metrics: metrics, logger: logger}
}

// PruneDeadChildren lists children in `dead` status oldest-first (ties
// broken by id ascending, per ListChildrenByStatus's ordering) and calls
// Cleanup on all but the most recent keepLast, in that order. Returns the
// number successfully removed; a failed cleanup just leaves that child
// dead for a later pass to retry and isn't counted.
func (p *Pruner) PruneDeadChildren(ctx context.Context, keepLast int) (int, error) {
	dead, err := p.store.ListChildrenByStatus(store.ChildDead)
	if err != nil {
		return 0, fmt.Errorf("list dead children: %w", err)
	}

	if keepLast < 0 {
		keepLast = 0
	}
	if len(dead) <= keepLast {
		return 0, nil
	}

	toPrune := dead[:len(dead)-keepLast]
	pruned := 0
	for _, child := range toPrune {
		if err := p.cleaner.Cleanup(ctx, child.ID); err != nil {
			p.logger.Warn().Err(err).Str("child_id", child.ID).Msg("failed to clean up dead child during prune")
			continue
		}
		pruned++
	}

	if p.metrics != nil {
		p.metrics.RecordPrune(pruned)
		p.refreshChildGauges()
	}
	return pruned, nil
}

// refreshChildGauges recomputes the children-by-status gauges after a prune
// pass changes the population.
func (p *Pruner) refreshChildGauges() {
	for _, status := range childStatuses {
		children, err := p.store.ListChildrenByStatus(status)
		if err != nil {
			p.logger.Warn().Err(err).Str("status", string(status)).Msg("failed to refresh children-by-status gauge")
			continue
		}
		p.metrics.SetChildrenByStatus(string(status), len(children))
	}
}
