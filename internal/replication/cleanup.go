package replication

import (
	"context"
	"fmt"

	"github.com/moneyclaw/moneyclaw/internal/sandbox"
	"github.com/moneyclaw/moneyclaw/internal/store"
	"github.com/rs/zerolog"
)

// Cleaner deletes sandboxes and transitions children to cleaned_up on
// success (spec §4.6: "Cleanup").
type Cleaner struct {
	store   *store.Store
	sandbox sandbox.Capability
	logger  zerolog.Logger
}

func NewCleaner(s *store.Store, sb sandbox.Capability, logger zerolog.Logger) *Cleaner {
	return &Cleaner{store: s, sandbox: sb, logger: logger}
}

// Cleanup attempts to delete childID's sandbox. Only on success does the
// child transition to cleaned_up; on failure the child keeps its prior
// state so a later retry remains possible (spec §8 scenario 3).
func (c *Cleaner) Cleanup(ctx context.Context, childID string) error {
	child, err := c.store.GetChild(childID)
	if err != nil {
		return fmt.Errorf("load child %q: %w", childID, err)
	}

	if err := c.sandbox.DeleteSandbox(ctx, child.SandboxID); err != nil {
		c.logger.Warn().Err(err).Str("child_id", childID).Str("sandbox_id", child.SandboxID).Msg("sandbox deletion failed, child state unchanged")
		return fmt.Errorf("delete sandbox %q: %w", child.SandboxID, err)
	}

	if err := c.store.UpdateChildStatus(childID, store.ChildCleanedUp); err != nil {
		return fmt.Errorf("mark child %q cleaned up: %w", childID, err)
	}
	if err := c.store.AppendLifecycleEvent(childID, TransitionCleanedUp, store.ChildCleanedUp); err != nil {
		c.logger.Warn().Err(err).Str("child_id", childID).Msg("failed to append cleaned_up lifecycle event")
	}
	return nil
}

// MarkDead transitions a healthy/spawning/stopped child to dead on a
// terminal error, appending the matching lifecycle event.
func (c *Cleaner) MarkDead(childID string) error {
	if err := c.store.UpdateChildStatus(childID, store.ChildDead); err != nil {
		return fmt.Errorf("mark child %q dead: %w", childID, err)
	}
	return c.store.AppendLifecycleEvent(childID, TransitionDead, store.ChildDead)
}
