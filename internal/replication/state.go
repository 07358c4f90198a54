// Package replication implements the replication subsystem (spec §4.6):
// spawning child automata into sandboxes, driving their lifecycle state
// machine, cleaning up on exit, and pruning old dead children.
package replication

import "github.com/moneyclaw/moneyclaw/internal/store"

// Transition names appended to a child's lifecycle log. These double as
// the "transition" column value and, except for dead/cleaned_up, match the
// resulting ChildStatus.
const (
	TransitionSandboxCreated = "sandbox_created"
	TransitionRuntimeReady   = "runtime_ready"
	TransitionWalletVerified = "wallet_verified"
	TransitionFunded         = "funded"
	TransitionStarting       = "starting"
	TransitionHealthy        = "healthy"
	TransitionStopped        = "stopped"
	TransitionDead           = "dead"
	TransitionCleanedUp      = "cleaned_up"
)

// forward holds, for each status, the single status that may follow it
// along the happy path (spec §4.6's linear chain). dead and cleaned_up are
// handled separately since dead is reachable from any running state and
// cleaned_up only from stopped or dead.
var forward = map[store.ChildStatus]store.ChildStatus{
	store.ChildSpawning: store.ChildHealthy,
	store.ChildHealthy:  store.ChildStopped,
}

// CanTransition reports whether moving a child from `from` to `to` is a
// legal step of the lifecycle state machine: the linear happy path,
// dead-from-any-running-state, or cleaned_up-from-stopped-or-dead.
func CanTransition(from, to store.ChildStatus) bool {
	if to == store.ChildDead {
		return from != store.ChildCleanedUp && from != store.ChildDead
	}
	if to == store.ChildCleanedUp {
		return from == store.ChildStopped || from == store.ChildDead
	}
	return forward[from] == to
}
