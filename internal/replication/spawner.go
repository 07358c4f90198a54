package replication

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/moneyclaw/moneyclaw/internal/observability"
	"github.com/moneyclaw/moneyclaw/internal/sandbox"
	"github.com/moneyclaw/moneyclaw/internal/store"
	"github.com/moneyclaw/moneyclaw/internal/walletaddr"
	"github.com/rs/zerolog"
)

// ErrMaxChildrenReached is returned by Spawn when the caller-configured
// concurrent-children bound would be exceeded.
type ErrMaxChildrenReached struct {
	Max int
}

func (e *ErrMaxChildrenReached) Error() string {
	return fmt.Sprintf("max concurrent children (%d) reached", e.Max)
}

// Funder funds a newly spawned child's wallet. Described abstractly in
// spec §4.6 as a capability call outside the replication core.
type Funder interface {
	Fund(ctx context.Context, childAddress string) error
}

// RuntimeStarter starts a child's agent loop inside its sandbox. Also an
// external capability per spec §4.6.
type RuntimeStarter interface {
	Start(ctx context.Context, sandboxID string) error
}

// Spawner drives the child spawn protocol (spec §4.6).
type Spawner struct {
	store   *store.Store
	sandbox sandbox.Capability
	funder  Funder
	runtime RuntimeStarter
	metrics *observability.Metrics
	logger  zerolog.Logger

	maxChildren int
}

// NewSpawner constructs a Spawner. maxChildren bounds concurrent non-cleaned-up
// children (spec §6 ReplicationConfig.MaxChildren); zero means unbounded.
func NewSpawner(s *store.Store, sb sandbox.Capability, funder Funder, runtime RuntimeStarter, maxChildren int, metrics *observability.Metrics, logger zerolog.Logger) *Spawner {
	return &Spawner{store: s, sandbox: sb, funder: funder, runtime: runtime, maxChildren: maxChildren, metrics: metrics, logger: logger}
}

// Spawn executes the full spawn protocol: create sandbox, install deps, run
// the child's init command, validate the reported wallet address, persist
// the child row, fund the wallet, and start its agent loop. Any failure
// before a valid address is obtained triggers a best-effort sandbox delete
// and propagates the *original* error unmodified (spec §4.6 step 4).
func (s *Spawner) Spawn(ctx context.Context, parentAddress, genesisPrompt string, generation int) (*store.Child, error) {
	if s.maxChildren > 0 {
		count, err := s.store.CountChildren()
		if err != nil {
			return nil, fmt.Errorf("count existing children: %w", err)
		}
		if count >= s.maxChildren {
			return nil, &ErrMaxChildrenReached{Max: s.maxChildren}
		}
	}

	sandboxID := uuid.New().String()

	if err := s.sandbox.CreateSandbox(ctx, sandboxID); err != nil {
		// Nothing was persisted; the sandbox itself failed to come up, so
		// there is nothing to clean up either (spec §8 scenario 2).
		s.recordSpawn("failure")
		return nil, fmt.Errorf("create sandbox: %w", err)
	}

	if err := s.installRuntime(ctx, sandboxID); err != nil {
		s.deleteSandboxBestEffort(ctx, sandboxID)
		s.recordSpawn("failure")
		return nil, err
	}

	address, err := s.runInitCommand(ctx, sandboxID)
	if err != nil {
		s.deleteSandboxBestEffort(ctx, sandboxID)
		s.recordSpawn("failure")
		return nil, err
	}

	if !walletaddr.Valid(address) {
		s.deleteSandboxBestEffort(ctx, sandboxID)
		s.recordSpawn("failure")
		return nil, fmt.Errorf("child wallet address invalid: %q", address)
	}

	childID := uuid.New().String()
	child := store.Child{
		ID:            childID,
		Name:          fmt.Sprintf("child-%s", childID[:8]),
		Address:       address,
		SandboxID:     sandboxID,
		GenesisPrompt: genesisPrompt,
		Status:        store.ChildSpawning,
		ParentAddress: parentAddress,
		Generation:    generation,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.store.InsertChild(child); err != nil {
		s.deleteSandboxBestEffort(ctx, sandboxID)
		s.recordSpawn("failure")
		return nil, fmt.Errorf("persist child: %w", err)
	}
	if err := s.store.AppendLifecycleEvent(childID, TransitionSandboxCreated, store.ChildSpawning); err != nil {
		s.logger.Warn().Err(err).Str("child_id", childID).Msg("failed to append sandbox_created lifecycle event")
	}

	// From here the child row exists; later-step failures leave it in
	// `spawning` rather than rolling back, so an operator or a later pass
	// can retry funding/start without re-running the sandbox dance.
	if err := s.fundAndStart(ctx, &child); err != nil {
		s.recordSpawn("failure")
		return &child, err
	}

	s.recordSpawn("success")
	return &child, nil
}

func (s *Spawner) recordSpawn(status string) {
	if s.metrics != nil {
		s.metrics.RecordSpawn(status)
	}
}

func (s *Spawner) installRuntime(ctx context.Context, sandboxID string) error {
	result, err := s.sandbox.Exec(ctx, sandboxID, "sh", "-c", "install-runtime-deps.sh")
	if err != nil {
		return fmt.Errorf("install runtime dependencies: %w", err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("install runtime dependencies: exit code %d: %s", result.ExitCode, result.Stderr)
	}
	return nil
}

func (s *Spawner) runInitCommand(ctx context.Context, sandboxID string) (string, error) {
	result, err := s.sandbox.Exec(ctx, sandboxID, "sh", "-c", "run-init.sh")
	if err != nil {
		return "", fmt.Errorf("run child init command: %w", err)
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("run child init command: exit code %d: %s", result.ExitCode, result.Stderr)
	}
	return parseWalletAddress(result.Stdout), nil
}

// parseWalletAddress extracts an address from a line of the form
// "Wallet: 0x...." in a child's init-command stdout.
func parseWalletAddress(stdout string) string {
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		const prefix = "Wallet:"
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return strings.TrimSpace(stdout)
}

func (s *Spawner) fundAndStart(ctx context.Context, child *store.Child) error {
	if s.funder != nil {
		if err := s.funder.Fund(ctx, child.Address); err != nil {
			return fmt.Errorf("fund child wallet: %w", err)
		}
	}
	if err := s.store.AppendLifecycleEvent(child.ID, TransitionFunded, store.ChildSpawning); err != nil {
		s.logger.Warn().Err(err).Str("child_id", child.ID).Msg("failed to append funded lifecycle event")
	}

	if err := s.store.AppendLifecycleEvent(child.ID, TransitionStarting, store.ChildSpawning); err != nil {
		s.logger.Warn().Err(err).Str("child_id", child.ID).Msg("failed to append starting lifecycle event")
	}
	if s.runtime != nil {
		if err := s.runtime.Start(ctx, child.SandboxID); err != nil {
			return fmt.Errorf("start child agent loop: %w", err)
		}
	}

	if err := s.store.UpdateChildStatus(child.ID, store.ChildHealthy); err != nil {
		return fmt.Errorf("mark child healthy: %w", err)
	}
	if err := s.store.AppendLifecycleEvent(child.ID, TransitionHealthy, store.ChildHealthy); err != nil {
		s.logger.Warn().Err(err).Str("child_id", child.ID).Msg("failed to append healthy lifecycle event")
	}
	child.Status = store.ChildHealthy
	return nil
}

func (s *Spawner) deleteSandboxBestEffort(ctx context.Context, sandboxID string) {
	if err := s.sandbox.DeleteSandbox(ctx, sandboxID); err != nil {
		s.logger.Warn().Err(err).Str("sandbox_id", sandboxID).Msg("failed to delete sandbox after spawn failure")
	}
}
