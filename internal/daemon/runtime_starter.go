package daemon

import (
	"context"
	"fmt"

	"github.com/moneyclaw/moneyclaw/internal/sandbox"
)

// sandboxRuntimeStarter implements replication.RuntimeStarter by launching
// the child's own moneyclawd binary in the background inside its sandbox,
// the runtime half of the spawn protocol (spec §4.6) that sits alongside
// the install/init steps Spawner already drives through the same
// sandbox.Capability.
type sandboxRuntimeStarter struct {
	sandbox sandbox.Capability
}

func newSandboxRuntimeStarter(sb sandbox.Capability) *sandboxRuntimeStarter {
	return &sandboxRuntimeStarter{sandbox: sb}
}

func (r *sandboxRuntimeStarter) Start(ctx context.Context, sandboxID string) error {
	result, err := r.sandbox.Exec(ctx, sandboxID, "sh", "-c", "nohup moneyclawd --run >moneyclaw.log 2>&1 & echo $!")
	if err != nil {
		return fmt.Errorf("start child runtime: %w", err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("start child runtime: exit code %d: %s", result.ExitCode, result.Stderr)
	}
	return nil
}
