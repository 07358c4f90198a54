// Package agenttools provides the concrete tooldispatch.Tool implementations
// the agent loop exposes to the model, adapted from pkg/toolexecutor's
// built-in-tool registration pattern (each tool is a small struct closing
// over the capability it wraps, rather than a dispatch-by-string-switch).
package agenttools

import (
	"context"
	"fmt"

	"github.com/moneyclaw/moneyclaw/internal/providers"
	"github.com/moneyclaw/moneyclaw/internal/replication"
)

// ReplicateTool lets the model trigger self-replication (spec §2, §4.6):
// it spawns a new child agent in an isolated sandbox, funded and started by
// the Spawner, and reports back the child's id and address.
type ReplicateTool struct {
	spawner         *replication.Spawner
	parentAddress   string
	childGeneration int
}

// NewReplicateTool builds the tool. parentAddress is this process's own
// wallet address, recorded as the spawned child's lineage anchor.
// childGeneration is the generation number every child spawned directly by
// this process receives; since Identity does not persist an absolute
// generation counter, each running agent labels its own children relative
// to itself (see DESIGN.md), so this is always 1 here, not 1+parent's
// generation.
func NewReplicateTool(spawner *replication.Spawner, parentAddress string) *ReplicateTool {
	return &ReplicateTool{spawner: spawner, parentAddress: parentAddress, childGeneration: 1}
}

func (t *ReplicateTool) Schema() providers.ToolSchema {
	return providers.ToolSchema{
		Name:        "replicate",
		Description: "Spawn a new child agent instance in an isolated sandbox, funded from this agent's own credit balance. Use sparingly: each child competes for the same family resources.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"genesis_prompt": map[string]any{
					"type":        "string",
					"description": "The purpose and initial instructions the child should be given on first boot.",
				},
			},
			"required": []string{"genesis_prompt"},
		},
	}
}

func (t *ReplicateTool) Execute(ctx context.Context, params map[string]any) (string, int, error) {
	genesisPrompt, _ := params["genesis_prompt"].(string)
	if genesisPrompt == "" {
		return "genesis_prompt is required and must be non-empty", 1, nil
	}

	child, err := t.spawner.Spawn(ctx, t.parentAddress, genesisPrompt, t.childGeneration)
	if err != nil {
		return "", 1, fmt.Errorf("replicate failed: %w", err)
	}
	return fmt.Sprintf("spawned child %s (address %s) in sandbox %s", child.ID, child.Address, child.SandboxID), 0, nil
}
