package agentloop

import (
	"fmt"
	"strings"

	"github.com/moneyclaw/moneyclaw/internal/providers"
	"github.com/moneyclaw/moneyclaw/internal/store"
)

// maxRecentTurnsInPrompt bounds how much turn history is folded into the
// prompt; older turns still live in the store and remain queryable, they
// just stop being repeated on every inference call.
const maxRecentTurnsInPrompt = 10

// composePrompt builds the system prompt and message history for one turn.
// The genesis prompt plus this iteration's heartbeat output (if any) become
// the system prompt router.Chat sends separately from the conversation;
// recent turns are replayed as the conversation itself (spec §4.2 step 5).
func composePrompt(genesisPrompt string, recentTurns []store.Turn, heartbeatOutput string) (systemPrompt string, messages []providers.Message) {
	var sysBuilder strings.Builder
	sysBuilder.WriteString(genesisPrompt)
	if heartbeatOutput != "" {
		sysBuilder.WriteString("\n\n# Heartbeat\n\n")
		sysBuilder.WriteString(heartbeatOutput)
	}

	// RecentTurns is already oldest-first.
	for _, t := range recentTurns {
		messages = append(messages, providers.Message{
			Role:    "assistant",
			Content: summarizeTurn(t),
		})
	}
	messages = append(messages, providers.Message{
		Role:    "user",
		Content: "Proceed with the next iteration.",
	})

	return sysBuilder.String(), messages
}

func summarizeTurn(t store.Turn) string {
	if t.Status == store.TurnFailed {
		return fmt.Sprintf("[turn %d failed: %s]", t.Index, t.ErrorText)
	}
	return fmt.Sprintf("[turn %d completed, model %s]", t.Index, t.ModelID)
}
