package tooldispatch

import (
	"context"
	"time"

	"github.com/moneyclaw/moneyclaw/internal/providers"
	"github.com/moneyclaw/moneyclaw/internal/store"
	"github.com/rs/zerolog"
)

// Dispatcher validates and runs the tool calls a model requested, in the
// order the model declared them (spec §4.2 step 7, §5 ordering guarantee).
type Dispatcher struct {
	registry *Registry
	logger   zerolog.Logger
}

func NewDispatcher(registry *Registry, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, logger: logger}
}

// Schemas exposes the underlying registry's tool schemas, the shape the
// agent loop passes to router.ChatOptions.Tools.
func (d *Dispatcher) Schemas() []providers.ToolSchema {
	return d.registry.Schemas()
}

// Dispatch runs each call in declared order and returns a store.ToolCall
// per call, ready to be passed to Store.CompleteTurn/FailTurn. A call whose
// parameters fail schema validation, or that names an unregistered tool, is
// recorded as a failed tool call without ever invoking the tool. Dispatch
// itself never returns an error: a malformed or failing tool call is a
// per-call outcome, not a reason to abort the rest of the turn.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []providers.ToolCallRequest) []store.ToolCall {
	out := make([]store.ToolCall, 0, len(calls))
	for _, call := range calls {
		out = append(out, d.dispatchOne(ctx, call))
	}
	return out
}

func (d *Dispatcher) dispatchOne(ctx context.Context, call providers.ToolCallRequest) store.ToolCall {
	started := time.Now().UTC()
	input := encodeParams(call.Parameters)

	tool, ok := d.registry.Lookup(call.Name)
	if !ok {
		d.logger.Warn().Str("tool", call.Name).Msg("dispatch rejected: tool not registered")
		return finishedToolCall(call.Name, input, started, "unknown tool: "+call.Name, 1)
	}

	if err := validateParams(tool.Schema().InputSchema, call.Parameters); err != nil {
		d.logger.Warn().Str("tool", call.Name).Err(err).Msg("dispatch rejected: parameter validation failed")
		return finishedToolCall(call.Name, input, started, err.Error(), 1)
	}

	output, exitCode, err := tool.Execute(ctx, call.Parameters)
	if err != nil {
		d.logger.Warn().Str("tool", call.Name).Err(err).Msg("tool execution failed")
		if output == "" {
			output = err.Error()
		}
		if exitCode == 0 {
			exitCode = 1
		}
	}
	return finishedToolCall(call.Name, input, started, output, exitCode)
}

func finishedToolCall(name, input string, started time.Time, output string, exitCode int) store.ToolCall {
	finished := time.Now().UTC()
	return store.ToolCall{
		ToolName:   name,
		Input:      input,
		Output:     output,
		ExitCode:   exitCode,
		StartedAt:  started,
		FinishedAt: &finished,
	}
}
