// Package tooldispatch validates and executes tool calls a model requested
// (spec §4.2 step 7): each call's parameters are checked against its
// declared JSON Schema before the tool ever runs.
package tooldispatch

import (
	"context"

	"github.com/moneyclaw/moneyclaw/internal/providers"
)

// Tool is a single callable capability exposed to the model.
type Tool interface {
	// Schema describes the tool's name, description, and parameter schema
	// in the wire format every provider adapter accepts.
	Schema() providers.ToolSchema
	// Execute runs the tool with already-validated parameters and returns
	// its textual output and process-style exit code.
	Execute(ctx context.Context, params map[string]any) (output string, exitCode int, err error)
}

// Registry holds the tools available to the agent loop for one turn.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds a Registry from a list of tools, keyed by their
// declared schema name.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Schema().Name] = t
	}
	return r
}

// Lookup returns the tool registered under name, if any.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Schemas returns every registered tool's schema, the shape the router
// passes to the provider as `options.tools`.
func (r *Registry) Schemas() []providers.ToolSchema {
	out := make([]providers.ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Schema())
	}
	return out
}
