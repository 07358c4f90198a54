// Package providers adapts MoneyClaw's single chat-completion contract onto
// each upstream wire protocol: Anthropic Messages, OpenAI-compatible chat
// completions (also backs Conway, which speaks the OpenAI wire format), and
// a local Ollama daemon.
package providers

import "context"

// Message is one turn of conversation history passed to a provider.
type Message struct {
	Role       string // "system" | "user" | "assistant" | "tool"
	Content    string
	ToolCallID string
	ToolCalls  []ToolCallRequest
}

// ToolCallRequest is a tool invocation requested by the model.
type ToolCallRequest struct {
	ID         string
	Name       string
	Parameters map[string]any
}

// ToolSchema describes a callable tool in the wire format every supported
// provider accepts: a name, description, and a JSON Schema for parameters.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// TokenUsage reports prompt/response token counts for cost accounting.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// ParamStyle selects which token-limit parameter name a provider expects.
// Newer OpenAI reasoning models reject max_tokens in favor of
// max_completion_tokens; the router decides which style to send per model
// registry row (spec §4.4).
type ParamStyle string

const (
	ParamStyleMaxTokens           ParamStyle = "max_tokens"
	ParamStyleMaxCompletionTokens ParamStyle = "max_completion_tokens"
)

// ChatRequest is the provider-agnostic request shape.
type ChatRequest struct {
	Model        string
	Messages     []Message
	Tools        []ToolSchema
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	ParamStyle   ParamStyle
}

// ChatResponse is the provider-agnostic response shape.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCallRequest
	Usage     TokenUsage
}

// LLMProvider is the contract every wire adapter implements.
type LLMProvider interface {
	// Chat sends one request and returns the model's reply.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name identifies the provider for logging, metrics, and registry lookups.
	Name() string
}
