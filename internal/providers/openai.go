package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider implements LLMProvider over the OpenAI-compatible chat
// completions API. Conway is OpenAI-wire-compatible (spec §6) and reuses
// this adapter with its own base URL and key.
type OpenAIProvider struct {
	name       string
	client     openai.Client
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewOpenAIProvider constructs a provider against baseURL (empty means the
// public OpenAI API). name distinguishes "openai" from "conway" in logs,
// metrics, and registry lookups even though both speak the same wire format.
func NewOpenAIProvider(name, apiKey, baseURL string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{
		name:       name,
		client:     openai.NewClient(opts...),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Name returns the provider identifier ("openai" or "conway").
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Chat sends req to /v1/chat/completions. If the endpoint is not supported
// (404), it retries exactly once against the legacy /v1/completions
// endpoint with a flattened prompt and adapts the response back to the
// chat contract (spec §4.4 step 5). The fallback is per-request, never
// sticky: the next call always tries the chat endpoint first.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	resp, err := p.chatCompletions(ctx, req)
	if err == nil {
		return resp, nil
	}
	if !isChatEndpointUnsupported(err) {
		return nil, fmt.Errorf("%s chat failed: %w", p.name, err)
	}
	return p.legacyCompletion(ctx, req)
}

func (p *OpenAIProvider) chatCompletions(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	messages, err := toOpenAIMessages(req)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		switch req.ParamStyle {
		case ParamStyleMaxCompletionTokens:
			params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
		default:
			params.MaxTokens = openai.Int(int64(req.MaxTokens))
		}
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", p.name)
	}

	choice := resp.Choices[0]
	var toolCalls []ToolCallRequest
	for _, tc := range choice.Message.ToolCalls {
		var parameters map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &parameters); err != nil {
			return nil, fmt.Errorf("failed to parse %s tool arguments: %w", p.name, err)
		}
		toolCalls = append(toolCalls, ToolCallRequest{ID: tc.ID, Name: tc.Function.Name, Parameters: parameters})
	}

	return &ChatResponse{
		Content:   choice.Message.Content,
		ToolCalls: toolCalls,
		Usage: TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

// isChatEndpointUnsupported reports whether err is the SDK's representation
// of a 404 against /v1/chat/completions.
func isChatEndpointUnsupported(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	return strings.Contains(err.Error(), "404")
}

// legacyCompletionRequest/Response mirror the minimal /v1/completions shape;
// the SDK does not expose this deprecated endpoint, so it is called directly.
type legacyCompletionRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

type legacyCompletionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *OpenAIProvider) legacyCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(legacyCompletionRequest{
		Model:     req.Model,
		Prompt:    flattenPrompt(req),
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal legacy completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build legacy completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("legacy completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("legacy completion returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded legacyCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode legacy completion response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("legacy completion returned no choices")
	}

	return &ChatResponse{
		Content: decoded.Choices[0].Text,
		Usage: TokenUsage{
			InputTokens:  decoded.Usage.PromptTokens,
			OutputTokens: decoded.Usage.CompletionTokens,
		},
	}, nil
}

// flattenPrompt collapses chat-style messages into a single text prompt for
// the legacy completions endpoint.
func flattenPrompt(req ChatRequest) string {
	var b strings.Builder
	if req.SystemPrompt != "" {
		b.WriteString(req.SystemPrompt)
		b.WriteString("\n\n")
	}
	for _, msg := range req.Messages {
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	b.WriteString("assistant: ")
	return b.String()
}

func toOpenAIMessages(req ChatRequest) ([]openai.ChatCompletionMessageParamUnion, error) {
	var out []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		out = append(out, openai.SystemMessage(req.SystemPrompt))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			continue
		case "user":
			out = append(out, openai.UserMessage(msg.Content))
		case "assistant":
			if len(msg.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCall, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				paramsJSON, err := json.Marshal(tc.Parameters)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal tool parameters: %w", err)
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      tc.Name,
						Arguments: string(paramsJSON),
					},
				})
			}
			assistantMsg := openai.ChatCompletionMessage{Role: "assistant", Content: msg.Content, ToolCalls: toolCalls}
			out = append(out, assistantMsg.ToParam())
		case "tool":
			out = append(out, openai.ToolMessage(msg.ToolCallID, msg.Content))
		}
	}
	return out, nil
}

func toOpenAITools(schemas []ToolSchema) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(schemas))
	for _, schema := range schemas {
		out = append(out, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        schema.Name,
				Description: openai.String(schema.Description),
				Parameters:  openai.FunctionParameters(schema.InputSchema),
			},
		})
	}
	return out
}
