// Package router implements the inference router (spec §4.4): it resolves
// a model id and provider for the current survival tier, dispatches the
// chat request with retry and a per-request timeout, and reports usage for
// credit accounting.
package router

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/moneyclaw/moneyclaw/internal/observability"
	"github.com/moneyclaw/moneyclaw/internal/providers"
	"github.com/moneyclaw/moneyclaw/internal/store"
	"github.com/moneyclaw/moneyclaw/internal/tier"
	"github.com/rs/zerolog"
)

// defaultCheapModel is the last-resort model id used when neither an
// explicit override nor a configured low-compute model is available.
const defaultCheapModel = "gpt-5-mini"

// ErrModelDisabled is returned when the resolved registry row is disabled.
var ErrModelDisabled = errors.New("model is disabled in registry")

// ErrTierTooLow is returned when the current tier does not meet the
// resolved model's minimum tier requirement.
var ErrTierTooLow = errors.New("current tier does not meet model's minimum tier")

// ErrNoProviderAdapter is returned when no LLMProvider is registered for
// the resolved registry row's provider.
var ErrNoProviderAdapter = errors.New("no provider adapter registered")

// ChatOptions carries the per-call overrides the agent loop may supply.
type ChatOptions struct {
	ModelOverride string
	MaxTokens     int
	Tools         []providers.ToolSchema
}

// ChatResult is what the agent loop needs to finish a turn: the response,
// the resolved model/provider (for the turn row), and the credit delta.
type ChatResult struct {
	Response    *providers.ChatResponse
	ModelID     string
	Provider    store.Provider
	CreditDelta float64
}

// Router dispatches chat requests across the configured provider adapters.
type Router struct {
	store          *store.Store
	providers      map[store.Provider]providers.LLMProvider
	metrics        *observability.Metrics
	logger         zerolog.Logger
	requestTimeout time.Duration
	maxRetries     int

	mu              sync.Mutex
	defaultModel    string
	lowComputeModel string
	lowCompute      bool
}

// New constructs a Router. providerAdapters maps a provider name
// (conway/openai/anthropic/ollama) to its LLMProvider implementation.
func New(s *store.Store, providerAdapters map[store.Provider]providers.LLMProvider, defaultModel, lowComputeModel string, metrics *observability.Metrics, logger zerolog.Logger) *Router {
	return &Router{
		store:           s,
		providers:       providerAdapters,
		metrics:         metrics,
		logger:          logger,
		requestTimeout:  30 * time.Second,
		maxRetries:      3,
		defaultModel:    defaultModel,
		lowComputeModel: lowComputeModel,
	}
}

// SetLowComputeMode swaps the router's default model between defaultModel
// and lowComputeModel (spec §4.4).
func (r *Router) SetLowComputeMode(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lowCompute = on
}

// GetDefaultModel reflects the router's current default model setting.
func (r *Router) GetDefaultModel() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.lowCompute {
		return r.defaultModel
	}
	if r.lowComputeModel != "" {
		return r.lowComputeModel
	}
	return defaultCheapModel
}

// Chat resolves a model/provider for currentTier, dispatches the request,
// and returns the adapted response plus the credit delta it cost.
func (r *Router) Chat(ctx context.Context, currentTier tier.Tier, messages []providers.Message, systemPrompt string, opts ChatOptions) (*ChatResult, error) {
	modelID := opts.ModelOverride
	if modelID == "" {
		modelID = r.GetDefaultModel()
	}

	row, provider, err := r.resolve(modelID, currentTier)
	if err != nil {
		return nil, err
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = row.MaxOutputToken
	}

	req := providers.ChatRequest{
		Model:        modelID,
		Messages:     messages,
		Tools:        opts.Tools,
		MaxTokens:    maxTokens,
		SystemPrompt: systemPrompt,
		ParamStyle:   providers.ParamStyle(row.ParamStyle),
	}

	started := time.Now()
	resp, err := r.callWithRetry(ctx, provider, req)
	elapsed := time.Since(started)
	if err != nil {
		r.metrics.RecordInference(string(row.Provider), modelID, "error", elapsed)
		return nil, r.handleFailure(modelID, row.Provider, err)
	}

	creditDelta := (float64(resp.Usage.InputTokens)/1000)*row.CostPer1kIn + (float64(resp.Usage.OutputTokens)/1000)*row.CostPer1kOut
	r.metrics.RecordInference(string(row.Provider), modelID, "success", elapsed)

	return &ChatResult{Response: resp, ModelID: modelID, Provider: row.Provider, CreditDelta: creditDelta}, nil
}

func (r *Router) resolve(modelID string, currentTier tier.Tier) (*store.ModelRegistryRow, providers.LLMProvider, error) {
	row, err := r.store.GetModel(modelID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve model %q: %w", modelID, err)
	}
	if !row.Enabled {
		return nil, nil, fmt.Errorf("%w: %q", ErrModelDisabled, modelID)
	}
	if !tier.Meets(currentTier, tier.Tier(row.MinimumTier)) {
		return nil, nil, fmt.Errorf("%w: %q requires %q, current is %q", ErrTierTooLow, modelID, row.MinimumTier, currentTier)
	}
	provider, ok := r.providers[row.Provider]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrNoProviderAdapter, row.Provider)
	}
	return row, provider, nil
}

// handleFailure classifies err and applies the corresponding side effect:
// an auth failure or model-not-found disables/records against the
// registry row so the next turn re-resolves away from it (spec §4.4's
// failure classes).
func (r *Router) handleFailure(modelID string, provider store.Provider, err error) error {
	class := classify(err)

	switch class {
	case classModelNotFound:
		if disableErr := r.store.SetEnabled(modelID, false); disableErr != nil {
			r.logger.Warn().Err(disableErr).Str("model", modelID).Msg("failed to disable model after not-found error")
		}
		return fmt.Errorf("model %q not found upstream, disabled: %w", modelID, err)
	case classAuthFailure:
		return fmt.Errorf("provider %q rejected credentials this turn: %w", provider, err)
	default:
		return fmt.Errorf("inference call to %q failed: %w", provider, err)
	}
}

// callWithRetry applies the router's request timeout and retries transient
// failures up to maxRetries with jittered exponential backoff starting at
// 1s, matching the teacher's callLLMWithRetry cadence.
func (r *Router) callWithRetry(ctx context.Context, provider providers.LLMProvider, req providers.ChatRequest) (*providers.ChatResponse, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.requestTimeout)
		resp, err := provider.Chat(callCtx, req)
		cancel()

		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}
		if attempt == r.maxRetries-1 {
			break
		}

		delay := backoffDelay(attempt)
		r.logger.Info().Int("attempt", attempt+1).Dur("delay", delay).Err(err).Msg("retrying inference call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", r.maxRetries, lastErr)
}

// backoffDelay returns an exponential backoff with +/-20% jitter: ~1s, ~2s, ~4s.
func backoffDelay(attempt int) time.Duration {
	base := time.Duration(1<<attempt) * time.Second
	jitter := time.Duration(rand.Int63n(int64(base) / 5))
	return base + jitter
}
