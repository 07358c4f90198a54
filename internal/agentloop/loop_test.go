package agentloop

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/moneyclaw/moneyclaw/internal/config"
	"github.com/moneyclaw/moneyclaw/internal/observability"
	"github.com/moneyclaw/moneyclaw/internal/providers"
	"github.com/moneyclaw/moneyclaw/internal/router"
	"github.com/moneyclaw/moneyclaw/internal/store"
	"github.com/moneyclaw/moneyclaw/internal/tooldispatch"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.Disabled)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "moneyclaw.db")
	s, err := store.Open(dbPath, newTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedModel(t *testing.T, s *store.Store, id string) {
	t.Helper()
	require.NoError(t, s.UpsertDiscoveredModel(store.ModelRegistryRow{
		ModelID: id, Provider: store.ProviderOpenAI, MinimumTier: "normal",
		MaxOutputToken: 4096, Enabled: true, ParamStyle: store.ParamStyleMaxTokens,
	}))
}

type fakeProvider struct {
	responses []func(req providers.ChatRequest) (*providers.ChatResponse, error)
	calls     int
}

func (f *fakeProvider) Name() string { return "openai" }

func (f *fakeProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	fn := f.responses[f.calls]
	f.calls++
	return fn(req)
}

type fakeCreditSource struct {
	statuses []CreditStatus
	errs     []error
	calls    int
}

func (f *fakeCreditSource) ReadCredits(ctx context.Context) (CreditStatus, error) {
	i := f.calls
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return f.statuses[i], err
}

type fakeTool struct {
	name  string
	calls int
}

func (f *fakeTool) Schema() providers.ToolSchema {
	return providers.ToolSchema{Name: f.name, Description: "test tool"}
}

func (f *fakeTool) Execute(ctx context.Context, params map[string]any) (string, int, error) {
	f.calls++
	return "ok", 0, nil
}

func newTestLoop(t *testing.T, provider *fakeProvider, credits *fakeCreditSource) (*Loop, *store.Store, *tooldispatch.Dispatcher) {
	t.Helper()
	s := newTestStore(t)
	seedModel(t, s, "gpt-5")
	seedModel(t, s, "gpt-5-mini")

	r := router.New(s, map[store.Provider]providers.LLMProvider{store.ProviderOpenAI: provider},
		"gpt-5", "gpt-5-mini", observability.NewMetrics(), newTestLogger())

	tool := &fakeTool{name: "noop"}
	dispatcher := tooldispatch.NewDispatcher(tooldispatch.NewRegistry(tool), newTestLogger())

	require.NoError(t, s.InsertIdentity(store.Identity{
		WalletAddress: "0x" + strings.Repeat("1", 40),
		GenesisPrompt: "You are a MoneyClaw agent.",
	}))
	identity, err := s.GetIdentity()
	require.NoError(t, err)

	sess, err := s.OpenSession()
	require.NoError(t, err)

	loop := New(Config{
		Store:      s,
		Router:     r,
		Dispatcher: dispatcher,
		Credits:    credits,
		Metrics:    observability.NewMetrics(),
		Logger:     newTestLogger(),
		Thresholds: config.TierThresholds{
			High: 500, Normal: 100, LowCompute: 20, Critical: 5, ErrorRateHigh: 3,
			LowComputeModel: "gpt-5-mini",
		},
		DefaultModel:      "gpt-5",
		HeartbeatInterval: 5 * time.Millisecond,
		Identity:          *identity,
		SessionID:         sess.ID,
	})
	return loop, s, dispatcher
}

func chatOK(content string) func(providers.ChatRequest) (*providers.ChatResponse, error) {
	return func(req providers.ChatRequest) (*providers.ChatResponse, error) {
		return &providers.ChatResponse{
			Content: content,
			Usage:   providers.TokenUsage{InputTokens: 10, OutputTokens: 5},
		}, nil
	}
}

func TestIterateCompletesATurnOnSuccess(t *testing.T) {
	provider := &fakeProvider{responses: []func(providers.ChatRequest) (*providers.ChatResponse, error){chatOK("hi")}}
	credits := &fakeCreditSource{statuses: []CreditStatus{{Credits: 1000}}}
	loop, s, _ := newTestLoop(t, provider, credits)

	terminal, err := loop.iterate(context.Background())
	require.NoError(t, err)
	assert.False(t, terminal)

	turns, err := s.RecentTurns(loop.sessionID, 5)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, store.TurnCompleted, turns[0].Status)
	assert.Equal(t, "gpt-5", turns[0].ModelID)
}

func TestIterateTerminatesWhenTierIsDead(t *testing.T) {
	provider := &fakeProvider{}
	credits := &fakeCreditSource{statuses: []CreditStatus{{Credits: 0, TopupImpossible: true}}}
	loop, s, _ := newTestLoop(t, provider, credits)

	terminal, err := loop.iterate(context.Background())
	require.NoError(t, err)
	assert.True(t, terminal)

	turns, err := s.RecentTurns(loop.sessionID, 5)
	require.NoError(t, err)
	assert.Empty(t, turns, "no turn should be opened once the governor declares the runtime dead")
}

func TestIterateRecordsFailedTurnOnProviderError(t *testing.T) {
	provider := &fakeProvider{responses: []func(providers.ChatRequest) (*providers.ChatResponse, error){
		func(providers.ChatRequest) (*providers.ChatResponse, error) {
			return nil, errors.New("connection refused")
		},
	}}
	credits := &fakeCreditSource{statuses: []CreditStatus{{Credits: 1000}}}
	loop, s, _ := newTestLoop(t, provider, credits)

	terminal, err := loop.iterate(context.Background())
	require.NoError(t, err)
	assert.False(t, terminal)

	turns, err := s.RecentTurns(loop.sessionID, 5)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, store.TurnFailed, turns[0].Status)
	assert.Equal(t, 1, loop.consecutiveFailures)
}

func TestIterateAppliesTierRestrictionsOnLowCompute(t *testing.T) {
	provider := &fakeProvider{responses: []func(providers.ChatRequest) (*providers.ChatResponse, error){chatOK("hi")}}
	credits := &fakeCreditSource{statuses: []CreditStatus{{Credits: 25}}}
	loop, s, _ := newTestLoop(t, provider, credits)

	_, err := loop.iterate(context.Background())
	require.NoError(t, err)

	val, err := s.GetKV(currentTierKVKey)
	require.NoError(t, err)
	assert.Equal(t, "low_compute", val)
	assert.Equal(t, "gpt-5-mini", loop.router.GetDefaultModel())
}

func TestIterateDispatchesToolCallsAndPersistsThem(t *testing.T) {
	provider := &fakeProvider{responses: []func(providers.ChatRequest) (*providers.ChatResponse, error){
		func(providers.ChatRequest) (*providers.ChatResponse, error) {
			return &providers.ChatResponse{
				Content:   "",
				ToolCalls: []providers.ToolCallRequest{{ID: "1", Name: "noop", Parameters: map[string]any{}}},
				Usage:     providers.TokenUsage{InputTokens: 10, OutputTokens: 5},
			}, nil
		},
	}}
	credits := &fakeCreditSource{statuses: []CreditStatus{{Credits: 1000}}}
	loop, s, dispatcher := newTestLoop(t, provider, credits)
	_ = dispatcher

	_, err := loop.iterate(context.Background())
	require.NoError(t, err)

	turns, err := s.RecentTurns(loop.sessionID, 5)
	require.NoError(t, err)
	require.Len(t, turns, 1)

	calls, err := s.ListToolCalls(turns[0].ID)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "noop", calls[0].ToolName)
	assert.Equal(t, "ok", calls[0].Output)
}

func TestSetThresholdsAppliesOnTheNextIteration(t *testing.T) {
	provider := &fakeProvider{responses: []func(providers.ChatRequest) (*providers.ChatResponse, error){chatOK("hi"), chatOK("hi")}}
	credits := &fakeCreditSource{statuses: []CreditStatus{{Credits: 25}, {Credits: 25}}}
	loop, s, _ := newTestLoop(t, provider, credits)

	_, err := loop.iterate(context.Background())
	require.NoError(t, err)
	val, err := s.GetKV(currentTierKVKey)
	require.NoError(t, err)
	assert.Equal(t, "low_compute", val, "25 credits falls under the default Normal threshold of 100")

	loop.SetThresholds(config.TierThresholds{
		High: 500, Normal: 10, LowCompute: 5, Critical: 1, ErrorRateHigh: 3,
		LowComputeModel: "gpt-5-mini",
	})

	_, err = loop.iterate(context.Background())
	require.NoError(t, err)
	val, err = s.GetKV(currentTierKVKey)
	require.NoError(t, err)
	assert.Equal(t, "normal", val, "after widening Normal's floor to 10, the same 25 credits now classifies normal")
}

func TestNextYieldBacksOffOnRepeatedIdenticalFailure(t *testing.T) {
	loop, _, _ := newTestLoop(t, &fakeProvider{}, &fakeCreditSource{statuses: []CreditStatus{{Credits: 1000}}})
	loop.heartbeatInterval = 5 * time.Millisecond

	assert.Equal(t, 5*time.Millisecond, loop.nextYield())

	loop.trackFailureStreak(string(store.TurnFailed), "boom")
	assert.Equal(t, 5*time.Millisecond, loop.nextYield(), "a single failure does not trigger backoff yet")

	loop.trackFailureStreak(string(store.TurnFailed), "boom")
	assert.Equal(t, minBackoff, loop.nextYield())

	loop.trackFailureStreak(string(store.TurnFailed), "boom")
	assert.Equal(t, 2*minBackoff, loop.nextYield())

	loop.trackFailureStreak(string(store.TurnCompleted), "")
	assert.Equal(t, 5*time.Millisecond, loop.nextYield(), "a success resets the streak")
}
