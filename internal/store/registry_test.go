package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleModel() ModelRegistryRow {
	return ModelRegistryRow{
		ModelID:        "gpt-5-mini",
		Provider:       ProviderOpenAI,
		DisplayName:    "GPT-5 Mini",
		MinimumTier:    "low_compute",
		CostPer1kIn:    0.001,
		CostPer1kOut:   0.002,
		MaxOutputToken: 8192,
		ContextWindow:  128000,
		SupportsTools:  true,
		SupportsVision: false,
		ParamStyle:     ParamStyleMaxCompletionTokens,
		Enabled:        true,
	}
}

func TestUpsertDiscoveredModelInsertsNew(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertDiscoveredModel(sampleModel()))

	got, err := s.GetModel("gpt-5-mini")
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, got.Provider)
	assert.Equal(t, "GPT-5 Mini", got.DisplayName)
	assert.True(t, got.Enabled)
}

func TestUpsertDiscoveredModelPreservesHumanEditedFields(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertDiscoveredModel(sampleModel()))

	require.NoError(t, s.SetEnabled("gpt-5-mini", false))

	refreshed := sampleModel()
	refreshed.DisplayName = "GPT-5 Mini (renamed upstream)"
	require.NoError(t, s.UpsertDiscoveredModel(refreshed))

	got, err := s.GetModel("gpt-5-mini")
	require.NoError(t, err)
	assert.Equal(t, "GPT-5 Mini (renamed upstream)", got.DisplayName)
	assert.False(t, got.Enabled, "rediscovery must not silently re-enable a tombstoned model")
}

func TestUpsertDiscoveredModelRejectsProviderChange(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertDiscoveredModel(sampleModel()))

	changed := sampleModel()
	changed.Provider = ProviderAnthropic
	err := s.UpsertDiscoveredModel(changed)
	assert.ErrorIs(t, err, ErrProviderImmutable)
}

func TestSetEnabledUnknownModel(t *testing.T) {
	s := newTestStore(t)

	err := s.SetEnabled("does-not-exist", false)
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestListEnabledModelsFiltersDisabledAndProvider(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertDiscoveredModel(sampleModel()))

	claude := sampleModel()
	claude.ModelID = "claude-sonnet"
	claude.Provider = ProviderAnthropic
	require.NoError(t, s.UpsertDiscoveredModel(claude))

	disabled := sampleModel()
	disabled.ModelID = "gpt-5-legacy"
	require.NoError(t, s.UpsertDiscoveredModel(disabled))
	require.NoError(t, s.SetEnabled("gpt-5-legacy", false))

	all, err := s.ListEnabledModels("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	openaiOnly, err := s.ListEnabledModels("openai")
	require.NoError(t, err)
	require.Len(t, openaiOnly, 1)
	assert.Equal(t, "gpt-5-mini", openaiOnly[0].ModelID)
}

func TestGetModelNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetModel("nope")
	assert.ErrorIs(t, err, ErrModelNotFound)
}
