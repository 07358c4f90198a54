package store

import "time"

// TurnStatus is the lifecycle status of a single agent-loop turn.
type TurnStatus string

const (
	TurnPending   TurnStatus = "pending"
	TurnCompleted TurnStatus = "completed"
	TurnFailed    TurnStatus = "failed"
)

// ChildStatus is the lifecycle status of a spawned child automaton.
type ChildStatus string

const (
	ChildSpawning  ChildStatus = "spawning"
	ChildHealthy   ChildStatus = "healthy"
	ChildStopped   ChildStatus = "stopped"
	ChildDead      ChildStatus = "dead"
	ChildCleanedUp ChildStatus = "cleaned_up"
)

// Provider identifies which wire protocol a registry row or child speaks.
type Provider string

const (
	ProviderConway    Provider = "conway"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderOllama    Provider = "ollama"
)

// ParamStyle selects which token-limit parameter name a provider expects.
type ParamStyle string

const (
	ParamStyleMaxTokens           ParamStyle = "max_tokens"
	ParamStyleMaxCompletionTokens ParamStyle = "max_completion_tokens"
)

// Identity is the single row describing this process's wallet and genesis.
type Identity struct {
	WalletAddress  string
	CreatorAddress string
	GenesisPrompt  string
	CreatedAt      time.Time
}

// Session is a contiguous run of the agent loop.
type Session struct {
	ID        int64
	StartedAt time.Time
	EndedAt   *time.Time
}

// Turn is one Think-Act-Observe cycle.
type Turn struct {
	ID                int64
	SessionID         int64
	Index             int64
	Tier              string
	ModelID           string
	PromptTokens      int
	ResponseTokens    int
	CreditDelta       float64
	Status            TurnStatus
	ErrorText         string
	CreatedAt         time.Time
	CompletedAt       *time.Time
}

// ToolCall is a single tool invocation within a turn.
type ToolCall struct {
	ID         int64
	TurnID     int64
	Seq        int
	ToolName   string
	Input      string // opaque structured payload, stored as JSON text
	Output     string
	ExitCode   int
	StartedAt  time.Time
	FinishedAt *time.Time
}

// ModelRegistryRow is one cached model catalogue entry.
type ModelRegistryRow struct {
	ModelID        string
	Provider       Provider
	DisplayName    string
	MinimumTier    string
	CostPer1kIn    float64
	CostPer1kOut   float64
	MaxOutputToken int
	ContextWindow  int
	SupportsTools  bool
	SupportsVision bool
	ParamStyle     ParamStyle
	Enabled        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Child is a spawned sibling automaton.
type Child struct {
	ID            string
	Name          string
	Address       string
	SandboxID     string
	GenesisPrompt string
	Status        ChildStatus
	ParentAddress string
	Generation    int
	CreatedAt     time.Time
}

// LifecycleEvent is one append-only transition record for a child.
type LifecycleEvent struct {
	ID        int64
	ChildID   string
	Transition string
	ToState   ChildStatus
	CreatedAt time.Time
}
