package config

import (
	"encoding/json"
	"fmt"
)

// Config is the root configuration for a MoneyClaw runtime instance.
type Config struct {
	// Conway provider
	ConwayAPIURL string `json:"conwayApiUrl" mapstructure:"conwayApiUrl"`
	ConwayAPIKey string `json:"conwayApiKey" mapstructure:"conwayApiKey"`

	// OpenAI-compatible provider
	OpenAIAPIKey  string `json:"openaiApiKey" mapstructure:"openaiApiKey"`
	OpenAIBaseURL string `json:"openaiBaseUrl" mapstructure:"openaiBaseUrl"`

	// Anthropic-compatible provider
	AnthropicAPIKey  string `json:"anthropicApiKey" mapstructure:"anthropicApiKey"`
	AnthropicBaseURL string `json:"anthropicBaseUrl" mapstructure:"anthropicBaseUrl"`

	// Ollama
	OllamaBaseURL string `json:"ollamaBaseUrl" mapstructure:"ollamaBaseUrl"`

	// Routing
	InferenceModel string `json:"inferenceModel" mapstructure:"inferenceModel"`
	ModelStrategy  string `json:"modelStrategy" mapstructure:"modelStrategy"`

	// Identity
	WalletAddress  string `json:"walletAddress" mapstructure:"walletAddress"`
	CreatorAddress string `json:"creatorAddress" mapstructure:"creatorAddress"`

	// Survival tier thresholds
	TierThresholds TierThresholds `json:"tierThresholds" mapstructure:"tierThresholds"`

	// Heartbeat / scheduler intervals
	Schedule ScheduleConfig `json:"schedule" mapstructure:"schedule"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Observability (metrics + tracing)
	Observability ObservabilityConfig `json:"observability" mapstructure:"observability"`

	// Sandbox backend for replication
	Sandbox SandboxConfig `json:"sandbox" mapstructure:"sandbox"`

	// Replication limits
	Replication ReplicationConfig `json:"replication" mapstructure:"replication"`

	// Data directory holding the sqlite store, log file, and pid file
	DataDir string `json:"dataDir" mapstructure:"dataDir"`
}

// TierThresholds holds the credit cutoffs for the survival tier governor.
// Must satisfy High > Normal > LowCompute > Critical > 0.
type TierThresholds struct {
	High       float64 `json:"high" mapstructure:"high"`
	Normal     float64 `json:"normal" mapstructure:"normal"`
	LowCompute float64 `json:"lowCompute" mapstructure:"lowCompute"`
	Critical   float64 `json:"critical" mapstructure:"critical"`
	// ErrorRateHigh is the max errors/hour still compatible with the high tier.
	ErrorRateHigh float64 `json:"errorRateHigh" mapstructure:"errorRateHigh"`
	// LowComputeModel is the cheap model substituted under low_compute/critical.
	LowComputeModel string `json:"lowComputeModel" mapstructure:"lowComputeModel"`
}

// ScheduleConfig controls the cron-driven heartbeat/discovery/prune ticks.
type ScheduleConfig struct {
	HeartbeatInterval string `json:"heartbeatInterval" mapstructure:"heartbeatInterval"` // e.g. "@every 30s"
	DiscoveryInterval string `json:"discoveryInterval" mapstructure:"discoveryInterval"` // e.g. "@every 15m"
	PruneInterval     string `json:"pruneInterval" mapstructure:"pruneInterval"`         // e.g. "@every 1h"
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"maxSize" mapstructure:"maxSize"` // MB
	MaxAge    int    `json:"maxAge" mapstructure:"maxAge"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// ObservabilityConfig holds metrics + tracing settings.
type ObservabilityConfig struct {
	MetricsEnabled bool   `json:"metricsEnabled" mapstructure:"metricsEnabled"`
	MetricsAddr    string `json:"metricsAddr" mapstructure:"metricsAddr"` // loopback-only, e.g. "127.0.0.1:9090"
	TracingEnabled bool   `json:"tracingEnabled" mapstructure:"tracingEnabled"`
	OTLPEndpoint   string `json:"otlpEndpoint" mapstructure:"otlpEndpoint"`
}

// SandboxConfig selects the replication subsystem's sandbox backend.
type SandboxConfig struct {
	Backend string `json:"backend" mapstructure:"backend"` // "docker" or "host"
	Image   string `json:"image" mapstructure:"image"`
}

// ReplicationConfig bounds self-replication behaviour.
type ReplicationConfig struct {
	MaxChildren       int `json:"maxChildren" mapstructure:"maxChildren"`
	SpawnTimeoutSecs  int `json:"spawnTimeoutSecs" mapstructure:"spawnTimeoutSecs"`
	PruneDeadKeepLast int `json:"pruneDeadKeepLast" mapstructure:"pruneDeadKeepLast"`
}

// DefaultConfig returns a config with sane defaults. Provider keys, the
// wallet address, and the creator address are left empty; Validate will
// reject an unconfigured identity before the store opens.
func DefaultConfig() *Config {
	return &Config{
		OpenAIBaseURL:    "https://api.openai.com",
		AnthropicBaseURL: "https://api.anthropic.com",
		OllamaBaseURL:    "http://localhost:11434",
		InferenceModel:   "gpt-5-mini",
		ModelStrategy:    "cost-aware",
		TierThresholds: TierThresholds{
			High:            500,
			Normal:          100,
			LowCompute:      20,
			Critical:        5,
			ErrorRateHigh:   3,
			LowComputeModel: "gpt-5-mini",
		},
		Schedule: ScheduleConfig{
			HeartbeatInterval: "@every 30s",
			DiscoveryInterval: "@every 15m",
			PruneInterval:     "@every 1h",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: true,
			MetricsAddr:    "127.0.0.1:9090",
			TracingEnabled: false,
		},
		Sandbox: SandboxConfig{
			Backend: "host",
		},
		Replication: ReplicationConfig{
			MaxChildren:       10,
			SpawnTimeoutSecs:  300,
			PruneDeadKeepLast: 5,
		},
	}
}

// String returns a JSON representation of the config, with secrets intact —
// callers that log this value must route it through the redacting logger.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks that the configuration is internally consistent and
// usable before the store opens. It does not validate network reachability.
func (c *Config) Validate() error {
	t := c.TierThresholds
	if !(t.High > t.Normal && t.Normal > t.LowCompute && t.LowCompute > t.Critical && t.Critical > 0) {
		return fmt.Errorf("invalid tier thresholds: require High(%v) > Normal(%v) > LowCompute(%v) > Critical(%v) > 0",
			t.High, t.Normal, t.LowCompute, t.Critical)
	}
	if t.LowComputeModel == "" {
		return fmt.Errorf("tierThresholds.lowComputeModel is required")
	}

	if c.InferenceModel == "" {
		return fmt.Errorf("inferenceModel is required")
	}

	if c.Replication.MaxChildren < 0 {
		return fmt.Errorf("replication.maxChildren must be >= 0")
	}
	if c.Replication.SpawnTimeoutSecs <= 0 {
		return fmt.Errorf("replication.spawnTimeoutSecs must be positive")
	}
	if c.Replication.PruneDeadKeepLast < 0 {
		return fmt.Errorf("replication.pruneDeadKeepLast must be >= 0")
	}

	switch c.Sandbox.Backend {
	case "docker", "host":
	default:
		return fmt.Errorf("invalid sandbox backend %q (must be: docker, host)", c.Sandbox.Backend)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	ok := false
	for _, l := range validLevels {
		if c.Logging.Level == l {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}

	return nil
}
