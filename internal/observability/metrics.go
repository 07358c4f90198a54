// Package observability exposes runtime health gauges and span-per-turn
// tracing for the agent loop, router, registry, and replication subsystem.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the runtime exposes on its
// loopback-only /metrics endpoint. One instance is constructed at startup
// and threaded to every subsystem that reports health.
type Metrics struct {
	registry *prometheus.Registry

	tierCurrent     *prometheus.GaugeVec
	creditsBalance  prometheus.Gauge
	errorRateHourly prometheus.Gauge

	turnsTotal    *prometheus.CounterVec
	turnDuration  prometheus.Histogram
	turnToolCalls prometheus.Histogram

	providerCooldown  *prometheus.GaugeVec
	inferenceRequests *prometheus.CounterVec
	inferenceLatency  *prometheus.HistogramVec

	registryModelsEnabled *prometheus.GaugeVec
	discoveryFailures     *prometheus.CounterVec

	childrenByStatus *prometheus.GaugeVec
	spawnTotal       *prometheus.CounterVec
	pruneTotal       prometheus.Counter
}

// NewMetrics constructs and registers every collector against a fresh
// registry, so tests never collide with a process-global default registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		tierCurrent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "moneyclaw_tier_current",
				Help: "1 for the currently active survival tier, 0 otherwise, labeled by tier name.",
			},
			[]string{"tier"},
		),
		creditsBalance: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "moneyclaw_credits_balance",
				Help: "Current wallet credit balance as observed by the governor.",
			},
		),
		errorRateHourly: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "moneyclaw_error_rate_hourly",
				Help: "Recent turn error rate, errors per hour.",
			},
		),
		turnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moneyclaw_turns_total",
				Help: "Total turns completed by the agent loop, labeled by status.",
			},
			[]string{"status"},
		),
		turnDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "moneyclaw_turn_duration_seconds",
				Help:    "Wall-clock duration of a single Think-Act-Observe turn.",
				Buckets: prometheus.DefBuckets,
			},
		),
		turnToolCalls: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "moneyclaw_turn_tool_calls",
				Help:    "Number of tool calls dispatched within a single turn.",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
			},
		),
		providerCooldown: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "moneyclaw_provider_cooldown_active",
				Help: "1 while a provider is in cooldown after a failure, 0 otherwise.",
			},
			[]string{"provider"},
		),
		inferenceRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moneyclaw_inference_requests_total",
				Help: "Total inference requests by provider, model, and outcome.",
			},
			[]string{"provider", "model", "status"},
		),
		inferenceLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "moneyclaw_inference_latency_seconds",
				Help:    "Inference round-trip latency by provider.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		registryModelsEnabled: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "moneyclaw_registry_models_enabled",
				Help: "Count of enabled registry rows by provider.",
			},
			[]string{"provider"},
		),
		discoveryFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moneyclaw_discovery_failures_total",
				Help: "Total soft discovery-pass failures by provider.",
			},
			[]string{"provider"},
		),
		childrenByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "moneyclaw_children_by_status",
				Help: "Count of child automata by lifecycle status.",
			},
			[]string{"status"},
		),
		spawnTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moneyclaw_spawn_total",
				Help: "Total spawnChild attempts by outcome.",
			},
			[]string{"status"},
		),
		pruneTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "moneyclaw_prune_total",
				Help: "Total children removed by pruneDeadChildren.",
			},
		),
	}

	registry.MustRegister(
		m.tierCurrent,
		m.creditsBalance,
		m.errorRateHourly,
		m.turnsTotal,
		m.turnDuration,
		m.turnToolCalls,
		m.providerCooldown,
		m.inferenceRequests,
		m.inferenceLatency,
		m.registryModelsEnabled,
		m.discoveryFailures,
		m.childrenByStatus,
		m.spawnTotal,
		m.pruneTotal,
	)

	return m
}

// Handler returns an HTTP handler serving this registry's metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

var allTiers = []string{"high", "normal", "low_compute", "critical", "dead"}

// SetTier flips the tier gauge vector so exactly one tier label reads 1.
func (m *Metrics) SetTier(tier string) {
	for _, t := range allTiers {
		v := 0.0
		if t == tier {
			v = 1.0
		}
		m.tierCurrent.WithLabelValues(t).Set(v)
	}
}

// SetCredits records the current credit balance.
func (m *Metrics) SetCredits(credits float64) {
	m.creditsBalance.Set(credits)
}

// SetErrorRate records the recent errors/hour figure the governor used.
func (m *Metrics) SetErrorRate(rate float64) {
	m.errorRateHourly.Set(rate)
}

// RecordTurn records one completed turn's outcome and duration.
func (m *Metrics) RecordTurn(status string, duration time.Duration, toolCalls int) {
	m.turnsTotal.WithLabelValues(status).Inc()
	m.turnDuration.Observe(duration.Seconds())
	m.turnToolCalls.Observe(float64(toolCalls))
}

// SetProviderCooldown marks a provider's cooldown state after a failure.
func (m *Metrics) SetProviderCooldown(provider string, active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	m.providerCooldown.WithLabelValues(provider).Set(v)
}

// RecordInference records one inference request's outcome and latency.
func (m *Metrics) RecordInference(provider, model, status string, latency time.Duration) {
	m.inferenceRequests.WithLabelValues(provider, model, status).Inc()
	m.inferenceLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// SetRegistryEnabledCount records how many registry rows are enabled for a provider.
func (m *Metrics) SetRegistryEnabledCount(provider string, count int) {
	m.registryModelsEnabled.WithLabelValues(provider).Set(float64(count))
}

// RecordDiscoveryFailure records a soft discovery-pass failure.
func (m *Metrics) RecordDiscoveryFailure(provider string) {
	m.discoveryFailures.WithLabelValues(provider).Inc()
}

// SetChildrenByStatus sets the gauge for one lifecycle status to the given count.
func (m *Metrics) SetChildrenByStatus(status string, count int) {
	m.childrenByStatus.WithLabelValues(status).Set(float64(count))
}

// RecordSpawn records one spawnChild attempt's outcome.
func (m *Metrics) RecordSpawn(status string) {
	m.spawnTotal.WithLabelValues(status).Inc()
}

// RecordPrune records children removed by a single pruneDeadChildren pass.
func (m *Metrics) RecordPrune(removed int) {
	m.pruneTotal.Add(float64(removed))
}
