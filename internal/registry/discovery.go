// Package registry implements the model registry discoverers (spec §4.5):
// one per provider family, each harvesting a provider's model catalogue and
// upserting it into the persistent store while preserving human-edited
// fields and tombstoning models no longer advertised.
package registry

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/moneyclaw/moneyclaw/internal/observability"
	"github.com/moneyclaw/moneyclaw/internal/store"
	"github.com/rs/zerolog"
)

// httpTimeout is the per-HTTP-call timeout for every discoverer (spec §5).
const httpTimeout = 10 * time.Second

// defaults applied to newly discovered rows before provider-specific
// overrides are layered on top.
const (
	defaultMinimumTier   = "normal"
	defaultMaxTokens     = 4096
	openAIContextWindow  = 128_000
	anthropicContextWnd  = 200_000
)

var (
	chatModelPattern    = regexp.MustCompile(`^(gpt-|o[13][-.]|o[13]$|chatgpt-)`)
	nonChatModelPattern = regexp.MustCompile(`^(dall-e|whisper|tts|text-embedding|ft:|babbage|davinci|curie|ada)`)
	visionModelPattern  = regexp.MustCompile(`(vision|4o|gpt-5|claude-3|claude-4|sonnet|opus)`)
)

// Discoverer harvests one provider's model catalogue. A discovery failure
// is soft: it logs and returns an empty (not partial) list so the caller
// never tombstones on a broken pass.
type Discoverer interface {
	Provider() store.Provider
	Discover(ctx context.Context) ([]store.ModelRegistryRow, error)
}

// httpDoer is the injectable HTTP capability every discoverer depends on,
// letting tests script responses without touching the network (spec §9).
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Runner drives one discoverer at a time: fetch, upsert, tombstone.
type Runner struct {
	store       *store.Store
	discoverers []Discoverer
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

// NewRunner constructs a Runner over the given discoverers. metrics may be
// nil in tests that don't care about the gauges.
func NewRunner(s *store.Store, discoverers []Discoverer, metrics *observability.Metrics, logger zerolog.Logger) *Runner {
	return &Runner{store: s, discoverers: discoverers, metrics: metrics, logger: logger}
}

// RunAll runs every configured discoverer's pass in turn, returning the
// combined count of rows upserted. A single discoverer's failure never
// aborts the others.
func (r *Runner) RunAll(ctx context.Context) int {
	total := 0
	for _, d := range r.discoverers {
		total += r.runOne(ctx, d)
	}
	return total
}

func (r *Runner) runOne(ctx context.Context, d Discoverer) int {
	rows, err := d.Discover(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Str("provider", string(d.Provider())).Msg("discovery pass failed, catalogue unchanged")
		if r.metrics != nil {
			r.metrics.RecordDiscoveryFailure(string(d.Provider()))
		}
		return 0
	}

	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if err := r.store.UpsertDiscoveredModel(row); err != nil {
			r.logger.Warn().Err(err).Str("model", row.ModelID).Msg("failed to upsert discovered model")
			continue
		}
		seen[row.ModelID] = struct{}{}
	}

	if err := r.tombstoneUnseen(d.Provider(), seen); err != nil {
		r.logger.Warn().Err(err).Str("provider", string(d.Provider())).Msg("failed to tombstone stale models")
	}

	if r.metrics != nil {
		if enabled, err := r.store.ListEnabledModels(string(d.Provider())); err == nil {
			r.metrics.SetRegistryEnabledCount(string(d.Provider()), len(enabled))
		}
	}

	return len(seen)
}

// tombstoneUnseen disables every previously enabled row of provider not
// present in seen (spec §4.5, testable property #5).
func (r *Runner) tombstoneUnseen(provider store.Provider, seen map[string]struct{}) error {
	existing, err := r.store.ListEnabledModels(string(provider))
	if err != nil {
		return err
	}
	for _, row := range existing {
		if _, ok := seen[row.ModelID]; ok {
			continue
		}
		if err := r.store.SetEnabled(row.ModelID, false); err != nil {
			return err
		}
	}
	return nil
}

// isChatModel applies the stock-OpenAI chat-model allowlist filter.
func isChatModel(id string) bool {
	return chatModelPattern.MatchString(id) && !nonChatModelPattern.MatchString(id)
}

// detectVision guesses tool/vision support from an id pattern, per spec's
// "vision auto-detected by ID pattern" default.
func detectVision(id string) bool {
	return visionModelPattern.MatchString(strings.ToLower(id))
}

// isStockOpenAI reports whether baseURL points at the real OpenAI API
// rather than a compatible third-party endpoint.
func isStockOpenAI(baseURL string) bool {
	trimmed := strings.TrimSuffix(strings.ToLower(baseURL), "/")
	return trimmed == "https://api.openai.com" || strings.HasSuffix(trimmed, "//api.openai.com")
}
