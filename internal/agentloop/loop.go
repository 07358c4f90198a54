package agentloop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/moneyclaw/moneyclaw/internal/config"
	"github.com/moneyclaw/moneyclaw/internal/observability"
	"github.com/moneyclaw/moneyclaw/internal/router"
	"github.com/moneyclaw/moneyclaw/internal/store"
	"github.com/moneyclaw/moneyclaw/internal/tier"
	"github.com/moneyclaw/moneyclaw/internal/tooldispatch"
	"github.com/rs/zerolog"
)

// minBackoff/maxBackoff bound the yield delay once the loop starts seeing
// the same failure string turn after turn (spec §4.2 tie-break policy).
const (
	minBackoff = 2 * time.Second
	maxBackoff = 60 * time.Second
)

// OptionalWork runs the heartbeat side-effects the loop only performs when
// the current tier permits it (discovery refresh, replication maintenance),
// and returns a short summary folded into the next turn's prompt.
type OptionalWork func(ctx context.Context) string

// Config carries a Loop's dependencies and tuning knobs.
type Config struct {
	Store      *store.Store
	Router     *router.Router
	Dispatcher *tooldispatch.Dispatcher
	Credits    CreditSource
	Metrics    *observability.Metrics
	Logger     zerolog.Logger

	Thresholds        config.TierThresholds
	DefaultModel      string
	HeartbeatInterval time.Duration
	OptionalWork      OptionalWork // nil disables optional side-effects entirely

	Identity  store.Identity
	SessionID int64
}

// Loop drives the single cooperative task the runtime executes for its
// entire process lifetime (spec §4.2).
type Loop struct {
	store      *store.Store
	router     *router.Router
	dispatcher *tooldispatch.Dispatcher
	credits    CreditSource
	metrics    *observability.Metrics
	logger     zerolog.Logger

	thresholdsMu sync.RWMutex
	thresholds   config.TierThresholds

	defaultModel      string
	heartbeatInterval time.Duration
	optionalWork      OptionalWork

	identity  store.Identity
	sessionID int64

	haveLastTier bool
	lastTier     tier.Tier

	consecutiveFailures int
	lastFailure         string
}

// New builds a Loop ready to Run.
func New(cfg Config) *Loop {
	ow := cfg.OptionalWork
	if ow == nil {
		ow = func(context.Context) string { return "" }
	}
	return &Loop{
		store:             cfg.Store,
		router:            cfg.Router,
		dispatcher:        cfg.Dispatcher,
		credits:           cfg.Credits,
		metrics:           cfg.Metrics,
		logger:            cfg.Logger,
		thresholds:        cfg.Thresholds,
		defaultModel:      cfg.DefaultModel,
		heartbeatInterval: cfg.HeartbeatInterval,
		optionalWork:      ow,
		identity:          cfg.Identity,
		sessionID:         cfg.SessionID,
	}
}

// Run drives iterations until the tier governor declares the runtime dead
// or ctx is cancelled. A cancelled context is a clean stop, not an error;
// only a store failure the loop cannot recover from is returned (spec
// §4.2: "the loop catches every exception... only an unrecoverable store
// failure is fatal").
func (l *Loop) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		terminal, err := l.iterate(ctx)
		if err != nil {
			return err
		}
		if terminal {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.nextYield()):
		}
	}
}

// SetThresholds swaps in new tier thresholds, picked up by the next
// iteration. Lets a config.Watcher hot-reload the survival tier governor's
// cutoffs without restarting the loop (spec's config hot-reload supplement).
func (l *Loop) SetThresholds(t config.TierThresholds) {
	l.thresholdsMu.Lock()
	defer l.thresholdsMu.Unlock()
	l.thresholds = t
}

func (l *Loop) currentThresholds() config.TierThresholds {
	l.thresholdsMu.RLock()
	defer l.thresholdsMu.RUnlock()
	return l.thresholds
}

// iterate runs one full pass of the 9-step cycle. It returns terminal=true
// once the governor declares the runtime dead.
func (l *Loop) iterate(ctx context.Context) (terminal bool, err error) {
	thresholds := l.currentThresholds()

	// Step 1: read wallet credits and recent error rate.
	cs, err := l.credits.ReadCredits(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read credit status: %w", err)
	}
	errRate, err := l.store.RecentErrorRate(l.sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to read recent error rate: %w", err)
	}

	// Step 2: classify tier, apply restrictions only on a change.
	current := tier.Classify(tier.Signals{
		Credits:           cs.Credits,
		ErrorsPerHour:     errRate,
		RecentTopupFailed: cs.RecentTopupFailed,
		TopupImpossible:   cs.TopupImpossible,
	}, thresholds)

	if !l.haveLastTier || current != l.lastTier {
		if err := l.applyTierRestrictions(current); err != nil {
			return false, fmt.Errorf("failed to apply tier restrictions: %w", err)
		}
		l.haveLastTier = true
		l.lastTier = current
	}

	l.metrics.SetTier(string(current))
	l.metrics.SetCredits(cs.Credits)
	l.metrics.SetErrorRate(errRate)

	// Step 3: terminate on dead.
	if current == tier.Dead {
		l.logger.Error().
			Float64("credits", cs.Credits).
			Bool("topupImpossible", cs.TopupImpossible).
			Msg("survival tier governor declared runtime dead, terminating loop")
		return true, nil
	}

	// Optional heartbeat side-effects, suspended under low_compute/critical.
	var heartbeatOutput string
	if !tier.SuspendsOptionalWork(current) {
		heartbeatOutput = l.optionalWork(ctx)
	}

	modelID := tier.GetModelForTier(current, l.defaultModel, thresholds.LowComputeModel)

	// Step 4: open the turn.
	turn, err := l.store.OpenTurn(l.sessionID, string(current), modelID)
	if err != nil {
		return false, fmt.Errorf("failed to open turn: %w", err)
	}

	started := time.Now()
	status, failText, toolCalls, commitErr := l.runTurn(ctx, current, modelID, turn, heartbeatOutput)
	if commitErr != nil {
		return false, fmt.Errorf("failed to commit turn: %w", commitErr)
	}
	l.metrics.RecordTurn(status, time.Since(started), len(toolCalls))

	l.trackFailureStreak(status, failText)

	return false, nil
}

// runTurn composes the prompt, calls the router, dispatches any requested
// tool calls, and commits the turn. Provider and tool-execution failures
// are recorded as a failed turn rather than propagated: only the final
// store commit can produce a fatal error here.
func (l *Loop) runTurn(ctx context.Context, currentTier tier.Tier, modelID string, turn *store.Turn, heartbeatOutput string) (status, failText string, toolCalls []store.ToolCall, commitErr error) {
	recent, err := l.store.RecentTurns(l.sessionID, maxRecentTurnsInPrompt)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to load recent turns: %w", err)
	}

	systemPrompt, messages := composePrompt(l.identity.GenesisPrompt, recent, heartbeatOutput)

	result, err := l.router.Chat(ctx, currentTier, messages, systemPrompt, router.ChatOptions{
		ModelOverride: modelID,
		Tools:         l.dispatcher.Schemas(),
	})
	if err != nil {
		l.logger.Warn().Err(err).Int64("turn", turn.ID).Msg("inference call failed")
		if commitErr := l.store.FailTurn(turn.ID, err.Error(), nil); commitErr != nil {
			return "", "", nil, commitErr
		}
		return string(store.TurnFailed), err.Error(), nil, nil
	}

	if len(result.Response.ToolCalls) > 0 {
		toolCalls = l.dispatcher.Dispatch(ctx, result.Response.ToolCalls)
	}

	if commitErr := l.store.CompleteTurn(
		turn.ID,
		result.Response.Usage.InputTokens,
		result.Response.Usage.OutputTokens,
		result.CreditDelta,
		toolCalls,
	); commitErr != nil {
		return "", "", nil, commitErr
	}
	return string(store.TurnCompleted), "", toolCalls, nil
}

// applyTierRestrictions persists the new tier and toggles the router's
// low-compute mode (spec §4.3).
func (l *Loop) applyTierRestrictions(t tier.Tier) error {
	if err := l.store.SetKV(currentTierKVKey, string(t)); err != nil {
		return err
	}
	l.router.SetLowComputeMode(tier.ReducesMaxTokens(t) || t == tier.LowCompute)
	l.logger.Info().Str("tier", string(t)).Msg("survival tier changed")
	return nil
}

func (l *Loop) trackFailureStreak(status, failText string) {
	if status != string(store.TurnFailed) {
		l.consecutiveFailures = 0
		l.lastFailure = ""
		return
	}
	if failText == l.lastFailure {
		l.consecutiveFailures++
	} else {
		l.consecutiveFailures = 1
	}
	l.lastFailure = failText
}

// nextYield returns the heartbeat interval, or an exponential backoff once
// two turns in a row have produced the identical failure string.
func (l *Loop) nextYield() time.Duration {
	if l.consecutiveFailures < 2 {
		return l.heartbeatInterval
	}
	backoff := minBackoff << uint(l.consecutiveFailures-2)
	if backoff <= 0 || backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}

const currentTierKVKey = "current_tier"
