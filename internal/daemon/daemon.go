// Package daemon wires every MoneyClaw subsystem into one long-running
// process, generalizing the teacher's internal/daemon.Daemon composition
// root (construct every module in New, start background services in
// Start, tear them down in Stop, block on signals in Wait) from its
// dozen-plus chat/tool/session modules down to the five subsystems this
// runtime actually has: agent loop, survival tier governor (folded into
// the loop), inference router, model registry discovery, and replication.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/moneyclaw/moneyclaw/internal/agentloop"
	"github.com/moneyclaw/moneyclaw/internal/agenttools"
	"github.com/moneyclaw/moneyclaw/internal/config"
	"github.com/moneyclaw/moneyclaw/internal/logger"
	"github.com/moneyclaw/moneyclaw/internal/observability"
	"github.com/moneyclaw/moneyclaw/internal/providers"
	"github.com/moneyclaw/moneyclaw/internal/registry"
	"github.com/moneyclaw/moneyclaw/internal/replication"
	"github.com/moneyclaw/moneyclaw/internal/router"
	"github.com/moneyclaw/moneyclaw/internal/sandbox"
	"github.com/moneyclaw/moneyclaw/internal/scheduler"
	"github.com/moneyclaw/moneyclaw/internal/store"
	"github.com/moneyclaw/moneyclaw/internal/tooldispatch"
	"github.com/moneyclaw/moneyclaw/internal/walletaddr"
	"github.com/rs/zerolog"
)

// ErrWalletUnavailable is returned by New when the store has no identity
// yet, or the stored wallet address fails validation: both map to exit
// code 3 (spec §6), since the external setup wizard is what populates
// identity and this process cannot invent one.
var ErrWalletUnavailable = errors.New("wallet identity unavailable")

// Status is the snapshot `--status` reports (spec §7: "status command
// reports last non-empty turn error, current tier, credit balance, and
// active model").
type Status struct {
	Running     bool
	Uptime      time.Duration
	Tier        string
	Credits     float64
	LastError   string
	WalletAddr  string
	ActiveModel string
}

// Daemon is the composition root: every subsystem's dependencies are
// constructed once here and handed to the agent loop.
type Daemon struct {
	cfg     *config.Config
	log     *logger.Logger
	store   *store.Store
	metrics *observability.Metrics

	router         *router.Router
	registryRunner *registry.Runner
	spawner        *replication.Spawner
	pruner         *replication.Pruner
	scheduler      *scheduler.Scheduler
	loop           *agentloop.Loop
	watcher        *config.Watcher
	metricsServer  *http.Server

	identity  store.Identity
	sessionID int64

	pidFilePath string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	running   bool
	startTime time.Time
}

// New constructs every subsystem but starts nothing. loader is the same
// config.Loader main used to produce cfg, reused here to drive the
// hot-reload watcher against the same resolved path.
func New(cfg *config.Config, log *logger.Logger, loader *config.Loader) (*Daemon, error) {
	zl := log.GetZerolog()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "moneyclaw.db")
	st, err := store.Open(dbPath, zl)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	identity, err := st.GetIdentity()
	if err != nil {
		st.Close()
		if errors.Is(err, store.ErrNoIdentity) {
			return nil, ErrWalletUnavailable
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}
	if !walletaddr.Valid(identity.WalletAddress) {
		st.Close()
		return nil, ErrWalletUnavailable
	}

	session, err := resumeOrOpenSession(st)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open session: %w", err)
	}

	metrics := observability.NewMetrics()

	providerAdapters := buildProviderAdapters(cfg)
	rt := router.New(st, providerAdapters, cfg.InferenceModel, cfg.TierThresholds.LowComputeModel, metrics, zl)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	discoverers := buildDiscoverers(cfg, httpClient)
	registryRunner := registry.NewRunner(st, discoverers, metrics, zl)

	sandboxBackend := buildSandboxBackend(cfg, zl)
	cleaner := replication.NewCleaner(st, sandboxBackend, zl)
	funder := newNoopFunder(zl)
	runtimeStarter := newSandboxRuntimeStarter(sandboxBackend)
	spawner := replication.NewSpawner(st, sandboxBackend, funder, runtimeStarter, cfg.Replication.MaxChildren, metrics, zl)
	pruner := replication.NewPruner(st, cleaner, metrics, zl)

	replicateTool := agenttools.NewReplicateTool(spawner, identity.WalletAddress)
	toolRegistry := tooldispatch.NewRegistry(replicateTool)
	dispatcher := tooldispatch.NewDispatcher(toolRegistry, zl)

	sched := scheduler.New(zl)
	if err := sched.AddDiscoveryJob(cfg.Schedule.DiscoveryInterval, func(ctx context.Context) {
		n := registryRunner.RunAll(ctx)
		zl.Debug().Int("models_upserted", n).Msg("discovery sweep complete")
	}); err != nil {
		st.Close()
		return nil, fmt.Errorf("schedule discovery job: %w", err)
	}
	if err := sched.AddPruneJob(cfg.Schedule.PruneInterval, func(ctx context.Context) {
		pruned, err := pruner.PruneDeadChildren(ctx, cfg.Replication.PruneDeadKeepLast)
		if err != nil {
			zl.Warn().Err(err).Msg("prune sweep failed")
			return
		}
		zl.Debug().Int("pruned", pruned).Msg("prune sweep complete")
	}); err != nil {
		st.Close()
		return nil, fmt.Errorf("schedule prune job: %w", err)
	}

	heartbeatInterval, err := parseEvery(cfg.Schedule.HeartbeatInterval)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("parse schedule.heartbeatInterval: %w", err)
	}

	loop := agentloop.New(agentloop.Config{
		Store:             st,
		Router:            rt,
		Dispatcher:        dispatcher,
		Credits:           newStoreCreditSource(st),
		Metrics:           metrics,
		Logger:            zl,
		Thresholds:        cfg.TierThresholds,
		DefaultModel:      cfg.InferenceModel,
		HeartbeatInterval: heartbeatInterval,
		Identity:          *identity,
		SessionID:         session.ID,
	})

	var watcher *config.Watcher
	if loader != nil {
		watcher, err = config.NewWatcher(loader)
		if err != nil {
			zl.Warn().Err(err).Msg("config hot-reload unavailable, continuing with static thresholds")
			watcher = nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		cfg: cfg, log: log, store: st, metrics: metrics,
		router: rt, registryRunner: registryRunner,
		spawner: spawner, pruner: pruner, scheduler: sched, loop: loop, watcher: watcher,
		identity: *identity, sessionID: session.ID,
		pidFilePath: filepath.Join(cfg.DataDir, "moneyclaw.pid"),
		ctx:         ctx, cancel: cancel,
	}

	if cfg.Observability.MetricsEnabled {
		d.metricsServer = &http.Server{Addr: cfg.Observability.MetricsAddr, Handler: metrics.Handler()}
	}

	return d, nil
}

// resumeOrOpenSession reuses an already-open session left behind by an
// unclean shutdown (crash, kill -9) rather than erroring; starting fresh
// would orphan the prior session's turns without ever closing them.
func resumeOrOpenSession(st *store.Store) (*store.Session, error) {
	session, err := st.CurrentSession()
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}
	return st.OpenSession()
}

func buildProviderAdapters(cfg *config.Config) map[store.Provider]providers.LLMProvider {
	adapters := make(map[store.Provider]providers.LLMProvider)
	if cfg.ConwayAPIURL != "" {
		adapters[store.ProviderConway] = providers.NewOpenAIProvider("conway", cfg.ConwayAPIKey, cfg.ConwayAPIURL)
	}
	if cfg.OpenAIAPIKey != "" {
		adapters[store.ProviderOpenAI] = providers.NewOpenAIProvider("openai", cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	}
	if cfg.AnthropicAPIKey != "" {
		adapters[store.ProviderAnthropic] = providers.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL)
	}
	if cfg.OllamaBaseURL != "" {
		adapters[store.ProviderOllama] = providers.NewOllamaProvider(cfg.OllamaBaseURL)
	}
	return adapters
}

func buildDiscoverers(cfg *config.Config, httpClient *http.Client) []registry.Discoverer {
	var discoverers []registry.Discoverer
	if cfg.ConwayAPIURL != "" {
		discoverers = append(discoverers, registry.NewOpenAIDiscoverer(store.ProviderConway, cfg.ConwayAPIURL, cfg.ConwayAPIKey, httpClient))
	}
	if cfg.OpenAIAPIKey != "" {
		discoverers = append(discoverers, registry.NewOpenAIDiscoverer(store.ProviderOpenAI, cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, httpClient))
	}
	if cfg.AnthropicAPIKey != "" {
		discoverers = append(discoverers, registry.NewAnthropicDiscoverer(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey, httpClient))
	}
	if cfg.OllamaBaseURL != "" {
		discoverers = append(discoverers, registry.NewOllamaDiscoverer(cfg.OllamaBaseURL, httpClient))
	}
	return discoverers
}

func buildSandboxBackend(cfg *config.Config, zl zerolog.Logger) sandbox.Capability {
	limits := sandbox.DefaultResourceLimits()
	if cfg.Sandbox.Backend == "docker" {
		return sandbox.NewDockerBackend(cfg.Sandbox.Image, "", limits, zl)
	}
	return sandbox.NewHostBackend(filepath.Join(cfg.DataDir, "sandboxes"), limits, zl)
}

// parseEvery converts the "@every <duration>" shorthand internal/config
// uses for schedule.heartbeatInterval into a plain time.Duration; the loop
// consumes it directly instead of through the cron engine since the
// heartbeat is its own Run loop's yield timer, not a scheduler job.
func parseEvery(spec string) (time.Duration, error) {
	const prefix = "@every "
	if !strings.HasPrefix(spec, prefix) {
		return 0, fmt.Errorf("unsupported heartbeat interval spec %q (expected %q prefix)", spec, prefix)
	}
	return time.ParseDuration(strings.TrimPrefix(spec, prefix))
}

// Start begins background services: scheduled discovery/prune jobs, the
// config hot-reload watcher, the metrics server, and the agent loop itself
// (spec §4.2). It returns once everything has been launched; the loop runs
// in its own goroutine until Stop cancels its context or it self-terminates.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	zl := d.log.GetZerolog()

	if err := writePIDFile(d.pidFilePath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}

	d.scheduler.Start()

	if d.watcher != nil {
		d.watcher.Start(func(cfg *config.Config) {
			d.loop.SetThresholds(cfg.TierThresholds)
			zl.Info().Msg("tier thresholds reloaded from config")
		}, func(err error) {
			zl.Warn().Err(err).Msg("config reload failed, keeping previous thresholds")
		})
	}

	if d.metricsServer != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zl.Error().Err(err).Msg("metrics server stopped unexpectedly")
			}
		}()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.loop.Run(d.ctx); err != nil {
			zl.Error().Err(err).Msg("agent loop terminated with a fatal error")
		} else {
			zl.Info().Msg("agent loop exited")
		}
	}()

	zl.Info().Str("wallet", d.identity.WalletAddress).Msg("moneyclawd started")
	return nil
}

// Stop cancels the loop's context, stops background services, closes the
// session, and removes the pid file. Safe to call once; a second call is a
// no-op error rather than a panic.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon not running")
	}
	d.running = false
	d.mu.Unlock()

	zl := d.log.GetZerolog()
	d.cancel()

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			zl.Warn().Err(err).Msg("failed to stop config watcher")
		}
	}
	d.scheduler.Stop()

	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Shutdown(shutdownCtx); err != nil {
			zl.Warn().Err(err).Msg("metrics server shutdown error")
		}
	}

	d.wg.Wait()

	if err := d.store.CloseSession(); err != nil && !errors.Is(err, store.ErrNoOpenSession) {
		zl.Warn().Err(err).Msg("failed to close session cleanly")
	}
	if err := d.store.Close(); err != nil {
		zl.Warn().Err(err).Msg("failed to close store cleanly")
	}

	removePIDFile(d.pidFilePath)
	zl.Info().Msg("moneyclawd stopped")
	return nil
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon.
func (d *Daemon) Wait() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	zl := d.log.GetZerolog()
	zl.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	if err := d.Stop(); err != nil {
		zl.Error().Err(err).Msg("error stopping daemon")
	}
}

// currentTierKVKey mirrors agentloop's own unexported constant; duplicated
// here rather than exported across the package boundary since it is purely
// an implementation detail of how the loop persists its last-applied tier.
const currentTierKVKey = "current_tier"
