// Package scheduler drives the three independently configurable ticks the
// agent loop needs outside its own heartbeat cadence: discovery refresh and
// dead-child pruning. Narrowed from pkg/cron/service.go's user-facing job
// table (AddJob/UpdateJob/RemoveJob over arbitrary schedules) to three
// fixed internal jobs, since ad-hoc job CRUD belongs to the out-of-scope
// CLI.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler wraps a robfig/cron engine with the fixed set of background
// ticks the runtime needs.
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger
}

// New builds a Scheduler. Cron expressions follow robfig/cron/v3 syntax,
// including the "@every 30s" shorthand used throughout internal/config.
func New(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cronLogger{logger}))),
		logger: logger,
	}
}

// AddDiscoveryJob registers the model registry discovery refresh.
func (s *Scheduler) AddDiscoveryJob(spec string, run func(ctx context.Context)) error {
	return s.addJob("discovery", spec, run)
}

// AddPruneJob registers the dead-child pruning sweep.
func (s *Scheduler) AddPruneJob(spec string, run func(ctx context.Context)) error {
	return s.addJob("prune", spec, run)
}

// AddHeartbeatJob registers an out-of-band heartbeat nudge, used when the
// agent loop's own yield timer should be supplemented by a fixed external
// cadence (e.g. to wake a loop that backed off past the normal interval).
func (s *Scheduler) AddHeartbeatJob(spec string, run func(ctx context.Context)) error {
	return s.addJob("heartbeat", spec, run)
}

func (s *Scheduler) addJob(name, spec string, run func(ctx context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Debug().Str("job", name).Msg("scheduled job firing")
		run(context.Background())
	})
	if err != nil {
		return err
	}
	return nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for any in-flight job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger adapts zerolog to cron.Logger so a panicking job is recorded
// rather than silently swallowed by cron.Recover.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
