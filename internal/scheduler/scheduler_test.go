package scheduler

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.Disabled)
}

func TestSchedulerRunsRegisteredJobsOnInterval(t *testing.T) {
	s := New(newTestLogger())

	var discoveryRuns, pruneRuns int32
	require.NoError(t, s.AddDiscoveryJob("@every 20ms", func(ctx context.Context) {
		atomic.AddInt32(&discoveryRuns, 1)
	}))
	require.NoError(t, s.AddPruneJob("@every 20ms", func(ctx context.Context) {
		atomic.AddInt32(&pruneRuns, 1)
	}))

	s.Start()
	time.Sleep(90 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&discoveryRuns), int32(2))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&pruneRuns), int32(2))
}

func TestSchedulerRejectsInvalidCronExpression(t *testing.T) {
	s := New(newTestLogger())
	err := s.AddDiscoveryJob("not a cron expression", func(ctx context.Context) {})
	assert.Error(t, err)
}

func TestSchedulerStopWaitsForInFlightJob(t *testing.T) {
	s := New(newTestLogger())

	var finished int32
	require.NoError(t, s.AddHeartbeatJob("@every 10ms", func(ctx context.Context) {
		time.Sleep(30 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
	}))

	s.Start()
	time.Sleep(15 * time.Millisecond)
	s.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&finished))
}
