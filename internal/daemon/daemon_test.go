package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/moneyclaw/moneyclaw/internal/sandbox"
	"github.com/moneyclaw/moneyclaw/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "moneyclaw.db")
	s, err := store.Open(dbPath, zerolog.New(os.Stdout).Level(zerolog.Disabled))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResumeOrOpenSessionOpensFreshWhenNoneIsOpen(t *testing.T) {
	s := newTestStore(t)

	session, err := resumeOrOpenSession(s)
	require.NoError(t, err)
	require.NotNil(t, session)

	current, err := s.CurrentSession()
	require.NoError(t, err)
	assert.Equal(t, session.ID, current.ID)
}

func TestResumeOrOpenSessionReusesSessionLeftOpenByUncleanShutdown(t *testing.T) {
	s := newTestStore(t)
	opened, err := s.OpenSession()
	require.NoError(t, err)

	session, err := resumeOrOpenSession(s)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, opened.ID, session.ID)
}

func TestPIDFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moneyclaw.pid")

	require.NoError(t, writePIDFile(path))

	pid, err := ReadPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, ProcessRunning(pid), "the test process itself is always running")

	removePIDFile(path)
	_, err = ReadPIDFile(path)
	assert.Error(t, err)
}

func TestProcessRunningFalseForImpossiblePID(t *testing.T) {
	assert.False(t, ProcessRunning(1<<30))
}

func TestStoreCreditSourceDefaultsToUnconfirmedWhenUnpublished(t *testing.T) {
	s := newTestStore(t)
	cs := newStoreCreditSource(s)

	status, err := cs.ReadCredits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, status.Credits)
	assert.False(t, status.RecentTopupFailed)
	assert.True(t, status.TopupImpossible, "an unpublished wallet snapshot must fail safe toward dead, not toward spending blindly")
}

func TestStoreCreditSourceReadsPublishedSnapshot(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetKV(kvCredits, "42.5"))
	require.NoError(t, s.SetKV(kvRecentTopupFailed, "true"))
	require.NoError(t, s.SetKV(kvTopupImpossible, "false"))

	cs := newStoreCreditSource(s)
	status, err := cs.ReadCredits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42.5, status.Credits)
	assert.True(t, status.RecentTopupFailed)
	assert.False(t, status.TopupImpossible)
}

func TestNoopFunderAlwaysSucceeds(t *testing.T) {
	f := newNoopFunder(zerolog.New(os.Stdout).Level(zerolog.Disabled))
	assert.NoError(t, f.Fund(context.Background(), "0x1"))
}

type fakeSandbox struct {
	lastCommand string
	lastArgs    []string
	result      sandbox.ExecResult
	err         error
}

func (f *fakeSandbox) CreateSandbox(ctx context.Context, sandboxID string) error { return nil }

func (f *fakeSandbox) Exec(ctx context.Context, sandboxID, command string, args ...string) (sandbox.ExecResult, error) {
	f.lastCommand = command
	f.lastArgs = args
	return f.result, f.err
}

func (f *fakeSandbox) WriteFile(ctx context.Context, sandboxID, path string, content []byte) error {
	return nil
}

func (f *fakeSandbox) DeleteSandbox(ctx context.Context, sandboxID string) error { return nil }

func TestSandboxRuntimeStarterLaunchesChildBinary(t *testing.T) {
	fs := &fakeSandbox{result: sandbox.ExecResult{ExitCode: 0}}
	starter := newSandboxRuntimeStarter(fs)

	require.NoError(t, starter.Start(context.Background(), "sandbox-1"))
	assert.Equal(t, "sh", fs.lastCommand)
	assert.Contains(t, fs.lastArgs[1], "moneyclawd --run")
}

func TestSandboxRuntimeStarterReportsNonZeroExit(t *testing.T) {
	fs := &fakeSandbox{result: sandbox.ExecResult{ExitCode: 1, Stderr: "no such binary"}}
	starter := newSandboxRuntimeStarter(fs)

	err := starter.Start(context.Background(), "sandbox-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such binary")
}

func TestParseEveryRejectsNonEveryShorthand(t *testing.T) {
	_, err := parseEvery("0 * * * *")
	assert.Error(t, err)
}

func TestParseEveryAcceptsEveryShorthand(t *testing.T) {
	d, err := parseEvery("@every 30s")
	require.NoError(t, err)
	assert.Equal(t, "30s", d.String())
}
