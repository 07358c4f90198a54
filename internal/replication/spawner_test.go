package replication

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/moneyclaw/moneyclaw/internal/observability"
	"github.com/moneyclaw/moneyclaw/internal/sandbox"
	"github.com/moneyclaw/moneyclaw/internal/store"
	"github.com/moneyclaw/moneyclaw/internal/walletaddr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSandbox is a hand-rolled sandbox.Capability for scripting exec
// output and recording which calls were made, mirroring
// internal/router's fakeProvider.
type fakeSandbox struct {
	created  map[string]bool
	deleted  []string
	execFunc func(sandboxID, command string, args ...string) (sandbox.ExecResult, error)
}

func newFakeSandbox() *fakeSandbox {
	return &fakeSandbox{created: map[string]bool{}}
}

func (f *fakeSandbox) CreateSandbox(ctx context.Context, sandboxID string) error {
	f.created[sandboxID] = true
	return nil
}

func (f *fakeSandbox) Exec(ctx context.Context, sandboxID, command string, args ...string) (sandbox.ExecResult, error) {
	if f.execFunc != nil {
		return f.execFunc(sandboxID, command, args...)
	}
	return sandbox.ExecResult{ExitCode: 0}, nil
}

func (f *fakeSandbox) WriteFile(ctx context.Context, sandboxID, path string, content []byte) error {
	return nil
}

func (f *fakeSandbox) DeleteSandbox(ctx context.Context, sandboxID string) error {
	f.deleted = append(f.deleted, sandboxID)
	return nil
}

type fakeFunder struct {
	funded []string
	err    error
}

func (f *fakeFunder) Fund(ctx context.Context, childAddress string) error {
	f.funded = append(f.funded, childAddress)
	return f.err
}

type fakeRuntimeStarter struct {
	started []string
	err     error
}

func (f *fakeRuntimeStarter) Start(ctx context.Context, sandboxID string) error {
	f.started = append(f.started, sandboxID)
	return f.err
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "moneyclaw.db")
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	s, err := store.Open(dbPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var validChildAddr = "0x" + strings.Repeat("1", 40)

func withWalletStdout(addr string) func(sandboxID, command string, args ...string) (sandbox.ExecResult, error) {
	calls := 0
	return func(sandboxID, command string, args ...string) (sandbox.ExecResult, error) {
		calls++
		if calls == 1 {
			// install-runtime-deps.sh
			return sandbox.ExecResult{ExitCode: 0}, nil
		}
		return sandbox.ExecResult{ExitCode: 0, Stdout: "Wallet: " + addr}, nil
	}
}

func TestSpawnFullSuccess(t *testing.T) {
	s := newTestStore(t)
	fs := newFakeSandbox()
	fs.execFunc = withWalletStdout(validChildAddr)
	funder := &fakeFunder{}
	runtime := &fakeRuntimeStarter{}
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	sp := NewSpawner(s, fs, funder, runtime, 0, observability.NewMetrics(), logger)
	child, err := sp.Spawn(context.Background(), "0xparent", "grow the family", 1)
	require.NoError(t, err)
	require.NotNil(t, child)

	assert.Equal(t, store.ChildHealthy, child.Status)
	assert.Equal(t, validChildAddr, child.Address)
	assert.Contains(t, funder.funded, validChildAddr)
	assert.Contains(t, runtime.started, child.SandboxID)

	persisted, err := s.GetChild(child.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ChildHealthy, persisted.Status)

	latest, err := s.LatestState(child.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ChildHealthy, latest.ToState)
	assert.Equal(t, TransitionHealthy, latest.Transition)

	events, err := s.ListLifecycleEvents(child.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(events), 3)
}

// spec §8 scenario 1: the init command reports the zero address; Spawn must
// reject it, delete the sandbox, and leave no child row behind.
func TestSpawnRejectsZeroWalletAddress(t *testing.T) {
	s := newTestStore(t)
	fs := newFakeSandbox()
	fs.execFunc = withWalletStdout(walletaddr.ZeroAddress)
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	sp := NewSpawner(s, fs, nil, nil, 0, observability.NewMetrics(), logger)
	child, err := sp.Spawn(context.Background(), "0xparent", "grow the family", 1)

	require.Error(t, err)
	assert.Nil(t, child)
	assert.True(t, strings.Contains(err.Error(), "invalid"))

	require.Len(t, fs.deleted, 1)

	count, err := s.CountChildren()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

// spec §8 scenario 2: sandbox creation itself fails, so there is nothing to
// delete and no child row to roll back.
func TestSpawnPropagatesSandboxCreateFailureWithoutDelete(t *testing.T) {
	s := newTestStore(t)
	fs := newFakeSandbox()
	failing := &failingCreateSandbox{fakeSandbox: fs}
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	sp := NewSpawner(s, failing, nil, nil, 0, observability.NewMetrics(), logger)
	child, err := sp.Spawn(context.Background(), "0xparent", "grow the family", 1)

	require.Error(t, err)
	assert.Nil(t, child)
	assert.Empty(t, fs.deleted)

	count, err := s.CountChildren()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

type failingCreateSandbox struct {
	*fakeSandbox
}

func (f *failingCreateSandbox) CreateSandbox(ctx context.Context, sandboxID string) error {
	return errDockerUnreachable
}

var errDockerUnreachable = errors.New("docker daemon unreachable")

func TestSpawnRejectsWhenAtMaxChildren(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InsertChild(store.Child{
		ID: "existing", Name: "c", Address: validChildAddr, SandboxID: "sb-1",
		Status: store.ChildHealthy,
	}))

	fs := newFakeSandbox()
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	sp := NewSpawner(s, fs, nil, nil, 1, observability.NewMetrics(), logger)

	child, err := sp.Spawn(context.Background(), "0xparent", "grow", 1)
	require.Error(t, err)
	assert.Nil(t, child)
	var maxErr *ErrMaxChildrenReached
	assert.ErrorAs(t, err, &maxErr)
}
