package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHostBackend(t *testing.T) *HostBackend {
	t.Helper()
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	limits := ResourceLimits{Timeout: 5 * time.Second}
	return NewHostBackend(t.TempDir(), limits, logger)
}

func TestHostBackendFullLifecycle(t *testing.T) {
	b := newTestHostBackend(t)
	ctx := context.Background()

	require.NoError(t, b.CreateSandbox(ctx, "child-1"))

	result, err := b.Exec(ctx, "child-1", "echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Stdout, "hello")

	require.NoError(t, b.WriteFile(ctx, "child-1", "genesis.txt", []byte("genesis prompt")))

	readBack, err := b.Exec(ctx, "child-1", "cat", "genesis.txt")
	require.NoError(t, err)
	assert.Equal(t, "genesis prompt", readBack.Stdout)

	require.NoError(t, b.DeleteSandbox(ctx, "child-1"))

	_, err = b.Exec(ctx, "child-1", "echo", "hi")
	assert.ErrorIs(t, err, ErrSandboxNotFound)
}

func TestHostBackendCreateSandboxTwiceFails(t *testing.T) {
	b := newTestHostBackend(t)
	ctx := context.Background()

	require.NoError(t, b.CreateSandbox(ctx, "child-1"))
	err := b.CreateSandbox(ctx, "child-1")
	assert.ErrorIs(t, err, ErrSandboxAlreadyExists)
}

func TestHostBackendExecNonZeroExit(t *testing.T) {
	b := newTestHostBackend(t)
	ctx := context.Background()
	require.NoError(t, b.CreateSandbox(ctx, "child-1"))

	result, err := b.Exec(ctx, "child-1", "sh", "-c", "exit 7")
	require.NoError(t, err)
	assert.Equal(t, 7, result.ExitCode)
}

func TestHostBackendWriteFileCreatesParentDirs(t *testing.T) {
	b := newTestHostBackend(t)
	ctx := context.Background()
	require.NoError(t, b.CreateSandbox(ctx, "child-1"))

	require.NoError(t, b.WriteFile(ctx, "child-1", "nested/deep/file.txt", []byte("payload")))

	dir, err := b.dirFor("child-1")
	require.NoError(t, err)
	content, err := os.ReadFile(filepath.Join(dir, "nested", "deep", "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))
}

func TestHostBackendDeleteUnknownSandbox(t *testing.T) {
	b := newTestHostBackend(t)
	err := b.DeleteSandbox(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrSandboxNotFound)
}
