package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HostBackend runs each sandbox as a dedicated working directory on the
// host, with commands invoked directly via os/exec. No process isolation
// beyond a scratch directory and resource limits applied per-call.
type HostBackend struct {
	limits  ResourceLimits
	logger  zerolog.Logger
	baseDir string

	mu   sync.Mutex
	dirs map[string]string
}

// NewHostBackend constructs a HostBackend rooted at baseDir (created if
// missing).
func NewHostBackend(baseDir string, limits ResourceLimits, logger zerolog.Logger) *HostBackend {
	return &HostBackend{limits: limits, logger: logger, baseDir: baseDir, dirs: make(map[string]string)}
}

func (h *HostBackend) CreateSandbox(ctx context.Context, sandboxID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.dirs[sandboxID]; exists {
		return ErrSandboxAlreadyExists
	}

	dir := filepath.Join(h.baseDir, sandboxID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sandbox dir: %w", err)
	}
	h.dirs[sandboxID] = dir

	h.logger.Info().Str("sandbox_id", sandboxID).Str("dir", dir).Msg("host sandbox created")
	return nil
}

func (h *HostBackend) dirFor(sandboxID string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	dir, ok := h.dirs[sandboxID]
	if !ok {
		return "", ErrSandboxNotFound
	}
	return dir, nil
}

func (h *HostBackend) Exec(ctx context.Context, sandboxID, command string, args ...string) (ExecResult, error) {
	dir, err := h.dirFor(sandboxID)
	if err != nil {
		return ExecResult{}, err
	}

	timeout := h.limits.Timeout
	if timeout <= 0 {
		timeout = DefaultResourceLimits().Timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, command, args...)
	cmd.Dir = dir
	cmd.Env = []string{"PATH=/usr/local/bin:/usr/bin:/bin", "HOME=" + dir}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if execCtx.Err() == context.DeadlineExceeded {
		return ExecResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: -1, Duration: duration},
			fmt.Errorf("sandbox %q command %q timed out after %s", sandboxID, command, timeout)
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return ExecResult{}, fmt.Errorf("sandbox %q command %q failed to start: %w", sandboxID, command, runErr)
		}
	}

	h.logger.Debug().Str("sandbox_id", sandboxID).Str("command", command).Int("exit_code", exitCode).Dur("duration", duration).Msg("host sandbox command executed")

	return ExecResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode, Duration: duration}, nil
}

func (h *HostBackend) WriteFile(ctx context.Context, sandboxID, path string, content []byte) error {
	dir, err := h.dirFor(sandboxID)
	if err != nil {
		return err
	}
	full := filepath.Join(dir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create parent dirs for %q: %w", path, err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return fmt.Errorf("write file %q: %w", path, err)
	}
	return nil
}

func (h *HostBackend) DeleteSandbox(ctx context.Context, sandboxID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	dir, ok := h.dirs[sandboxID]
	if !ok {
		return ErrSandboxNotFound
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove sandbox dir: %w", err)
	}
	delete(h.dirs, sandboxID)

	h.logger.Info().Str("sandbox_id", sandboxID).Msg("host sandbox deleted")
	return nil
}
