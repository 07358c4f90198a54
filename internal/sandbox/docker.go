package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DockerBackend runs each sandbox as a long-lived, network-isolated-by-default
// container: CreateSandbox does `docker create`+`docker start`, Exec runs
// `docker exec`, WriteFile streams content in over `docker cp`, and
// DeleteSandbox does `docker rm -f`. Resource flags follow the teacher's
// docker.go argument building (cpus/memory/pids-limit/network).
type DockerBackend struct {
	image   string
	limits  ResourceLimits
	network string
	logger  zerolog.Logger

	mu         sync.Mutex
	containers map[string]struct{}
}

// NewDockerBackend constructs a DockerBackend using image for every
// sandbox. network is the docker --network mode; an empty value means
// "none" (no network access), matching the spec's default-deny posture.
func NewDockerBackend(image, network string, limits ResourceLimits, logger zerolog.Logger) *DockerBackend {
	return &DockerBackend{image: image, limits: limits, network: network, logger: logger, containers: make(map[string]struct{})}
}

// CheckDocker verifies the Docker daemon is reachable.
func CheckDocker(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "ps", "-q").Run(); err != nil {
		return fmt.Errorf("docker is not available: %w", err)
	}
	return nil
}

func (d *DockerBackend) CreateSandbox(ctx context.Context, sandboxID string) error {
	d.mu.Lock()
	if _, exists := d.containers[sandboxID]; exists {
		d.mu.Unlock()
		return ErrSandboxAlreadyExists
	}
	d.mu.Unlock()

	args := d.runArgs(sandboxID)
	cmd := exec.CommandContext(ctx, "docker", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker run sandbox %q: %w: %s", sandboxID, err, stderr.String())
	}

	d.mu.Lock()
	d.containers[sandboxID] = struct{}{}
	d.mu.Unlock()

	d.logger.Info().Str("sandbox_id", sandboxID).Str("image", d.image).Msg("docker sandbox created")
	return nil
}

func (d *DockerBackend) runArgs(sandboxID string) []string {
	network := d.network
	if network == "" {
		network = "none"
	}

	args := []string{"run", "-d", "--init", "--name", containerName(sandboxID), "--network", network}

	if d.limits.MaxCPUPercent > 0 {
		cpus := float64(d.limits.MaxCPUPercent) / 100.0
		args = append(args, "--cpus", strconv.FormatFloat(cpus, 'f', 2, 64))
	}
	if d.limits.MaxMemoryMB > 0 {
		args = append(args, "--memory", fmt.Sprintf("%dm", d.limits.MaxMemoryMB))
	}
	if d.limits.MaxProcesses > 0 {
		args = append(args, "--pids-limit", strconv.Itoa(d.limits.MaxProcesses))
	}

	image := d.image
	if image == "" {
		image = "alpine:latest"
	}
	// sleep infinity keeps the container alive between exec calls; the
	// sandbox's lifetime is the caller's responsibility via DeleteSandbox.
	args = append(args, image, "sleep", "infinity")
	return args
}

func (d *DockerBackend) exists(sandboxID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.containers[sandboxID]
	return ok
}

func (d *DockerBackend) Exec(ctx context.Context, sandboxID, command string, args ...string) (ExecResult, error) {
	if !d.exists(sandboxID) {
		return ExecResult{}, ErrSandboxNotFound
	}

	timeout := d.limits.Timeout
	if timeout <= 0 {
		timeout = DefaultResourceLimits().Timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dockerArgs := append([]string{"exec", containerName(sandboxID), command}, args...)
	cmd := exec.CommandContext(execCtx, "docker", dockerArgs...)

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

	d.logger.Debug().Str("sandbox_id", sandboxID).Str("command", command).Int("exit_code", exitCode).Dur("duration", duration).Msg("docker sandbox command executed")

	return ExecResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode, Duration: duration}, nil
}

func (d *DockerBackend) WriteFile(ctx context.Context, sandboxID, path string, content []byte) error {
	if !d.exists(sandboxID) {
		return ErrSandboxNotFound
	}

	// docker cp reads an archive or a single file from stdin via "-"; a
	// plain `docker exec sh -c 'cat > path'` avoids building a tar stream.
	cmd := exec.CommandContext(ctx, "docker", "exec", "-i", containerName(sandboxID), "sh", "-c", "cat > "+shellQuote(path))
	cmd.Stdin = bytes.NewReader(content)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("write file %q in sandbox %q: %w: %s", path, sandboxID, err, stderr.String())
	}
	return nil
}

func (d *DockerBackend) DeleteSandbox(ctx context.Context, sandboxID string) error {
	if !d.exists(sandboxID) {
		return ErrSandboxNotFound
	}

	cmd := exec.CommandContext(ctx, "docker", "rm", "-f", containerName(sandboxID))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("delete sandbox %q: %w: %s", sandboxID, err, stderr.String())
	}

	d.mu.Lock()
	delete(d.containers, sandboxID)
	d.mu.Unlock()

	d.logger.Info().Str("sandbox_id", sandboxID).Msg("docker sandbox deleted")
	return nil
}

func containerName(sandboxID string) string {
	return "moneyclaw-sandbox-" + sandboxID
}

func shellQuote(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'"'"'`) + "'"
}
