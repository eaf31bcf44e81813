package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// EnvVar names the environment variable that locates the harness.
const EnvVar = "RVI"

// DefaultPath is used when EnvVar is unset.
const DefaultPath = "../build/rvi"

// waitDelay bounds how long Wait keeps reading pipes after the harness
// exits or is killed, in case a grandchild inherited them.
const waitDelay = 2 * time.Second

// ErrNotFound is returned by Check when the harness executable is absent.
var ErrNotFound = errors.New("harness binary not found")

// Result is the observable outcome of one harness invocation.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration

	// TimedOut is set when the invocation was killed by Driver.Timeout.
	TimedOut bool
}

// Driver runs target binaries under the harness.
type Driver struct {
	// Path is the harness executable.
	Path string

	// Dir is the working directory for every invocation.
	Dir string

	// Timeout bounds each invocation. Zero means no limit.
	Timeout time.Duration

	Logger *slog.Logger
}

// New creates a Driver.
func New(path, dir string, timeout time.Duration, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Driver{
		Path:    path,
		Dir:     dir,
		Timeout: timeout,
		Logger:  logger,
	}
}

// Check verifies the harness exists and is not a directory.
func (d *Driver) Check() error {
	info, err := os.Stat(d.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w at %s", ErrNotFound, d.Path)
		}
		return fmt.Errorf("stat harness: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("harness path %s is a directory", d.Path)
	}
	return nil
}

// Run executes target under the harness, feeding stdin, and blocks until
// the harness terminates.
//
// A non-zero exit is reported in Result, not as an error. Errors are
// returned only when the harness could not be run at all or ctx was
// cancelled.
func (d *Driver) Run(ctx context.Context, target string, stdin []byte) (*Result, error) {
	runCtx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, d.Path, target)
	cmd.Dir = d.Dir
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err := cmd.Run()
	result := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	// The caller's context wins over the per-case deadline.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	timedOut := d.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded)
	if err := d.runError(err, cmd.ProcessState, timedOut, target); err != nil {
		return nil, err
	}

	result.ExitCode = exitStatus(cmd.ProcessState)
	result.TimedOut = timedOut

	d.Logger.Debug("harness finished",
		"target", target,
		"exit_code", result.ExitCode,
		"stdout_bytes", len(result.Stdout),
		"stderr_bytes", len(result.Stderr),
		"duration", result.Duration,
		"timed_out", result.TimedOut,
	)
	return result, nil
}

// runError sorts the error from cmd.Run. Outcomes reported through Result
// yield nil; anything else means the harness could not be run.
func (d *Driver) runError(err error, state *os.ProcessState, timedOut bool, target string) error {
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		// Non-zero exit; reported through ExitCode.
	case timedOut && errors.Is(err, context.DeadlineExceeded):
		// The deadline fired as the harness was exiting; Wait reports the
		// context error instead of the exit status.
	case errors.Is(err, exec.ErrWaitDelay) && state != nil:
		d.Logger.Warn("harness left output pipes open", "target", target)
	default:
		return fmt.Errorf("run harness: %w", err)
	}
	return nil
}

// exitStatus maps a finished process to a signed exit code. A process that
// was never waited on reports -1.
func exitStatus(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -int(ws.Signal())
	}
	return state.ExitCode()
}
