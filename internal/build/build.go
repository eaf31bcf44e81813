// Package build invokes the external build tool for the binaries a run
// needs. The tool is opaque: it receives every target in one invocation
// and reports success through its exit status.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// DefaultCommand is the build tool used when none is configured.
var DefaultCommand = []string{"make"}

// ErrNoTargets is returned when a build is requested for zero binaries.
var ErrNoTargets = errors.New("no binaries requested for build")

// Error reports a build tool that exited unsuccessfully.
type Error struct {
	Targets  []string
	ExitCode int
	Err      error
}

func (e *Error) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("build failed for %v: exit status %d", e.Targets, e.ExitCode)
	}
	return fmt.Sprintf("build failed for %v: %v", e.Targets, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Builder runs the build tool in a fixed directory.
type Builder struct {
	// Command is the tool and its leading arguments; targets are appended.
	Command []string

	// Dir is the working directory of the tool.
	Dir string

	// Stdout and Stderr receive the tool's output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer

	Logger *slog.Logger
}

// New creates a Builder running command in dir.
// An empty command falls back to DefaultCommand.
func New(command []string, dir string, logger *slog.Logger) *Builder {
	if len(command) == 0 {
		command = DefaultCommand
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Builder{
		Command: command,
		Dir:     dir,
		Logger:  logger,
	}
}

// Targets deduplicates and sorts binary names.
func Targets(binaries []string) []string {
	set := mapset.NewSet[string](binaries...)
	targets := set.ToSlice()
	sort.Strings(targets)
	return targets
}

// Build invokes the tool once for the distinct set of binaries.
// It is not retried; any failure is fatal for the run.
func (b *Builder) Build(ctx context.Context, binaries []string) error {
	targets := Targets(binaries)
	if len(targets) == 0 {
		return ErrNoTargets
	}

	args := append(append([]string{}, b.Command[1:]...), targets...)
	cmd := exec.CommandContext(ctx, b.Command[0], args...)
	cmd.Dir = b.Dir
	cmd.Stdout = b.Stdout
	cmd.Stderr = b.Stderr

	b.Logger.Debug("building targets", "tool", b.Command[0], "targets", targets, "dir", b.Dir)

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &Error{Targets: targets, ExitCode: exitErr.ExitCode(), Err: err}
		}
		return &Error{Targets: targets, ExitCode: -1, Err: err}
	}

	b.Logger.Debug("build finished", "targets", len(targets))
	return nil
}
