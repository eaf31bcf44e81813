package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/conform/internal/build"
	"github.com/roach88/conform/internal/config"
	"github.com/roach88/conform/internal/harness"
	"github.com/roach88/conform/internal/report"
	"github.com/roach88/conform/internal/spec"
	"github.com/roach88/conform/internal/store"
	"github.com/roach88/conform/internal/suite"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Filter    string        // spec filter (glob pattern on file name)
	Harness   string        // harness path, overrides RVI
	Jobs      int           // cases run at once
	Timeout   time.Duration // per-case limit, 0 disables
	History   string        // run-history database
	SkipBuild bool          // do not invoke the build tool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [test-dir]",
		Short: "Build binaries and run every case under the harness",
		Long: `Load the specs in <test-dir>/cases, build the binaries they name with
one build-tool invocation, then run each case as "harness <binary>"
with the case's stdin and compare exit code and stdout byte for byte.

The harness is taken from --harness, then $RVI (also read from .env),
then conform.toml, defaulting to ../build/rvi.

Exit codes:
  0 - All cases passed
  1 - One or more cases failed, a binary was missing, or the build failed
  2 - Command error (invalid specs, missing harness, bad configuration)

Examples:
  conform run
  conform run ./tests --filter "arith*"
  RVI=/opt/rvi conform run ./tests --jobs 8 --timeout 10s
  conform run ./tests --history history.db --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runRun(opts, dir, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter spec files by glob pattern")
	cmd.Flags().StringVar(&opts.Harness, "harness", "", "harness binary (overrides $RVI)")
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 1, "number of cases to run in parallel")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "per-case time limit (0 = none)")
	cmd.Flags().StringVar(&opts.History, "history", "", "record the run in this SQLite database")
	cmd.Flags().BoolVar(&opts.SkipBuild, "skip-build", false, "do not invoke the build tool")

	return cmd
}

// resolveConfig layers command-line flags over the loaded configuration.
func resolveConfig(opts *RunOptions, dir string, cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(config.Options{TestDir: dir, EnvFile: ".env"})
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("harness") {
		if cfg.Harness, err = filepath.Abs(opts.Harness); err != nil {
			return nil, err
		}
	}
	if flags.Changed("jobs") {
		cfg.Jobs = opts.Jobs
	}
	if flags.Changed("timeout") {
		cfg.Timeout = opts.Timeout
	}
	if flags.Changed("history") {
		if cfg.History, err = filepath.Abs(opts.History); err != nil {
			return nil, err
		}
	}

	return cfg, cfg.Validate()
}

func runRun(opts *RunOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := resolveConfig(opts, dir, cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}
	formatter.VerboseLog("Test directory: %s", cfg.TestDir)
	formatter.VerboseLog("Harness: %s", cfg.Harness)

	specs, err := spec.LoadDir(cfg.CasesDir, opts.Filter)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, "failed to load specs", err)
	}
	formatter.VerboseLog("Loaded %d spec(s), %d case(s)", len(specs), spec.CaseCount(specs))

	var (
		textReporter *report.TextReporter
		jsonReporter *report.JSONReporter
		reporter     report.Reporter
	)
	if opts.Format == "json" {
		jsonReporter = report.NewJSONReporter()
		reporter = jsonReporter
	} else {
		textReporter = report.NewTextReporter(cmd.OutOrStdout(), cmd.ErrOrStderr(),
			useColor(opts.RootOptions, cmd.OutOrStdout()))
		reporter = textReporter
	}

	runner := &suite.Runner{
		TestDir:   cfg.TestDir,
		Driver:    harness.New(cfg.Harness, cfg.TestDir, cfg.Timeout, logger),
		Reporter:  reporter,
		Artifacts: report.NewArtifacts(cfg.LogsDir),
		Jobs:      cfg.Jobs,
		Logger:    logger,
	}

	if !opts.SkipBuild {
		builder := build.New(cfg.BuildCommand, cfg.TestDir, logger)
		// Keep build chatter off stdout when it carries JSON.
		builder.Stdout = buildOutput(opts, cmd)
		builder.Stderr = cmd.ErrOrStderr()
		runner.Builder = builder
	}

	if cfg.History != "" {
		s, err := store.Open(cfg.History)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeHistory, "failed to open history database", err)
		}
		defer s.Close()
		runner.Recorder = s
	}

	sum, err := runner.Run(cmd.Context(), specs)
	if err != nil {
		return runFailure(formatter, err)
	}

	if jsonReporter != nil {
		return outputRunJSON(formatter, sum, jsonReporter.Report())
	}
	if !sum.OK() {
		return &ExitError{
			Code:     ExitFailure,
			Message:  fmt.Sprintf("%d case(s) failed", sum.Failures),
			Reported: true,
		}
	}
	return nil
}

func buildOutput(opts *RunOptions, cmd *cobra.Command) io.Writer {
	if opts.Format == "json" {
		return cmd.ErrOrStderr()
	}
	return cmd.OutOrStdout()
}

// runFailure maps a run that stopped early to an exit code.
func runFailure(formatter *OutputFormatter, err error) error {
	switch {
	case suite.IsBuildFailure(err):
		return formatter.Fail(ExitFailure, ErrCodeBuildFailed, "run stopped", err)
	case errors.Is(err, harness.ErrNotFound):
		return formatter.Fail(ExitCommandError, ErrCodeHarness, "cannot run cases", fmt.Errorf("%w (set %s)", err, harness.EnvVar))
	case errors.Is(err, context.Canceled):
		return formatter.Fail(ExitCommandError, ErrCodeInterrupted, "run interrupted", err)
	default:
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "run failed", err)
	}
}

// outputRunJSON writes the run report as a single response document.
func outputRunJSON(formatter *OutputFormatter, sum *report.Summary, result report.RunReport) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
		RunID:  sum.RunID,
	}
	if !sum.OK() {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeCasesFailed,
			Message: fmt.Sprintf("%d case(s) failed", sum.Failures),
		}
	}

	if err := formatter.encode(response); err != nil {
		return err
	}

	if !sum.OK() {
		return &ExitError{
			Code:     ExitFailure,
			Message:  response.Error.Message,
			Reported: true,
		}
	}
	return nil
}
