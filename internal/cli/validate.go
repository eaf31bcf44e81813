package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/conform/internal/build"
	"github.com/roach88/conform/internal/config"
	"github.com/roach88/conform/internal/spec"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool          `json:"valid"`
	Specs    []SpecSummary `json:"specs"`
	Cases    int           `json:"cases"`
	Binaries []string      `json:"binaries"`
}

// SpecSummary describes one loaded spec source.
type SpecSummary struct {
	Source string `json:"source"`
	Binary string `json:"binary"`
	Cases  int    `json:"cases"`
}

// validateOptions holds flags for the validate command.
type validateOptions struct {
	*RootOptions
	Filter string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &validateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [test-dir]",
		Short: "Validate specs without building or running",
		Long: `Load and validate every spec source in <test-dir>/cases.

Checks structure, required fields, duplicate case names and hex fields
without invoking the build tool or the harness. Faster than run for
fixture authoring.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(opts, dir, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter spec files by glob pattern")

	return cmd
}

func runValidate(opts *validateOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := config.Load(config.Options{TestDir: dir})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	specs, err := spec.LoadDir(cfg.CasesDir, opts.Filter)
	if err != nil {
		var loadErr *spec.LoadError
		if errors.As(err, &loadErr) && opts.Format == "json" {
			// Structured details let editors point at the offending case.
			if encErr := formatter.Error(ErrCodeLoadFailed, "validation failed", map[string]string{
				"source": loadErr.Source,
				"case":   loadErr.Case,
				"reason": loadErr.Error(),
			}); encErr != nil {
				return encErr
			}
			return &ExitError{Code: ExitCommandError, Message: "validation failed", Err: err, Reported: true}
		}
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, "validation failed", err)
	}

	result := ValidationResult{
		Valid:    true,
		Specs:    make([]SpecSummary, 0, len(specs)),
		Cases:    spec.CaseCount(specs),
		Binaries: build.Targets(spec.Binaries(specs)),
	}
	for _, sp := range specs {
		formatter.VerboseLog("Validated %s: %s, %d case(s)", sp.Source, sp.Binary, len(sp.Cases))
		result.Specs = append(result.Specs, SpecSummary{
			Source: sp.Source,
			Binary: sp.Binary,
			Cases:  len(sp.Cases),
		})
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	for _, s := range result.Specs {
		fmt.Fprintf(w, "✓ %s (%s, %d case(s))\n", filepath.Base(s.Source), s.Binary, s.Cases)
	}
	fmt.Fprintf(w, "\nValid: %d spec(s), %d case(s), binaries: %s\n",
		len(result.Specs), result.Cases, strings.Join(result.Binaries, ", "))
	return nil
}
