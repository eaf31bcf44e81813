package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/roach88/conform/internal/spec"
	"github.com/roach88/conform/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	DBPath string
	Limit  int
	RunID  string
	Case   string
	Binary string
	Stream string
}

// RunHistory is the JSON form of one recorded run.
type RunHistory struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	TestDir    string        `json:"test_dir"`
	Harness    string        `json:"harness"`
	Status     string        `json:"status"`
	Total      int           `json:"total"`
	Failures   int           `json:"failures"`
	Missing    int           `json:"missing"`
	Cases      []CaseHistory `json:"cases,omitempty"`
}

// CaseHistory is the JSON form of one recorded case.
type CaseHistory struct {
	Binary     string   `json:"binary"`
	Case       string   `json:"case"`
	Pass       bool     `json:"pass"`
	ExitCode   *int     `json:"exit_code,omitempty"`
	Errors     []string `json:"errors,omitempty"`
	DurationMS int64    `json:"duration_ms"`
	StdoutHex  string   `json:"stdout_hex,omitempty"`
	StderrHex  string   `json:"stderr_hex,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Long: `List runs recorded with "conform run --history", newest first.

With --run, show the cases of one run instead. Adding --case writes the
captured stdout (or --stream stderr) of that case as raw bytes; only
failing cases keep their streams. Use --binary when the case name is
shared by several binaries.

Examples:
  conform history --db history.db
  conform history --db history.db --limit 5
  conform history --db history.db --run 0192f0c8-...
  conform history --db history.db --run 0192f0c8-... --case hello --stream stderr`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "path to the history database (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to list (0 = all)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show the cases of this run")
	cmd.Flags().StringVar(&opts.Case, "case", "", "write the captured stream of this case (requires --run)")
	cmd.Flags().StringVar(&opts.Binary, "binary", "", "binary of the --case, when the name is ambiguous")
	cmd.Flags().StringVar(&opts.Stream, "stream", "stdout", "stream written by --case: stdout or stderr")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Case != "" && opts.RunID == "" {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "--case requires --run", nil)
	}
	if opts.Stream != "stdout" && opts.Stream != "stderr" {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput,
			fmt.Sprintf("invalid --stream %q (want stdout or stderr)", opts.Stream), nil)
	}

	// Opening would create an empty database; a typo should fail instead.
	if _, err := os.Stat(opts.DBPath); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeHistory, "history database not found", err)
	}

	s, err := store.Open(opts.DBPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeHistory, "failed to open history database", err)
	}
	defer s.Close()

	ctx := cmd.Context()

	if opts.RunID != "" {
		run, err := s.GetRun(ctx, opts.RunID)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeHistory, "failed to read run", err)
		}
		cases, err := s.RunCases(ctx, opts.RunID)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeHistory, "failed to read cases", err)
		}

		if opts.Case != "" {
			return writeCaseStream(opts, cmd, formatter, cases)
		}

		if opts.Format == "json" {
			h := toRunHistory(run)
			h.Cases = make([]CaseHistory, 0, len(cases))
			for _, c := range cases {
				h.Cases = append(h.Cases, toCaseHistory(c))
			}
			return formatter.Success(h)
		}
		renderCases(cmd, run, cases)
		return nil
	}

	runs, err := s.ListRuns(ctx, opts.Limit)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeHistory, "failed to list runs", err)
	}

	if opts.Format == "json" {
		out := make([]RunHistory, 0, len(runs))
		for _, r := range runs {
			out = append(out, toRunHistory(r))
		}
		return formatter.Success(out)
	}

	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}
	renderRuns(cmd, runs)
	return nil
}

func toRunHistory(r store.Run) RunHistory {
	h := RunHistory{
		ID:        r.ID,
		StartedAt: r.StartedAt,
		TestDir:   r.TestDir,
		Harness:   r.Harness,
		Status:    r.Status,
		Total:     r.Total,
		Failures:  r.Failures,
		Missing:   r.Missing,
	}
	if !r.FinishedAt.IsZero() {
		finished := r.FinishedAt
		h.FinishedAt = &finished
	}
	return h
}

func toCaseHistory(c store.CaseRecord) CaseHistory {
	return CaseHistory{
		Binary:     c.Binary,
		Case:       c.Case,
		Pass:       c.Passed,
		ExitCode:   c.ExitCode,
		Errors:     c.Issues,
		DurationMS: c.Duration.Milliseconds(),
		StdoutHex:  spec.EncodeHex(c.Stdout),
		StderrHex:  spec.EncodeHex(c.Stderr),
	}
}

// writeCaseStream writes one recorded stream of the selected case. Text
// output is the raw captured bytes; JSON output is the CaseHistory.
func writeCaseStream(opts *HistoryOptions, cmd *cobra.Command, formatter *OutputFormatter, cases []store.CaseRecord) error {
	var matches []store.CaseRecord
	for _, c := range cases {
		if c.Case == opts.Case && (opts.Binary == "" || c.Binary == opts.Binary) {
			matches = append(matches, c)
		}
	}

	switch len(matches) {
	case 0:
		return formatter.Fail(ExitCommandError, ErrCodeHistory,
			fmt.Sprintf("case %q not found in run %s", opts.Case, opts.RunID), nil)
	case 1:
	default:
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput,
			fmt.Sprintf("case %q is recorded for %d binaries; pass --binary", opts.Case, len(matches)), nil)
	}

	c := matches[0]
	if opts.Format == "json" {
		return formatter.Success(toCaseHistory(c))
	}

	data := c.Stdout
	if opts.Stream == "stderr" {
		data = c.Stderr
	}
	if _, err := cmd.OutOrStdout().Write(data); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to write stream", err)
	}
	return nil
}

func renderRuns(cmd *cobra.Command, runs []store.Run) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Run", "Started", "Duration", "Status", "Total", "Failures", "Missing"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Total", Align: text.AlignRight},
		{Name: "Failures", Align: text.AlignRight},
		{Name: "Missing", Align: text.AlignRight},
	})

	for _, r := range runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		t.AppendRow(table.Row{
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			duration,
			r.Status,
			r.Total,
			r.Failures,
			r.Missing,
		})
	}
	t.Render()
}

func renderCases(cmd *cobra.Command, run store.Run, cases []store.CaseRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetTitle(fmt.Sprintf("Run %s (%s)", run.ID, run.Status))
	t.AppendHeader(table.Row{"Binary", "Case", "Result", "Exit", "Duration", "Captured", "Issues"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Binary", AutoMerge: true},
		{Name: "Exit", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Issues", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, c := range cases {
		result := "OK"
		if !c.Passed {
			result = "FAIL"
		}
		exit := "-"
		if c.ExitCode != nil {
			exit = fmt.Sprint(*c.ExitCode)
		}
		captured := "-"
		if !c.Passed {
			captured = fmt.Sprintf("%dB out, %dB err", len(c.Stdout), len(c.Stderr))
		}
		t.AppendRow(table.Row{c.Binary, c.Case, result, exit, c.Duration.String(), captured, strings.Join(c.Issues, "\n")})
	}
	t.Render()
}
