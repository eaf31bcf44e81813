package report

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"

	"github.com/roach88/conform/internal/spec"
)

// TextReporter writes the human-readable run log.
//
// Status lines go to Out; diagnostics that are not case results, such as
// missing builds, go to Err.
type TextReporter struct {
	Out io.Writer
	Err io.Writer

	ok   *color.Color
	fail *color.Color
}

// NewTextReporter creates a text reporter. When colored is false no ANSI
// escapes are emitted regardless of the terminal.
func NewTextReporter(out, errOut io.Writer, colored bool) *TextReporter {
	ok := color.New(color.FgGreen)
	fail := color.New(color.FgRed)
	if colored {
		ok.EnableColor()
		fail.EnableColor()
	} else {
		ok.DisableColor()
		fail.DisableColor()
	}
	return &TextReporter{Out: out, Err: errOut, ok: ok, fail: fail}
}

func (r *TextReporter) BeginSpec(s *spec.Spec) {
	fmt.Fprintf(r.Out, "\n== %s (%s) ==\n", s.Binary, filepath.Base(s.Source))
}

func (r *TextReporter) CaseResult(o *Outcome) {
	if o.Passed() {
		fmt.Fprintf(r.Out, "[%s]   %s\n", r.ok.Sprint("OK"), o.Case.Name)
		return
	}

	fmt.Fprintf(r.Out, "[%s] %s\n", r.fail.Sprint("FAIL"), o.Case.Name)
	for _, issue := range o.Issues {
		fmt.Fprintf(r.Out, "  - %s\n", issue)
	}
}

func (r *TextReporter) BuildMissing(s *spec.Spec) {
	fmt.Fprintf(r.Err, "[BUILD MISSING] %s\n", s.Binary)
}

func (r *TextReporter) Summary(sum *Summary) {
	fmt.Fprintln(r.Out)
	fmt.Fprintln(r.Out, "Summary:")
	fmt.Fprintf(r.Out, "  Total cases: %d\n", sum.Total)
	fmt.Fprintf(r.Out, "  Failures:    %d\n", sum.Failures)
	if sum.Missing > 0 {
		fmt.Fprintf(r.Out, "  Missing:     %d\n", sum.Missing)
	}
	if sum.Failures > 0 && sum.LogDir != "" {
		fmt.Fprintf(r.Out, "  Logs:        %s\n", sum.LogDir)
	}
}
