// Package report renders run progress and results, and persists the
// captured streams of failing cases.
package report

import (
	"time"

	"github.com/roach88/conform/internal/harness"
	"github.com/roach88/conform/internal/spec"
)

// Outcome is the judged result of one case.
type Outcome struct {
	Spec *spec.Spec
	Case spec.Case

	// Result is nil when the harness could not be run for the case.
	Result *harness.Result

	// Issues holds one description per failed check. Empty means pass.
	Issues []string

	// Artifacts lists the log files written for a failing case.
	Artifacts []string
}

// Passed reports whether the case met every expectation.
func (o *Outcome) Passed() bool {
	return len(o.Issues) == 0
}

// Summary accumulates counts over a whole run.
//
// Total counts executed cases. Failures counts failing executed cases plus
// every case of a spec whose binary was missing; those are also counted in
// Missing.
type Summary struct {
	RunID    string
	Specs    int
	Total    int
	Failures int
	Missing  int

	// LogDir is the artifact root, reported when there were failures.
	LogDir string

	Started  time.Time
	Duration time.Duration
}

// Record folds one executed case into the summary.
func (s *Summary) Record(o *Outcome) {
	s.Total++
	if !o.Passed() {
		s.Failures++
	}
}

// RecordMissing counts every case of a spec whose binary is absent.
func (s *Summary) RecordMissing(sp *spec.Spec) {
	s.Failures += len(sp.Cases)
	s.Missing += len(sp.Cases)
}

// OK reports whether the run should exit successfully.
func (s *Summary) OK() bool {
	return s.Failures == 0
}

// Reporter receives run events in load order.
//
// Implementations are driven from a single goroutine and need no locking.
type Reporter interface {
	// BeginSpec is called before the first case of a spec whose binary exists.
	BeginSpec(s *spec.Spec)

	// CaseResult is called once per executed case.
	CaseResult(o *Outcome)

	// BuildMissing is called instead of BeginSpec when the binary is absent.
	BuildMissing(s *spec.Spec)

	// Summary is called once after the last spec.
	Summary(sum *Summary)
}
