package report

import (
	"github.com/roach88/conform/internal/spec"
)

// RunReport is the machine-readable form of a run.
type RunReport struct {
	RunID      string       `json:"run_id"`
	Specs      []SpecReport `json:"specs"`
	Total      int          `json:"total"`
	Failures   int          `json:"failures"`
	Missing    int          `json:"missing"`
	LogDir     string       `json:"log_dir,omitempty"`
	DurationMS int64        `json:"duration_ms"`
}

// SpecReport holds the cases of one spec.
type SpecReport struct {
	Binary       string       `json:"binary"`
	Source       string       `json:"source"`
	BuildMissing bool         `json:"build_missing,omitempty"`
	Cases        []CaseReport `json:"cases"`
}

// CaseReport is one case outcome.
type CaseReport struct {
	Name       string   `json:"name"`
	Pass       bool     `json:"pass"`
	ExitCode   *int     `json:"exit_code,omitempty"`
	Errors     []string `json:"errors,omitempty"`
	Artifacts  []string `json:"artifacts,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

// JSONReporter collects events into a RunReport. Nothing is written until
// the caller asks for the report, so the output stays one JSON document.
type JSONReporter struct {
	report RunReport
}

// NewJSONReporter creates an empty collector.
func NewJSONReporter() *JSONReporter {
	return &JSONReporter{report: RunReport{Specs: []SpecReport{}}}
}

func (r *JSONReporter) BeginSpec(s *spec.Spec) {
	r.report.Specs = append(r.report.Specs, SpecReport{
		Binary: s.Binary,
		Source: s.Source,
		Cases:  make([]CaseReport, 0, len(s.Cases)),
	})
}

func (r *JSONReporter) CaseResult(o *Outcome) {
	cr := CaseReport{
		Name:      o.Case.Name,
		Pass:      o.Passed(),
		Errors:    o.Issues,
		Artifacts: o.Artifacts,
	}
	if o.Result != nil {
		code := o.Result.ExitCode
		cr.ExitCode = &code
		cr.DurationMS = o.Result.Duration.Milliseconds()
	}

	last := &r.report.Specs[len(r.report.Specs)-1]
	last.Cases = append(last.Cases, cr)
}

func (r *JSONReporter) BuildMissing(s *spec.Spec) {
	sr := SpecReport{
		Binary:       s.Binary,
		Source:       s.Source,
		BuildMissing: true,
		Cases:        make([]CaseReport, 0, len(s.Cases)),
	}
	for _, c := range s.Cases {
		sr.Cases = append(sr.Cases, CaseReport{
			Name:   c.Name,
			Errors: []string{"binary was not built"},
		})
	}
	r.report.Specs = append(r.report.Specs, sr)
}

func (r *JSONReporter) Summary(sum *Summary) {
	r.report.RunID = sum.RunID
	r.report.Total = sum.Total
	r.report.Failures = sum.Failures
	r.report.Missing = sum.Missing
	r.report.DurationMS = sum.Duration.Milliseconds()
	if sum.Failures > 0 {
		r.report.LogDir = sum.LogDir
	}
}

// Report returns the collected run.
func (r *JSONReporter) Report() RunReport {
	return r.report
}
