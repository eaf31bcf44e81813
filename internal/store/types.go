package store

import "time"

// Run status values.
const (
	StatusRunning = "running"
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusAborted = "aborted"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Run is one invocation of the runner.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	TestDir    string
	Harness    string
	Status     string
	Total      int
	Failures   int
	Missing    int
}

// CaseRecord is the stored outcome of one case within a run.
type CaseRecord struct {
	RunID    string
	Seq      int
	Binary   string
	Case     string
	Passed   bool
	ExitCode *int // nil when the harness never ran
	Issues   []string
	Duration time.Duration

	// Stdout and Stderr are kept for failing cases only.
	Stdout []byte
	Stderr []byte
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
