// Package suite drives a conformance run: build the binaries, execute every
// case under the harness, judge the results and report them in load order.
package suite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/conform/internal/build"
	"github.com/roach88/conform/internal/check"
	"github.com/roach88/conform/internal/harness"
	"github.com/roach88/conform/internal/report"
	"github.com/roach88/conform/internal/spec"
	"github.com/roach88/conform/internal/store"
)

// missingIssue is recorded for every case whose binary was not built.
const missingIssue = "binary was not built"

// Recorder persists run history. *store.Store satisfies it.
type Recorder interface {
	BeginRun(ctx context.Context, run store.Run) error
	RecordCase(ctx context.Context, rec store.CaseRecord) error
	FinishRun(ctx context.Context, run store.Run) error
}

// Runner executes loaded specs.
type Runner struct {
	// TestDir holds the built binaries.
	TestDir string

	// Builder builds the binaries before any case runs. Nil skips the build.
	Builder *build.Builder

	Driver    *harness.Driver
	Reporter  report.Reporter
	Artifacts *report.Artifacts

	// Recorder is optional.
	Recorder Recorder

	// Jobs is the number of cases run at once. Values below 1 mean 1.
	Jobs int

	IDs    IDGenerator
	Now    func() time.Time
	Logger *slog.Logger
}

// job is one case scheduled for execution. The worker delivers exactly one
// value on done.
type job struct {
	spec   *spec.Spec
	c      spec.Case
	target string
	done   chan jobResult
}

type jobResult struct {
	outcome *report.Outcome
	err     error
}

// Run builds and executes specs and returns the run summary.
//
// A non-nil error means the run stopped before completing: a build
// failure (*build.Error or build.ErrNoTargets), a missing harness
// (harness.ErrNotFound), a history failure at start, or cancellation.
// Case failures are not errors; they are counted in the summary.
func (r *Runner) Run(ctx context.Context, specs []*spec.Spec) (*report.Summary, error) {
	r.defaults()

	if r.Builder != nil {
		if err := r.Builder.Build(ctx, spec.Binaries(specs)); err != nil {
			return nil, err
		}
	}
	if err := r.Driver.Check(); err != nil {
		return nil, err
	}

	sum := &report.Summary{
		RunID:   r.IDs.Generate(),
		Specs:   len(specs),
		Started: r.Now(),
	}
	if r.Artifacts != nil {
		sum.LogDir = r.Artifacts.Dir
	}

	history := r.Recorder
	if history != nil {
		err := history.BeginRun(ctx, store.Run{
			ID:        sum.RunID,
			StartedAt: sum.Started,
			TestDir:   r.TestDir,
			Harness:   r.Driver.Path,
		})
		if err != nil {
			return nil, fmt.Errorf("record run: %w", err)
		}
	}

	jobs, missing := r.plan(specs)
	r.Logger.Debug("run planned",
		"run_id", sum.RunID,
		"specs", len(specs),
		"cases", len(jobs),
		"missing_specs", len(missing),
		"jobs", r.Jobs,
	)

	feedDone := r.dispatch(ctx, jobs)
	err := r.aggregate(ctx, specs, missing, jobs, sum, &history)
	<-feedDone

	sum.Duration = r.Now().Sub(sum.Started)
	if err != nil {
		r.finishHistory(ctx, history, sum, store.StatusAborted)
		return sum, fmt.Errorf("run aborted: %w", err)
	}

	r.Reporter.Summary(sum)

	status := store.StatusPassed
	if !sum.OK() {
		status = store.StatusFailed
	}
	r.finishHistory(ctx, history, sum, status)

	return sum, nil
}

func (r *Runner) defaults() {
	if r.Jobs < 1 {
		r.Jobs = 1
	}
	if r.IDs == nil {
		r.IDs = UUIDv7Generator{}
	}
	if r.Now == nil {
		r.Now = time.Now
	}
	if r.Logger == nil {
		r.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// plan creates a job per case of every spec whose binary exists, and
// returns the set of specs whose binary is missing.
func (r *Runner) plan(specs []*spec.Spec) ([]*job, map[*spec.Spec]bool) {
	var jobs []*job
	missing := make(map[*spec.Spec]bool)

	for _, sp := range specs {
		target := filepath.Join(r.TestDir, sp.Binary)
		if info, err := os.Stat(target); err != nil || info.IsDir() {
			missing[sp] = true
			continue
		}
		for _, c := range sp.Cases {
			jobs = append(jobs, &job{
				spec:   sp,
				c:      c,
				target: target,
				done:   make(chan jobResult, 1),
			})
		}
	}
	return jobs, missing
}

// dispatch runs jobs on a pool of r.Jobs workers. The returned channel is
// closed once every job has delivered its result.
func (r *Runner) dispatch(ctx context.Context, jobs []*job) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		var g errgroup.Group
		g.SetLimit(r.Jobs)
		for _, j := range jobs {
			j := j
			g.Go(func() error {
				j.done <- r.execute(ctx, j)
				return nil
			})
		}
		_ = g.Wait()
	}()

	return done
}

// execute runs one case and judges it.
func (r *Runner) execute(ctx context.Context, j *job) jobResult {
	outcome := &report.Outcome{Spec: j.spec, Case: j.c}

	if err := ctx.Err(); err != nil {
		return jobResult{outcome: outcome, err: err}
	}

	result, err := r.Driver.Run(ctx, j.target, j.c.Stdin)
	if err != nil {
		if ctx.Err() != nil {
			return jobResult{outcome: outcome, err: ctx.Err()}
		}
		outcome.Issues = []string{fmt.Sprintf("harness error: %v", err)}
		return jobResult{outcome: outcome}
	}

	outcome.Result = result
	outcome.Issues = check.Compare(j.c, result)
	return jobResult{outcome: outcome}
}

// aggregate consumes results in load order. It is the only writer of sum,
// the reporter, the artifact directory and the history store.
func (r *Runner) aggregate(ctx context.Context, specs []*spec.Spec, missing map[*spec.Spec]bool,
	jobs []*job, sum *report.Summary, history *Recorder) error {

	seq := 0
	next := 0
	for _, sp := range specs {
		if missing[sp] {
			r.Logger.Warn("binary missing after build", "binary", sp.Binary, "cases", len(sp.Cases))
			r.Reporter.BuildMissing(sp)
			sum.RecordMissing(sp)
			for _, c := range sp.Cases {
				seq++
				r.record(ctx, history, store.CaseRecord{
					RunID:  sum.RunID,
					Seq:    seq,
					Binary: sp.Binary,
					Case:   c.Name,
					Issues: []string{missingIssue},
				})
			}
			continue
		}

		r.Reporter.BeginSpec(sp)
		for range sp.Cases {
			j := jobs[next]
			next++

			res := <-j.done
			if res.err != nil {
				return res.err
			}
			o := res.outcome

			if !o.Passed() && o.Result != nil && r.Artifacts != nil {
				paths, err := r.Artifacts.Write(sp.Binary, o.Case.Name, o.Result.Stdout, o.Result.Stderr)
				if err != nil {
					r.Logger.Error("failed to write logs", "binary", sp.Binary, "case", o.Case.Name, "error", err)
				}
				o.Artifacts = paths
			}

			sum.Record(o)
			r.Reporter.CaseResult(o)

			seq++
			rec := store.CaseRecord{
				RunID:  sum.RunID,
				Seq:    seq,
				Binary: sp.Binary,
				Case:   o.Case.Name,
				Passed: o.Passed(),
				Issues: o.Issues,
			}
			if o.Result != nil {
				code := o.Result.ExitCode
				rec.ExitCode = &code
				rec.Duration = o.Result.Duration
				rec.Stdout = o.Result.Stdout
				rec.Stderr = o.Result.Stderr
			}
			r.record(ctx, history, rec)
		}
	}
	return nil
}

// record writes one case to history. After the first failure recording
// stops for the rest of the run; the run itself continues.
func (r *Runner) record(ctx context.Context, history *Recorder, rec store.CaseRecord) {
	if *history == nil {
		return
	}
	if err := (*history).RecordCase(ctx, rec); err != nil {
		r.Logger.Error("history recording disabled", "run_id", rec.RunID, "error", err)
		*history = nil
	}
}

func (r *Runner) finishHistory(ctx context.Context, history Recorder, sum *report.Summary, status string) {
	if history == nil {
		return
	}
	err := history.FinishRun(context.WithoutCancel(ctx), store.Run{
		ID:         sum.RunID,
		FinishedAt: sum.Started.Add(sum.Duration),
		Status:     status,
		Total:      sum.Total,
		Failures:   sum.Failures,
		Missing:    sum.Missing,
	})
	if err != nil {
		r.Logger.Error("failed to finish run history", "run_id", sum.RunID, "error", err)
	}
}

// IsBuildFailure reports whether err came from the build step.
func IsBuildFailure(err error) bool {
	var be *build.Error
	return errors.As(err, &be) || errors.Is(err, build.ErrNoTargets)
}
