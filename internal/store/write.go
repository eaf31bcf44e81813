package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// BeginRun inserts a run in the running state.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	status := run.Status
	if status == "" {
		status = StatusRunning
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, test_dir, harness, status)
		VALUES (?, ?, ?, ?, ?)
	`,
		run.ID,
		formatTime(run.StartedAt),
		run.TestDir,
		run.Harness,
		status,
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// RecordCase inserts one case outcome. Streams of passing cases are dropped;
// streams of failing cases are stored compressed.
func (s *Store) RecordCase(ctx context.Context, rec CaseRecord) error {
	issues := rec.Issues
	if issues == nil {
		issues = []string{}
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return fmt.Errorf("record case: marshal issues: %w", err)
	}

	var exitCode sql.NullInt64
	if rec.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*rec.ExitCode), Valid: true}
	}

	var stdout, stderr []byte
	if !rec.Passed {
		stdout = s.compress(rec.Stdout)
		stderr = s.compress(rec.Stderr)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO case_results
		(run_id, seq, binary_name, case_name, passed, exit_code, issues, duration_ms, stdout, stderr)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.RunID,
		rec.Seq,
		rec.Binary,
		rec.Case,
		rec.Passed,
		exitCode,
		string(issuesJSON),
		rec.Duration.Milliseconds(),
		stdout,
		stderr,
	)
	if err != nil {
		return fmt.Errorf("record case: %w", err)
	}
	return nil
}

// FinishRun stores the final counts and status of a run.
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, status = ?, total = ?, failures = ?, missing = ?
		WHERE id = ?
	`,
		formatTime(run.FinishedAt),
		run.Status,
		run.Total,
		run.Failures,
		run.Missing,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: run %q not found", run.ID)
	}
	return nil
}

// compress returns a zstd frame for b, or nil for nil input.
func (s *Store) compress(b []byte) []byte {
	if b == nil {
		return nil
	}
	return s.enc.EncodeAll(b, nil)
}
