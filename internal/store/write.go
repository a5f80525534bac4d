package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// BeginRun inserts a run record. Uses ON CONFLICT(id) DO NOTHING so a
// retried begin for the same id is harmless.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, scenario, base_url, started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Scenario,
		run.BaseURL,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun stamps a run with its end time, verdict and JSON summary.
func (s *Store) FinishRun(ctx context.Context, id string, finishedAt time.Time, passed bool, summary []byte) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, passed = ?, summary = ?
		WHERE id = ?
	`,
		finishedAt.UTC().Format(time.RFC3339Nano),
		boolToInt(passed),
		string(summary),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: run %q not found", id)
	}
	return nil
}

// WriteCall appends a call record and returns the sequence number it was
// stored under. The record's own Seq is ignored.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) WriteCall(ctx context.Context, call CallRecord) (int64, error) {
	expected, err := json.Marshal(call.Expected)
	if err != nil {
		return 0, fmt.Errorf("write call: %w", err)
	}

	seq := s.seq.Next()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO calls
		(seq, run_id, vu, iter, step, method, url, status, expected, ok, duration_us, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		seq,
		call.RunID,
		call.VU,
		call.Iter,
		call.Step,
		call.Method,
		call.URL,
		call.Status,
		string(expected),
		boolToInt(call.OK),
		call.Duration.Microseconds(),
		call.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("write call: %w", err)
	}
	return seq, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
