package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ReadRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, scenario, base_url, started_at, finished_at, passed, summary
		FROM runs
		WHERE id = ?
	`, id)
	return scanRun(row)
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
// UUIDv7 ids sort by creation time, so id order is start order.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, scenario, base_url, started_at, finished_at, passed, summary
		FROM runs
		ORDER BY started_at DESC, id DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadCalls returns all calls of a run ordered by seq.
//
// Returns an empty slice (not nil) if the run recorded no calls.
func (s *Store) ReadCalls(ctx context.Context, runID string) ([]CallRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, run_id, vu, iter, step, method, url, status, expected, ok, duration_us, error
		FROM calls
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	calls := []CallRecord{}
	for rows.Next() {
		var (
			c          CallRecord
			expected   string
			ok         int
			durationUS int64
		)
		if err := rows.Scan(&c.Seq, &c.RunID, &c.VU, &c.Iter, &c.Step, &c.Method, &c.URL,
			&c.Status, &expected, &ok, &durationUS, &c.Error); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		if err := json.Unmarshal([]byte(expected), &c.Expected); err != nil {
			return nil, fmt.Errorf("decode expected statuses of call %d: %w", c.Seq, err)
		}
		c.OK = ok != 0
		c.Duration = time.Duration(durationUS) * time.Microsecond
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return calls, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run        Run
		startedAt  string
		finishedAt sql.NullString
		passed     sql.NullInt64
		summary    sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Scenario, &run.BaseURL, &startedAt, &finishedAt, &passed, &summary); err != nil {
		if err == sql.ErrNoRows {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	var err error
	run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse started_at of run %s: %w", run.ID, err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return Run{}, fmt.Errorf("parse finished_at of run %s: %w", run.ID, err)
		}
		run.FinishedAt = &t
	}
	if passed.Valid {
		p := passed.Int64 != 0
		run.Passed = &p
	}
	run.Summary = summary.String
	return run, nil
}
