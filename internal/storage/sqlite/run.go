package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sathwikvintha/release-automation/internal/model"
)

// CreateRun stores a new run.
func (r *Repository) CreateRun(ctx context.Context, run model.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required: %w", model.ErrNotValid)
	}

	query := `
		INSERT INTO runs (id, step, sink, strategy, status, exit_code, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Step,
		run.Sink,
		run.Strategy,
		run.Status,
		run.ExitCode,
		run.Error,
		run.StartedAt.UTC().UnixMilli(),
		unixMilliOrNil(run.FinishedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("run %s: %w", run.ID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert run: %w", err)
	}

	return nil
}

// CompleteRun stores the final state of a run.
func (r *Repository) CompleteRun(ctx context.Context, run model.Run) error {
	query := `UPDATE runs SET status = ?, exit_code = ?, error = ?, finished_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, run.Status, run.ExitCode, run.Error, unixMilliOrNil(run.FinishedAt), run.ID)
	if err != nil {
		return fmt.Errorf("could not update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s: %w", run.ID, model.ErrNotFound)
	}

	r.logger.Debugf("Completed run %s (%s): %s", run.ID, run.Step, run.Status)
	return nil
}

// ListRuns returns the runs of a step, newest first.
func (r *Repository) ListRuns(ctx context.Context, step string, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit.
	}

	query := `
		SELECT id, step, sink, strategy, status, exit_code, error, started_at, finished_at
		FROM runs
		WHERE step = ?
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, step, limit)
	if err != nil {
		return nil, fmt.Errorf("could not query runs: %w", err)
	}
	defer rows.Close()

	runs := []model.Run{}
	for rows.Next() {
		var run model.Run
		var startedAt int64
		var finishedAt sql.NullInt64
		err := rows.Scan(
			&run.ID,
			&run.Step,
			&run.Sink,
			&run.Strategy,
			&run.Status,
			&run.ExitCode,
			&run.Error,
			&startedAt,
			&finishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("could not scan run: %w", err)
		}

		run.StartedAt = time.UnixMilli(startedAt).UTC()
		if finishedAt.Valid {
			t := time.UnixMilli(finishedAt.Int64).UTC()
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

func unixMilliOrNil(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UTC().UnixMilli()
	return &ms
}

func isUniqueConstraintError(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed: runs.")
}
