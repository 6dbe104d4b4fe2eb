package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Status is the final state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
	StatusFailed    Status = "failed"
)

// Run is one experiment run.
type Run struct {
	ID         string
	Name       string
	AnimalID   string
	Kind       string
	NumTrials  int
	Path       string
	Config     string
	Status     Status
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// Trial is the outcome of one trial of a run.
type Trial struct {
	Number       int
	Touches      int
	Hits         int
	RewardedHits int
	HasTouchLog  bool
	EarlyExit    bool
	StartedAt    time.Time
	EndedAt      time.Time
}

// RunStarted inserts a run in the running state.
func (db *DB) RunStarted(ctx context.Context, run Run) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO runs (id, name, animal_id, kind, num_trials, path, config, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.AnimalID, run.Kind, run.NumTrials, run.Path, run.Config,
		string(StatusRunning), run.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// TrialFinished records a trial outcome. Recording the same trial twice
// replaces the earlier row.
func (db *DB) TrialFinished(ctx context.Context, runID string, t Trial) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO trials
		 (run_id, number, touches, hits, rewarded_hits, has_touch_log, early_exit, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, t.Number, t.Touches, t.Hits, t.RewardedHits, t.HasTouchLog, t.EarlyExit,
		t.StartedAt.UnixMilli(), t.EndedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trial %d: %w", t.Number, err)
	}
	return nil
}

// RunFinished sets the final status of a run.
func (db *DB) RunFinished(ctx context.Context, runID string, status Status, at time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		string(status), at.UnixMilli(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

const runColumns = `id, name, animal_id, kind, num_trials, path, config, status, started_at, finished_at`

func scanRun(scanner interface{ Scan(...any) error }) (Run, error) {
	var (
		run        Run
		status     string
		startedAt  int64
		finishedAt sql.NullInt64
	)
	err := scanner.Scan(&run.ID, &run.Name, &run.AnimalID, &run.Kind, &run.NumTrials,
		&run.Path, &run.Config, &status, &startedAt, &finishedAt)
	if err != nil {
		return Run{}, err
	}
	run.Status = Status(status)
	run.StartedAt = time.UnixMilli(startedAt)
	if finishedAt.Valid {
		run.FinishedAt = time.UnixMilli(finishedAt.Int64)
	}
	return run, nil
}

// GetRun loads one run.
func (db *DB) GetRun(ctx context.Context, id string) (Run, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to load run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all runs.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Trials returns the recorded trials of a run in trial order.
func (db *DB) Trials(ctx context.Context, runID string) ([]Trial, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT number, touches, hits, rewarded_hits, has_touch_log, early_exit, started_at, ended_at
		 FROM trials WHERE run_id = ? ORDER BY number`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trials: %w", err)
	}
	defer rows.Close()

	var trials []Trial
	for rows.Next() {
		var (
			t                  Trial
			startedAt, endedAt int64
		)
		if err := rows.Scan(&t.Number, &t.Touches, &t.Hits, &t.RewardedHits,
			&t.HasTouchLog, &t.EarlyExit, &startedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trial: %w", err)
		}
		t.StartedAt = time.UnixMilli(startedAt)
		t.EndedAt = time.UnixMilli(endedAt)
		trials = append(trials, t)
	}
	return trials, rows.Err()
}
