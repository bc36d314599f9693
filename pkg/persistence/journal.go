package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"agentflow/pkg/event"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run is one journal row.
type Run struct {
	StartedAt  time.Time
	FinishedAt *time.Time
	ID         string
	Request    string
	Channel    string
	Status     string
	Error      string
}

// StartRun records a new run and returns its id.
func (j *Journal) StartRun(ctx context.Context, request string) (string, error) {
	id := uuid.New().String()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, request, status, started_at) VALUES (?, ?, ?, ?)`,
		id, request, StatusRunning, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	return id, nil
}

// SetChannel records the channel the router chose.
func (j *Journal) SetChannel(ctx context.Context, runID, channel string) error {
	return j.update(ctx, `UPDATE runs SET channel = ? WHERE id = ?`, channel, runID)
}

// FinishRun closes a run with its final status.
func (j *Journal) FinishRun(ctx context.Context, runID, status, errMsg string) error {
	return j.update(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, errMsg, time.Now().UTC(), runID)
}

func (j *Journal) update(ctx context.Context, query string, args ...any) error {
	res, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// RecordEvent appends one event to a run.
func (j *Journal) RecordEvent(ctx context.Context, runID string, ev event.Event) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (run_id, seq, kind, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, ev.Seq, string(ev.Kind), ev.Payload, ev.Time.UTC())
	if err != nil {
		return fmt.Errorf("failed to record event %d: %w", ev.Seq, err)
	}
	return nil
}

// GetRun loads one run.
func (j *Journal) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT id, request, channel, status, error, started_at, finished_at FROM runs WHERE id = ?`, runID)
	var (
		r        Run
		finished sql.NullTime
	)
	err := row.Scan(&r.ID, &r.Request, &r.Channel, &r.Status, &r.Error, &r.StartedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return &r, nil
}

// ListRuns returns the most recent runs, newest first.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, request, channel, status, error, started_at, finished_at FROM runs
		 ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Request, &r.Channel, &r.Status, &r.Error, &r.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Events returns the events of a run in emission order. A non-empty kind
// filters by kind.
func (j *Journal) Events(ctx context.Context, runID string, kind event.Kind) ([]event.Event, error) {
	query := `SELECT seq, kind, payload, created_at FROM events WHERE run_id = ?`
	args := []any{runID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY seq`

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var (
			ev event.Event
			k  string
		)
		if err := rows.Scan(&ev.Seq, &k, &ev.Payload, &ev.Time); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Kind = event.Kind(k)
		out = append(out, ev)
	}
	return out, rows.Err()
}
