// Package scheduler runs durable cron jobs: jobs and their run history live
// in the relational store, a ticker fires due jobs onto the bus, and
// consecutive failures back off on an escalating ladder.
package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Schedule kinds.
const (
	KindAt    = "at"    // one-shot ISO datetime
	KindEvery = "every" // fixed interval in milliseconds
	KindCron  = "cron"  // 5-field cron expression
)

// Job is one scheduled task.
type Job struct {
	ID                string
	Name              string
	Kind              string
	Value             string
	Timezone          string
	Task              string
	Enabled           bool
	LastRunAt         *time.Time
	NextRunAt         *time.Time
	LastStatus        string
	LastError         string
	ConsecutiveErrors int
	CreatedAt         time.Time
}

// Run is one firing of a job.
type Run struct {
	ID        int64
	JobID     string
	Status    string
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// Store persists jobs and runs.
type Store struct {
	conn *sql.DB
	now  func() time.Time
}

func NewStore(conn *sql.DB) *Store {
	return &Store{conn: conn, now: time.Now}
}

// Add inserts a job with a fresh id and computed next run. Enabled defaults
// to true.
func (s *Store) Add(ctx context.Context, name, kind, value, timezone, task string) (*Job, error) {
	now := s.now()
	job := &Job{
		ID:        uuid.NewString(),
		Name:      name,
		Kind:      kind,
		Value:     value,
		Timezone:  timezone,
		Task:      task,
		Enabled:   true,
		CreatedAt: now,
	}
	job.NextRunAt = NextRun(kind, value, timezone, nil, now)

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO cron_jobs (id, name, schedule_kind, schedule_value, timezone, task, enabled, next_run_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		job.ID, job.Name, job.Kind, job.Value, job.Timezone, job.Task,
		msOrNil(job.NextRunAt), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// Patch is a partial job update; nil fields keep their current value.
type Patch struct {
	Name     *string
	Kind     *string
	Value    *string
	Timezone *string
	Task     *string
	Enabled  *bool
}

// Update applies a patch and always recomputes next-run-at.
func (s *Store) Update(ctx context.Context, id string, p Patch) (*Job, error) {
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s not found", id)
	}

	if p.Name != nil {
		job.Name = *p.Name
	}
	if p.Kind != nil {
		job.Kind = *p.Kind
	}
	if p.Value != nil {
		job.Value = *p.Value
	}
	if p.Timezone != nil {
		job.Timezone = *p.Timezone
	}
	if p.Task != nil {
		job.Task = *p.Task
	}
	if p.Enabled != nil {
		job.Enabled = *p.Enabled
	}
	job.NextRunAt = NextRun(job.Kind, job.Value, job.Timezone, job.LastRunAt, s.now())

	_, err = s.conn.ExecContext(ctx,
		`UPDATE cron_jobs SET name=?, schedule_kind=?, schedule_value=?, timezone=?, task=?, enabled=?, next_run_at=?
		 WHERE id=?`,
		job.Name, job.Kind, job.Value, job.Timezone, job.Task,
		boolToInt(job.Enabled), msOrNil(job.NextRunAt), id)
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	return job, nil
}

// UpsertByName updates the job carrying this name, or adds it. The heartbeat
// integration re-declares its jobs on every file change.
func (s *Store) UpsertByName(ctx context.Context, name, kind, value, timezone, task string) (*Job, error) {
	var id string
	err := s.conn.QueryRowContext(ctx,
		`SELECT id FROM cron_jobs WHERE name = ?`, name).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		return s.Add(ctx, name, kind, value, timezone, task)
	case err != nil:
		return nil, fmt.Errorf("lookup job by name: %w", err)
	}
	return s.Update(ctx, id, Patch{Kind: &kind, Value: &value, Timezone: &timezone, Task: &task})
}

// Remove deletes a job; runs cascade.
func (s *Store) Remove(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM cron_jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s not found", id)
	}
	return nil
}

// List returns jobs, optionally including disabled ones.
func (s *Store) List(ctx context.Context, includeDisabled bool) ([]*Job, error) {
	q := `SELECT id, name, schedule_kind, schedule_value, timezone, task, enabled,
	             last_run_at, next_run_at, last_status, last_error, consecutive_errors, created_at
	      FROM cron_jobs`
	if !includeDisabled {
		q += ` WHERE enabled = 1`
	}
	q += ` ORDER BY created_at`

	rows, err := s.conn.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// GetByID returns a job or nil.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, name, schedule_kind, schedule_value, timezone, task, enabled,
		        last_run_at, next_run_at, last_status, last_error, consecutive_errors, created_at
		 FROM cron_jobs WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanJob(rows)
}

// RunHistory returns the most recent runs for a job, newest first.
func (s *Store) RunHistory(ctx context.Context, jobID string, limit int) ([]Run, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, job_id, status, COALESCE(error, ''), started_at, duration_ms
		 FROM cron_runs WHERE job_id = ? ORDER BY started_at DESC LIMIT ?`,
		jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("run history: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedMs, durMs int64
		if err := rows.Scan(&r.ID, &r.JobID, &r.Status, &r.Error, &startedMs, &durMs); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(startedMs)
		r.Duration = time.Duration(durMs) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// recordResult updates the job and appends its run row in one transaction.
func (s *Store) recordResult(ctx context.Context, job *Job, startedAt time.Time, runErr error) error {
	now := s.now()

	status := "ok"
	lastError := ""
	consecutive := 0
	if runErr != nil {
		status = "error"
		lastError = runErr.Error()
		consecutive = job.ConsecutiveErrors + 1
	}
	next := NextRun(job.Kind, job.Value, job.Timezone, &startedAt, now)

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE cron_jobs SET last_run_at=?, next_run_at=?, last_status=?, last_error=?, consecutive_errors=?
		 WHERE id=?`,
		startedAt.UnixMilli(), msOrNil(next), status, lastError, consecutive, job.ID); err != nil {
		return fmt.Errorf("update job result: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cron_runs (job_id, status, error, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?)`,
		job.ID, status, lastError, startedAt.UnixMilli(), now.Sub(startedAt).Milliseconds()); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return tx.Commit()
}

func scanJob(rows *sql.Rows) (*Job, error) {
	var job Job
	var enabled int
	var lastRun, nextRun sql.NullInt64
	var lastStatus, lastError sql.NullString
	var createdMs int64
	if err := rows.Scan(&job.ID, &job.Name, &job.Kind, &job.Value, &job.Timezone,
		&job.Task, &enabled, &lastRun, &nextRun, &lastStatus, &lastError,
		&job.ConsecutiveErrors, &createdMs); err != nil {
		return nil, err
	}
	job.Enabled = enabled != 0
	if lastRun.Valid {
		t := time.UnixMilli(lastRun.Int64)
		job.LastRunAt = &t
	}
	if nextRun.Valid {
		t := time.UnixMilli(nextRun.Int64)
		job.NextRunAt = &t
	}
	job.LastStatus = lastStatus.String
	job.LastError = lastError.String
	job.CreatedAt = time.UnixMilli(createdMs)
	return &job, nil
}

func msOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
