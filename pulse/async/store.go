package async

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/pulsedesk/db"
	"github.com/teranos/pulsedesk/errors"
)

// Store handles persistence of background jobs
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// CreateJob inserts a new job
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO background_jobs (
			id, handler_name, payload, source, status, attempts, last_error,
			run_at, created_at, updated_at, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.HandlerName,
		nullString(string(job.Payload)),
		job.Source,
		job.Status,
		job.Attempts,
		nullString(job.LastError),
		db.FormatTime(job.RunAt),
		db.FormatTime(job.CreatedAt),
		db.FormatTime(job.UpdatedAt),
		db.FormatNullTime(job.StartedAt),
		db.FormatNullTime(job.CompletedAt),
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert background job")
	}
	return nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+StandardJobSelectColumns()+` FROM background_jobs WHERE id = ?`, id)

	var job Job
	if err := ScanJobFromRow(row, &job); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("background job %s not found", id)
		}
		return nil, errors.Wrapf(err, "failed to get background job %s", id)
	}
	return &job, nil
}

// UpdateJob writes the mutable columns of a job
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE background_jobs
		SET status = ?, attempts = ?, last_error = ?, run_at = ?, updated_at = ?,
		    started_at = ?, completed_at = ?
		WHERE id = ?`,
		job.Status,
		job.Attempts,
		nullString(job.LastError),
		db.FormatTime(job.RunAt),
		db.FormatTime(job.UpdatedAt),
		db.FormatNullTime(job.StartedAt),
		db.FormatNullTime(job.CompletedAt),
		job.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update background job")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("background job %s not found", job.ID)
	}
	return nil
}

func (s *Store) listJobs(ctx context.Context, query string, args ...interface{}) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var job Job
		if err := ScanJobFromRows(rows, &job); err != nil {
			return nil, err
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

// ListJobs returns jobs, optionally filtered by status, oldest first.
// limit <= 0 means no limit.
func (s *Store) ListJobs(ctx context.Context, status *JobStatus, limit int) ([]*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + ` FROM background_jobs`
	var args []interface{}
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	jobs, err := s.listJobs(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list background jobs")
	}
	return jobs, nil
}

// NextRunnable returns the oldest queued job whose run_at has passed, or nil.
func (s *Store) NextRunnable(ctx context.Context, now time.Time) (*Job, error) {
	jobs, err := s.listJobs(ctx, `
		SELECT `+StandardJobSelectColumns()+`
		FROM background_jobs
		WHERE status = ? AND run_at <= ?
		ORDER BY run_at ASC, created_at ASC
		LIMIT 1`,
		JobStatusQueued, db.FormatTime(now))
	if err != nil {
		return nil, errors.Wrap(err, "failed to find runnable background job")
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return jobs[0], nil
}

// CountByStatus returns job counts per status
func (s *Store) CountByStatus(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM background_jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count background jobs")
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan background job count")
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// CountPending counts queued or running jobs created before the cutoff.
func (s *Store) CountPending(ctx context.Context, createdBefore time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM background_jobs
		WHERE status IN (?, ?) AND created_at < ?`,
		JobStatusQueued, JobStatusRunning, db.FormatTime(createdBefore)).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count pending background jobs")
	}
	return n, nil
}

// CountFailing counts unfinished jobs with more attempts than ceiling.
func (s *Store) CountFailing(ctx context.Context, ceiling int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM background_jobs
		WHERE attempts > ? AND status != ?`,
		ceiling, JobStatusCompleted).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count failing background jobs")
	}
	return n, nil
}

// ListFailing returns the oldest unfinished jobs with more attempts than ceiling.
func (s *Store) ListFailing(ctx context.Context, ceiling, limit int) ([]*Job, error) {
	jobs, err := s.listJobs(ctx, `
		SELECT `+StandardJobSelectColumns()+`
		FROM background_jobs
		WHERE attempts > ? AND status != ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?`,
		ceiling, JobStatusCompleted, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list failing background jobs")
	}
	return jobs, nil
}

// RequeueFailing resets every unfinished job over the ceiling to a fresh
// queued job and returns how many were reset.
func (s *Store) RequeueFailing(ctx context.Context, ceiling int, now time.Time) (int, error) {
	ts := db.FormatTime(now)
	res, err := s.db.ExecContext(ctx, `
		UPDATE background_jobs
		SET status = ?, attempts = 0, last_error = NULL, run_at = ?, updated_at = ?,
		    started_at = NULL, completed_at = NULL
		WHERE attempts > ? AND status != ?`,
		JobStatusQueued, ts, ts, ceiling, JobStatusCompleted)
	if err != nil {
		return 0, errors.Wrap(err, "failed to requeue failing background jobs")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count requeued background jobs")
	}
	return int(n), nil
}

// RequeueRunning puts jobs left in running state (after a crash) back in the queue.
func (s *Store) RequeueRunning(ctx context.Context, now time.Time) (int, error) {
	ts := db.FormatTime(now)
	res, err := s.db.ExecContext(ctx, `
		UPDATE background_jobs
		SET status = ?, run_at = ?, updated_at = ?, started_at = NULL
		WHERE status = ?`,
		JobStatusQueued, ts, ts, JobStatusRunning)
	if err != nil {
		return 0, errors.Wrap(err, "failed to requeue orphaned background jobs")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteCompletedBefore removes completed jobs finished before the cutoff.
func (s *Store) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM background_jobs
		WHERE status = ? AND completed_at < ?`,
		JobStatusCompleted, db.FormatTime(cutoff))
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete completed background jobs")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
