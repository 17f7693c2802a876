package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/pulsedesk/db"
	"github.com/teranos/pulsedesk/errors"
)

// Store persists automation jobs in the automation_jobs table.
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const jobColumns = `id, name, timeplan, condition, perform, active, disable_notification,
	matching, processed, running, last_run_at, created_by_id, updated_by_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var timeplanJSON, conditionJSON, performJSON string
	var lastRunAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&job.ID,
		&job.Name,
		&timeplanJSON,
		&conditionJSON,
		&performJSON,
		&job.Active,
		&job.DisableNotification,
		&job.Matching,
		&job.Processed,
		&job.Running,
		&lastRunAt,
		&job.CreatedByID,
		&job.UpdatedByID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if job.LastRunAt, err = db.ParseNullTime(lastRunAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse last_run_at for job %d", job.ID)
	}
	if job.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for job %d", job.ID)
	}
	if job.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for job %d", job.ID)
	}

	job.DefinitionErr = job.decodeDefinition(timeplanJSON, conditionJSON, performJSON)
	return &job, nil
}

// decodeDefinition parses the stored definition columns. The error is
// marked errors.ErrConfiguration.
func (job *Job) decodeDefinition(timeplanJSON, conditionJSON, performJSON string) error {
	if err := json.Unmarshal([]byte(timeplanJSON), &job.Timeplan); err != nil {
		return errors.Mark(errors.Wrapf(err, "job %d has an invalid timeplan", job.ID), errors.ErrConfiguration)
	}
	if err := json.Unmarshal([]byte(conditionJSON), &job.Condition); err != nil {
		return errors.Mark(errors.Wrapf(err, "job %d has an invalid condition", job.ID), errors.ErrConfiguration)
	}
	if err := json.Unmarshal([]byte(performJSON), &job.Perform); err != nil {
		return errors.Mark(errors.Wrapf(err, "job %d has an invalid perform", job.ID), errors.ErrConfiguration)
	}
	return nil
}

func encodeDefinition(job *Job) (timeplanJSON, conditionJSON, performJSON string, err error) {
	tp, err := json.Marshal(job.Timeplan)
	if err != nil {
		return "", "", "", errors.Wrap(err, "failed to encode timeplan")
	}
	cond, err := json.Marshal(job.Condition)
	if err != nil {
		return "", "", "", errors.Wrap(err, "failed to encode condition")
	}
	perf, err := json.Marshal(job.Perform)
	if err != nil {
		return "", "", "", errors.Wrap(err, "failed to encode perform")
	}
	return string(tp), string(cond), string(perf), nil
}

// Create inserts a job. ID, CreatedAt and UpdatedAt are set on success.
func (s *Store) Create(ctx context.Context, job *Job, actor int64, now time.Time) error {
	tp, cond, perf, err := encodeDefinition(job)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO automation_jobs (
			name, timeplan, condition, perform, active, disable_notification,
			last_run_at, created_by_id, updated_by_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.Name, tp, cond, perf, job.Active, job.DisableNotification,
		db.FormatNullTime(job.LastRunAt), actor, actor, db.FormatTime(now), db.FormatTime(now),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create job %q", job.Name)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to read job id")
	}
	job.ID = id
	job.CreatedByID, job.UpdatedByID = actor, actor
	job.CreatedAt, job.UpdatedAt = now.UTC(), now.UTC()
	return nil
}

// Update rewrites a job's definition. Bumping updated_at restarts the
// job's cooldown so an edit does not retrigger it immediately.
func (s *Store) Update(ctx context.Context, job *Job, actor int64, now time.Time) error {
	tp, cond, perf, err := encodeDefinition(job)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE automation_jobs
		SET name = ?, timeplan = ?, condition = ?, perform = ?, active = ?,
		    disable_notification = ?, updated_by_id = ?, updated_at = ?
		WHERE id = ?`,
		job.Name, tp, cond, perf, job.Active, job.DisableNotification,
		actor, db.FormatTime(now), job.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update job %d", job.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("job %d not found", job.ID)
	}
	job.UpdatedByID = actor
	job.UpdatedAt = now.UTC()
	return nil
}

// Get retrieves a job by id
func (s *Store) Get(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM automation_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("job %d not found", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get job %d", id)
	}
	return job, nil
}

// GetByName retrieves a job by its unique name
func (s *Store) GetByName(ctx context.Context, name string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM automation_jobs WHERE name = ?`, name)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("job %q not found", name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get job %q", name)
	}
	return job, nil
}

// List returns all jobs ordered by id. A row whose definition cannot be
// decoded is still returned, with DefinitionErr set.
func (s *Store) List(ctx context.Context) ([]*Job, error) {
	return s.query(ctx, `SELECT `+jobColumns+` FROM automation_jobs ORDER BY id`)
}

// ListActive returns the active jobs ordered by id, undecodable ones
// included (see List).
func (s *Store) ListActive(ctx context.Context) ([]*Job, error) {
	return s.query(ctx, `SELECT `+jobColumns+` FROM automation_jobs WHERE active = 1 ORDER BY id`)
}

func (s *Store) query(ctx context.Context, query string, args ...interface{}) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SetActive enables or disables a job. It counts as an edit.
func (s *Store) SetActive(ctx context.Context, id int64, active bool, actor int64, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE automation_jobs SET active = ?, updated_by_id = ?, updated_at = ? WHERE id = ?`,
		active, actor, db.FormatTime(now), id)
	if err != nil {
		return errors.Wrapf(err, "failed to set active=%t for job %d", active, id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("job %d not found", id)
	}
	return nil
}

// Delete removes a job.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM automation_jobs WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete job %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("job %d not found", id)
	}
	return nil
}

// MarkRunning flags a job as being inside a pass. Bookkeeping columns do
// not count as edits, so updated_at is left alone.
func (s *Store) MarkRunning(ctx context.Context, id int64, running bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE automation_jobs SET running = ? WHERE id = ?`, running, id)
	if err != nil {
		return errors.Wrapf(err, "failed to mark job %d running=%t", id, running)
	}
	return nil
}

// FinishPass stamps the outcome of a completed pass in one statement.
func (s *Store) FinishPass(ctx context.Context, id int64, now time.Time, matching, processed int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE automation_jobs
		SET last_run_at = ?, matching = ?, processed = ?, running = 0
		WHERE id = ?`,
		db.FormatTime(now), matching, processed, id)
	if err != nil {
		return errors.Wrapf(err, "failed to stamp pass of job %d", id)
	}
	return nil
}
