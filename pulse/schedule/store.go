package schedule

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/pulsedesk/db"
	"github.com/teranos/pulsedesk/errors"
)

// Store persists scheduler tasks
type Store struct {
	db *sql.DB
}

// NewStore creates a new schedule store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const taskColumns = `id, name, method, period, cron, active, last_run, pid, status, error_message, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task                 Task
		periodSeconds        int64
		cronExpr, pid        sql.NullString
		status, errorMessage sql.NullString
		lastRun              sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&task.ID, &task.Name, &task.Method, &periodSeconds, &cronExpr, &task.Active,
		&lastRun, &pid, &status, &errorMessage, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	task.Period = time.Duration(periodSeconds) * time.Second
	task.Cron = cronExpr.String
	task.PID = pid.String
	task.Status = status.String
	task.ErrorMessage = errorMessage.String

	if task.LastRun, err = db.ParseNullTime(lastRun); err != nil {
		return nil, errors.Wrapf(err, "task %s: last_run", task.Method)
	}
	if task.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, errors.Wrapf(err, "task %s: created_at", task.Method)
	}
	if task.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return nil, errors.Wrapf(err, "task %s: updated_at", task.Method)
	}
	return &task, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Upsert creates the task or updates the definition of the task with the
// same method. Run state (last_run, pid, status) is kept on update.
func (s *Store) Upsert(ctx context.Context, task *Task, now time.Time) error {
	if err := task.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduler_tasks (name, method, period, cron, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(method) DO UPDATE SET
			name = excluded.name,
			period = excluded.period,
			cron = excluded.cron,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		task.Name, task.Method, int64(task.Period/time.Second), nullString(task.Cron), task.Active,
		db.FormatTime(now), db.FormatTime(now),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to upsert task %s", task.Method)
	}

	stored, err := s.GetByMethod(ctx, task.Method)
	if err != nil {
		return err
	}
	*task = *stored
	return nil
}

// GetByMethod returns the task registered for method.
func (s *Store) GetByMethod(ctx context.Context, method string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM scheduler_tasks WHERE method = ?`, method)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("scheduler task %s not found", method)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get task %s", method)
	}
	return task, nil
}

// List returns all tasks ordered by id.
func (s *Store) List(ctx context.Context) ([]*Task, error) {
	return s.query(ctx, `SELECT `+taskColumns+` FROM scheduler_tasks ORDER BY id`)
}

// ListActive returns the active tasks ordered by id.
func (s *Store) ListActive(ctx context.Context) ([]*Task, error) {
	return s.query(ctx, `SELECT `+taskColumns+` FROM scheduler_tasks WHERE active = 1 ORDER BY id`)
}

func (s *Store) query(ctx context.Context, query string, args ...interface{}) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query scheduler tasks")
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan scheduler task")
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// SetActive enables or disables a task.
func (s *Store) SetActive(ctx context.Context, id int64, active bool, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE scheduler_tasks SET active = ?, updated_at = ? WHERE id = ?`,
		active, db.FormatTime(now), id)
	if err != nil {
		return errors.Wrapf(err, "failed to update task %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("scheduler task %d not found", id)
	}
	return nil
}

// MarkStarted stamps last_run and records the executing process.
func (s *Store) MarkStarted(ctx context.Context, id int64, pid string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduler_tasks SET last_run = ?, pid = ?, status = ?, updated_at = ? WHERE id = ?`,
		db.FormatTime(now), nullString(pid), StatusRunning, db.FormatTime(now), id)
	if err != nil {
		return errors.Wrapf(err, "failed to mark task %d started", id)
	}
	return nil
}

// Finish records the outcome of a run; runErr nil means success.
func (s *Store) Finish(ctx context.Context, id int64, runErr error, now time.Time) error {
	status, message := StatusOK, ""
	if runErr != nil {
		status, message = StatusError, runErr.Error()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduler_tasks SET pid = NULL, status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status, nullString(message), db.FormatTime(now), id)
	if err != nil {
		return errors.Wrapf(err, "failed to finish task %d", id)
	}
	return nil
}

// SetLastRun overwrites last_run (maintenance and tests).
func (s *Store) SetLastRun(ctx context.Context, id int64, lastRun *time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE scheduler_tasks SET last_run = ? WHERE id = ?`,
		db.FormatNullTime(lastRun), id)
	if err != nil {
		return errors.Wrapf(err, "failed to set last_run of task %d", id)
	}
	return nil
}
