// Package importjob records runs of import backends (LDAP, Exchange,
// other helpdesks) so the monitor can report failed and hanging imports.
package importjob

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/pulsedesk/db"
	"github.com/teranos/pulsedesk/errors"
)

// Result is the outcome a backend writes when it finishes
type Result struct {
	Error string                 `json:"error,omitempty"`
	Stats map[string]interface{} `json:"stats,omitempty"`
}

// ImportJob is one run of an import backend, e.g. "Import::Ldap"
type ImportJob struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	DryRun     bool            `json:"dry_run"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Result     Result          `json:"result"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Failed reports whether the job finished with an error.
func (j *ImportJob) Failed() bool {
	return j.FinishedAt != nil && j.Result.Error != ""
}

// Stuck reports whether the unfinished job has not been updated for
// longer than threshold.
func (j *ImportJob) Stuck(now time.Time, threshold time.Duration) bool {
	return j.FinishedAt == nil && now.Sub(j.UpdatedAt) > threshold
}

// Store persists import jobs
type Store struct {
	db *sql.DB
}

// NewStore creates an import job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const columns = `id, name, dry_run, payload, result, started_at, finished_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scan(row rowScanner) (*ImportJob, error) {
	var (
		j                     ImportJob
		payload, result       string
		startedAt, finishedAt sql.NullString
		createdAt, updatedAt  string
	)
	if err := row.Scan(&j.ID, &j.Name, &j.DryRun, &payload, &result, &startedAt, &finishedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if payload != "" && payload != "{}" {
		j.Payload = json.RawMessage(payload)
	}
	if err := json.Unmarshal([]byte(result), &j.Result); err != nil {
		return nil, errors.Wrapf(err, "import job %d: result", j.ID)
	}

	var err error
	if j.StartedAt, err = db.ParseNullTime(startedAt); err != nil {
		return nil, errors.Wrapf(err, "import job %d: started_at", j.ID)
	}
	if j.FinishedAt, err = db.ParseNullTime(finishedAt); err != nil {
		return nil, errors.Wrapf(err, "import job %d: finished_at", j.ID)
	}
	if j.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, errors.Wrapf(err, "import job %d: created_at", j.ID)
	}
	if j.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return nil, errors.Wrapf(err, "import job %d: updated_at", j.ID)
	}
	return &j, nil
}

// Create inserts a new, not yet started import job.
func (s *Store) Create(ctx context.Context, j *ImportJob, now time.Time) error {
	if j.Name == "" {
		return errors.NewInvalidRequestError("import job name is required")
	}
	payload := "{}"
	if len(j.Payload) > 0 {
		payload = string(j.Payload)
	}
	result, err := json.Marshal(j.Result)
	if err != nil {
		return errors.Wrap(err, "failed to encode import result")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO import_jobs (name, dry_run, payload, result, started_at, finished_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.Name, j.DryRun, payload, string(result),
		db.FormatNullTime(j.StartedAt), db.FormatNullTime(j.FinishedAt), db.FormatTime(now), db.FormatTime(now))
	if err != nil {
		return errors.Wrapf(err, "failed to create import job %s", j.Name)
	}
	if j.ID, err = res.LastInsertId(); err != nil {
		return errors.Wrap(err, "failed to read import job id")
	}
	j.CreatedAt, j.UpdatedAt = now.UTC(), now.UTC()
	return nil
}

// Get returns one import job
func (s *Store) Get(ctx context.Context, id int64) (*ImportJob, error) {
	j, err := scan(s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM import_jobs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("import job %d not found", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get import job %d", id)
	}
	return j, nil
}

// Start marks the job as running.
func (s *Store) Start(ctx context.Context, id int64, now time.Time) error {
	return s.exec(ctx, id, `UPDATE import_jobs SET started_at = ?, updated_at = ? WHERE id = ?`,
		db.FormatTime(now), db.FormatTime(now), id)
}

// Touch records progress of a running job.
func (s *Store) Touch(ctx context.Context, id int64, now time.Time) error {
	return s.exec(ctx, id, `UPDATE import_jobs SET updated_at = ? WHERE id = ?`, db.FormatTime(now), id)
}

// Finish stores the result and marks the job finished.
func (s *Store) Finish(ctx context.Context, id int64, result Result, now time.Time) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "failed to encode import result")
	}
	return s.exec(ctx, id, `UPDATE import_jobs SET result = ?, finished_at = ?, updated_at = ? WHERE id = ?`,
		string(encoded), db.FormatTime(now), db.FormatTime(now), id)
}

func (s *Store) exec(ctx context.Context, id int64, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "failed to update import job %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("import job %d not found", id)
	}
	return nil
}

// LatestFinished returns the most recently finished real (not dry) run of
// the backend, or nil when it never finished.
func (s *Store) LatestFinished(ctx context.Context, name string) (*ImportJob, error) {
	return s.first(ctx, `SELECT `+columns+` FROM import_jobs
		WHERE name = ? AND dry_run = 0 AND finished_at IS NOT NULL
		ORDER BY finished_at DESC, id DESC LIMIT 1`, name)
}

// OldestStuck returns the oldest unfinished real run of the backend whose
// last update is before idleSince, or nil.
func (s *Store) OldestStuck(ctx context.Context, name string, idleSince time.Time) (*ImportJob, error) {
	return s.first(ctx, `SELECT `+columns+` FROM import_jobs
		WHERE name = ? AND dry_run = 0 AND finished_at IS NULL AND updated_at < ?
		ORDER BY updated_at ASC, id ASC LIMIT 1`, name, db.FormatTime(idleSince))
}

func (s *Store) first(ctx context.Context, query string, args ...interface{}) (*ImportJob, error) {
	j, err := scan(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query import jobs")
	}
	return j, nil
}
