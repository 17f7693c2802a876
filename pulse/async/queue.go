package async

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/teranos/pulsedesk/errors"
)

// QueueConfig controls retry behaviour
type QueueConfig struct {
	MaxAttempts  int           // Attempts before a job is marked failed
	RetryBackoff time.Duration // Delay per attempt before a retry
}

// DefaultQueueConfig returns sensible defaults
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{MaxAttempts: 25, RetryBackoff: 5 * time.Second}
}

// QueueStats summarizes the queue
type QueueStats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Queue is the job queue used by producers, workers and the monitor.
// Dequeue and the state transitions are serialized so two workers never
// pick the same job.
type Queue struct {
	store *Store
	cfg   QueueConfig
	mu    sync.Mutex
}

// NewQueue creates a new job queue
func NewQueue(db *sql.DB, cfg QueueConfig) *Queue {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Queue{store: NewStore(db), cfg: cfg}
}

// Store exposes the underlying store
func (q *Queue) Store() *Store {
	return q.store
}

// Enqueue adds a new job to the queue
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	if err := q.store.CreateJob(ctx, job); err != nil {
		return jobError(errors.Wrap(err, "failed to enqueue job"), job)
	}
	return nil
}

// Dequeue gets the next runnable job and marks it as running.
// Returns nil when nothing is runnable.
func (q *Queue) Dequeue(ctx context.Context, now time.Time) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.NextRunnable(ctx, now)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get queued job")
	}
	if job == nil {
		return nil, nil
	}

	job.Start(now)
	if err := q.store.UpdateJob(ctx, job); err != nil {
		return nil, jobError(errors.Wrap(err, "failed to mark job as running"), job)
	}
	return job, nil
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	return q.store.GetJob(ctx, id)
}

// Complete marks a job as completed
func (q *Queue) Complete(ctx context.Context, job *Job, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job.Complete(now)
	if err := q.store.UpdateJob(ctx, job); err != nil {
		return jobError(errors.Wrap(err, "failed to complete job"), job)
	}
	return nil
}

// Fail records a failed attempt, scheduling a retry or giving up.
func (q *Queue) Fail(ctx context.Context, job *Job, cause error, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job.Fail(cause, now, q.cfg.MaxAttempts, q.cfg.RetryBackoff)
	if err := q.store.UpdateJob(ctx, job); err != nil {
		err = jobError(errors.Wrap(err, "failed to record job failure"), job)
		return errors.WithDetailf(err, "Attempts: %d", job.Attempts)
	}
	return nil
}

// Stats returns job counts per status
func (q *Queue) Stats(ctx context.Context) (*QueueStats, error) {
	counts, err := q.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	return &QueueStats{
		Queued:    counts[JobStatusQueued],
		Running:   counts[JobStatusRunning],
		Completed: counts[JobStatusCompleted],
		Failed:    counts[JobStatusFailed],
	}, nil
}

// CountPending counts jobs waiting or running that were created before the cutoff.
func (q *Queue) CountPending(ctx context.Context, createdBefore time.Time) (int, error) {
	return q.store.CountPending(ctx, createdBefore)
}

// CountFailing counts jobs with more attempts than ceiling.
func (q *Queue) CountFailing(ctx context.Context, ceiling int) (int, error) {
	return q.store.CountFailing(ctx, ceiling)
}

// ListFailing returns up to limit of the oldest jobs with more attempts than ceiling.
func (q *Queue) ListFailing(ctx context.Context, ceiling, limit int) ([]*Job, error) {
	return q.store.ListFailing(ctx, ceiling, limit)
}

// RequeueFailed resets every job over the ceiling so it runs again.
func (q *Queue) RequeueFailed(ctx context.Context, ceiling int, now time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.RequeueFailing(ctx, ceiling, now)
}

// Cleanup deletes completed jobs older than maxAge.
func (q *Queue) Cleanup(ctx context.Context, maxAge time.Duration, now time.Time) (int, error) {
	return q.store.DeleteCompletedBefore(ctx, now.Add(-maxAge))
}
