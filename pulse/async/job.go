// Package async provides the background job queue: a sqlite-backed store,
// a queue with retry bookkeeping and a worker pool that runs registered
// handlers.
package async

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/pulsedesk/errors"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed" // attempts exhausted
)

// IsValidStatus returns true if the status string is a valid JobStatus
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// Job is a unit of background work.
//
// A job is "failing" once it has more attempts than the monitor's retry
// ceiling, whether it is still queued for a retry or has given up.
type Job struct {
	ID          string          `json:"id"`
	HandlerName string          `json:"handler_name"`      // payload type, e.g. "ticket.notification"
	Payload     json.RawMessage `json:"payload,omitempty"` // handler-owned
	Source      string          `json:"source"`            // for logging, e.g. "ticket:42"
	Status      JobStatus       `json:"status"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"last_error,omitempty"`
	RunAt       time.Time       `json:"run_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// NewJob creates a queued job that is runnable at now.
func NewJob(handlerName, source string, payload json.RawMessage, now time.Time) (*Job, error) {
	if handlerName == "" {
		return nil, errors.New("handlerName cannot be empty")
	}
	now = now.UTC()
	return &Job{
		ID:          uuid.NewString(),
		HandlerName: handlerName,
		Payload:     payload,
		Source:      source,
		Status:      JobStatusQueued,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Start marks the job as running
func (j *Job) Start(now time.Time) {
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
}

// Complete marks the job as completed
func (j *Job) Complete(now time.Time) {
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Fail records a failed attempt. The job is queued again after
// attempts*backoff, or marked failed once maxAttempts is reached.
func (j *Job) Fail(err error, now time.Time, maxAttempts int, backoff time.Duration) {
	j.Attempts++
	j.LastError = err.Error()
	j.UpdatedAt = now
	if j.Attempts >= maxAttempts || errors.Is(err, ErrPermanent) {
		j.Status = JobStatusFailed
		j.CompletedAt = &now
		return
	}
	j.Status = JobStatusQueued
	j.RunAt = now.Add(time.Duration(j.Attempts) * backoff)
}

// Requeue resets a failing job so it runs again from scratch.
func (j *Job) Requeue(now time.Time) {
	j.Status = JobStatusQueued
	j.Attempts = 0
	j.LastError = ""
	j.RunAt = now
	j.UpdatedAt = now
	j.StartedAt = nil
	j.CompletedAt = nil
}
