package schedule

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/teranos/pulsedesk/errors"
)

// Task statuses recorded after each execution
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusError   = "error"
)

// Task is a periodically executed method. A task runs every Period after
// its last run, or at the activations of Cron when that is set.
type Task struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	Method       string        `json:"method"`
	Period       time.Duration `json:"period"`
	Cron         string        `json:"cron,omitempty"`
	Active       bool          `json:"active"`
	LastRun      *time.Time    `json:"last_run,omitempty"`
	PID          string        `json:"pid,omitempty"`
	Status       string        `json:"status,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a standard five field expression or a descriptor
// such as "@hourly".
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "invalid cron expression %q", expr), errors.ErrConfiguration)
	}
	return sched, nil
}

// Validate checks that the task has a method and a usable schedule.
func (t *Task) Validate() error {
	if t.Method == "" {
		return errors.NewConfigurationError("task %q has no method", t.Name)
	}
	if t.Cron != "" {
		_, err := ParseCron(t.Cron)
		return err
	}
	if t.Period <= 0 {
		return errors.NewConfigurationError("task %q needs a positive period or a cron expression", t.Method)
	}
	return nil
}

// DueAt returns when the task should run next. A task that never ran is
// due immediately (zero time).
func (t *Task) DueAt() (time.Time, error) {
	if t.LastRun == nil {
		return time.Time{}, nil
	}
	if t.Cron != "" {
		sched, err := ParseCron(t.Cron)
		if err != nil {
			return time.Time{}, err
		}
		return sched.Next(*t.LastRun), nil
	}
	return t.LastRun.Add(t.Period), nil
}

// Due reports whether the task should run at now.
func (t *Task) Due(now time.Time) (bool, error) {
	at, err := t.DueAt()
	if err != nil {
		return false, err
	}
	return !now.Before(at), nil
}

// Overdue returns how far now is past the task's due time, or 0 when the
// task is not late. Tasks that never ran are never overdue.
func (t *Task) Overdue(now time.Time) (time.Duration, error) {
	if t.LastRun == nil {
		return 0, nil
	}
	at, err := t.DueAt()
	if err != nil {
		return 0, err
	}
	if late := now.Sub(at); late > 0 {
		return late, nil
	}
	return 0, nil
}
