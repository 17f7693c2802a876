package async

import (
	"github.com/teranos/pulsedesk/errors"
)

// ErrPermanent marks handler errors that must not be retried.
var ErrPermanent = errors.New("permanent job failure")

// Permanent wraps err so the job is marked failed without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrPermanent)
}

// jobError attaches the job's identity to err as details.
func jobError(err error, job *Job) error {
	err = errors.WithDetailf(err, "Job ID: %s", job.ID)
	err = errors.WithDetailf(err, "Handler: %s", job.HandlerName)
	if job.Source != "" {
		err = errors.WithDetailf(err, "Source: %s", job.Source)
	}
	return err
}
