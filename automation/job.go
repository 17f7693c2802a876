// Package automation runs time-planned jobs that match records against a
// condition and apply a perform to the matches.
package automation

import (
	"strings"
	"time"

	"github.com/teranos/pulsedesk/automation/condition"
	"github.com/teranos/pulsedesk/automation/perform"
	"github.com/teranos/pulsedesk/automation/timeplan"
)

// Job is a stored automation rule.
type Job struct {
	ID                  int64               `json:"id"`
	Name                string              `json:"name"`
	Timeplan            timeplan.Plan       `json:"timeplan"`
	Condition           condition.Condition `json:"condition"`
	Perform             perform.Perform     `json:"perform"`
	Active              bool                `json:"active"`
	DisableNotification bool                `json:"disable_notification"`
	Matching            int                 `json:"matching"`  // records matched on the last completed pass
	Processed           int                 `json:"processed"` // records written on the last completed pass
	Running             bool                `json:"running"`
	LastRunAt           *time.Time          `json:"last_run_at"`
	CreatedByID         int64               `json:"created_by_id"`
	UpdatedByID         int64               `json:"updated_by_id"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`

	// DefinitionErr is set when the stored timeplan, condition or perform
	// could not be decoded. Such a job is never run.
	DefinitionErr error `json:"-"`
}

// Entity returns the record entity the job writes to, taken from its
// first perform action.
func (j *Job) Entity() string {
	if len(j.Perform) == 0 {
		return ""
	}
	entity, _, _ := strings.Cut(j.Perform[0].Path, ".")
	return entity
}

// Skip reasons reported by Eligible.
const (
	SkipInactive    = "inactive"
	SkipCoolingDown = "cooling down"
	SkipOutOfWindow = "out of window"
	SkipInvalid     = "invalid definition"
)

// Eligible reports whether the job may run at now. When it may not, the
// reason is one of the Skip constants. Both the last run and the last edit
// must be at least cooldown in the past, and now (in loc) must be inside
// the timeplan.
func (j *Job) Eligible(now time.Time, cooldown time.Duration, loc *time.Location) (bool, string) {
	if !j.Active {
		return false, SkipInactive
	}
	if j.LastRunAt != nil && now.Sub(*j.LastRunAt) < cooldown {
		return false, SkipCoolingDown
	}
	if now.Sub(j.UpdatedAt) < cooldown {
		return false, SkipCoolingDown
	}
	if loc == nil {
		loc = time.UTC
	}
	if !j.Timeplan.InWindow(now.In(loc)) {
		return false, SkipOutOfWindow
	}
	return true, ""
}
