package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/pulsedesk/automation/perform"
	"github.com/teranos/pulsedesk/automation/timeplan"
)

var t0 = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC) // Sunday

func TestEligible(t *testing.T) {
	cooldown := 10 * time.Minute
	recent := t0.Add(-time.Minute)
	old := t0.Add(-time.Hour)

	cases := []struct {
		name   string
		job    Job
		ok     bool
		reason string
	}{
		{"inactive", Job{Active: false, Timeplan: timeplan.Always(), UpdatedAt: old}, false, SkipInactive},
		{"never ran", Job{Active: true, Timeplan: timeplan.Always(), UpdatedAt: old}, true, ""},
		{"ran recently", Job{Active: true, Timeplan: timeplan.Always(), UpdatedAt: old, LastRunAt: &recent}, false, SkipCoolingDown},
		{"edited recently", Job{Active: true, Timeplan: timeplan.Always(), UpdatedAt: recent, LastRunAt: &old}, false, SkipCoolingDown},
		{"out of window", Job{Active: true, Timeplan: timeplan.Plan{}, UpdatedAt: old}, false, SkipOutOfWindow},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := tc.job.Eligible(t0, cooldown, time.UTC)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestEligibleNeverRightAfterRun(t *testing.T) {
	job := Job{Active: true, Timeplan: timeplan.Always(), UpdatedAt: t0, LastRunAt: &t0}
	for _, d := range []time.Duration{0, time.Second, time.Minute, 9*time.Minute + 59*time.Second} {
		ok, _ := job.Eligible(t0.Add(d), 10*time.Minute, time.UTC)
		assert.False(t, ok, "after %s", d)
	}
	ok, _ := job.Eligible(t0.Add(10*time.Minute), 10*time.Minute, time.UTC)
	assert.True(t, ok)
}

func TestEligibleUsesLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skip("tzdata not available")
	}
	plan, err := timeplan.FromMaps(map[string]bool{"Sun": true}, map[string]bool{"18": true}, map[string]bool{"0": true})
	assert.NoError(t, err)
	job := Job{Active: true, Timeplan: plan, UpdatedAt: t0.Add(-time.Hour)}

	ok, _ := job.Eligible(t0, 0, time.UTC)
	assert.False(t, ok)
	ok, _ = job.Eligible(t0, 0, tokyo) // 18:00 JST
	assert.True(t, ok)
}

func TestJobEntity(t *testing.T) {
	j := Job{Perform: perform.Perform{{Path: "ticket.state_id", Value: "4"}}}
	assert.Equal(t, "ticket", j.Entity())
	assert.Equal(t, "", (&Job{}).Entity())
}
