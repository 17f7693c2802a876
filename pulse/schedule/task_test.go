package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pulsedesk/errors"
	"github.com/teranos/pulsedesk/internal/util"
)

var t0 = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func TestDueAtPeriod(t *testing.T) {
	task := &Task{Method: "m", Period: 10 * time.Minute}

	at, err := task.DueAt()
	require.NoError(t, err)
	assert.True(t, at.IsZero(), "never ran: due immediately")

	task.LastRun = util.Ptr(t0)
	at, err = task.DueAt()
	require.NoError(t, err)
	assert.Equal(t, t0.Add(10*time.Minute), at)

	due, err := task.Due(t0.Add(9 * time.Minute))
	require.NoError(t, err)
	assert.False(t, due)
	due, err = task.Due(t0.Add(10 * time.Minute))
	require.NoError(t, err)
	assert.True(t, due)
}

func TestDueAtCron(t *testing.T) {
	task := &Task{Method: "m", Cron: "30 2 * * *", LastRun: util.Ptr(t0)}
	at, err := task.DueAt()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 19, 2, 30, 0, 0, time.UTC), at)

	task.Cron = "@hourly"
	at, err = task.DueAt()
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour), at)
}

func TestOverdue(t *testing.T) {
	task := &Task{Method: "m", Period: 10 * time.Minute}
	late, err := task.Overdue(t0)
	require.NoError(t, err)
	assert.Zero(t, late, "never ran is never overdue")

	task.LastRun = util.Ptr(t0.Add(-20 * time.Minute))
	late, err = task.Overdue(t0)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, late)

	task.LastRun = util.Ptr(t0.Add(-5 * time.Minute))
	late, err = task.Overdue(t0)
	require.NoError(t, err)
	assert.Zero(t, late)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, (&Task{Method: "m", Period: time.Minute}).Validate())
	assert.NoError(t, (&Task{Method: "m", Cron: "*/5 * * * *"}).Validate())
	assert.True(t, errors.IsConfigurationError((&Task{Period: time.Minute}).Validate()))
	assert.True(t, errors.IsConfigurationError((&Task{Method: "m"}).Validate()))
	assert.True(t, errors.IsConfigurationError((&Task{Method: "m", Cron: "every tuesday"}).Validate()))
}
