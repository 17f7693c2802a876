package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pulsedesk/errors"
	pdtest "github.com/teranos/pulsedesk/internal/testing"
	"github.com/teranos/pulsedesk/internal/util"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(pdtest.CreateMigratedDB(t))
}

func TestUpsertCreatesAndUpdates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	task := &Task{Name: "Automation jobs", Method: "automation.Runner.run", Period: 5 * time.Minute, Active: true}
	require.NoError(t, store.Upsert(ctx, task, t0))
	assert.NotZero(t, task.ID)
	assert.Nil(t, task.LastRun)

	require.NoError(t, store.MarkStarted(ctx, task.ID, "42", t0))

	changed := &Task{Name: "Automation", Method: "automation.Runner.run", Period: 10 * time.Minute, Active: true}
	require.NoError(t, store.Upsert(ctx, changed, t0.Add(time.Minute)))
	assert.Equal(t, task.ID, changed.ID)
	assert.Equal(t, "Automation", changed.Name)
	assert.Equal(t, 10*time.Minute, changed.Period)
	require.NotNil(t, changed.LastRun, "run state survives a definition update")
	assert.True(t, changed.LastRun.Equal(t0))

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsertRejectsInvalidTask(t *testing.T) {
	store := newTestStore(t)
	err := store.Upsert(context.Background(), &Task{Method: "x", Cron: "nope"}, t0)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestListActiveAndSetActive(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	a := &Task{Name: "a", Method: "a", Period: time.Minute, Active: true}
	b := &Task{Name: "b", Method: "b", Cron: "@daily", Active: true}
	require.NoError(t, store.Upsert(ctx, a, t0))
	require.NoError(t, store.Upsert(ctx, b, t0))
	require.NoError(t, store.SetActive(ctx, a.ID, false, t0))

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "b", active[0].Method)
	assert.Equal(t, "@daily", active[0].Cron)

	assert.True(t, errors.IsNotFoundError(store.SetActive(ctx, 999, true, t0)))

	_, err = store.GetByMethod(ctx, "missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestMarkStartedAndFinish(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	task := &Task{Name: "a", Method: "a", Period: time.Minute, Active: true}
	require.NoError(t, store.Upsert(ctx, task, t0))

	require.NoError(t, store.MarkStarted(ctx, task.ID, "7", t0))
	got, err := store.GetByMethod(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, "7", got.PID)

	require.NoError(t, store.Finish(ctx, task.ID, errors.New("boom"), t0.Add(time.Second)))
	got, err = store.GetByMethod(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, "boom", got.ErrorMessage)
	assert.Empty(t, got.PID)
	assert.True(t, got.LastRun.Equal(t0))

	require.NoError(t, store.Finish(ctx, task.ID, nil, t0.Add(2*time.Second)))
	got, err = store.GetByMethod(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, got.Status)
	assert.Empty(t, got.ErrorMessage)

	require.NoError(t, store.SetLastRun(ctx, task.ID, util.Ptr(t0.Add(-time.Hour))))
	got, err = store.GetByMethod(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.LastRun.Equal(t0.Add(-time.Hour)))
}
