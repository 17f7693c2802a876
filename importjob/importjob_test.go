package importjob

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

var t0 = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewStore(pdtest.CreateMigratedDB(t))

	j := &ImportJob{Name: "Import::Ldap"}
	require.NoError(t, store.Create(ctx, j, t0))
	require.NoError(t, store.Start(ctx, j.ID, t0))
	require.NoError(t, store.Touch(ctx, j.ID, t0.Add(time.Minute)))
	require.NoError(t, store.Finish(ctx, j.ID, Result{Error: "Some bad error"}, t0.Add(2*time.Minute)))

	got, err := store.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.True(t, got.Failed())
	assert.Equal(t, "Some bad error", got.Result.Error)
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.Equal(t0))
	assert.True(t, got.UpdatedAt.Equal(t0.Add(2*time.Minute)))

	assert.True(t, errors.IsNotFoundError(store.Touch(ctx, 999, t0)))
	assert.True(t, errors.IsInvalidRequestError(store.Create(ctx, &ImportJob{}, t0)))
}

func TestFailedAndStuck(t *testing.T) {
	running := &ImportJob{UpdatedAt: t0.Add(-11 * time.Minute)}
	assert.True(t, running.Stuck(t0, 10*time.Minute))
	assert.False(t, running.Stuck(t0.Add(-2*time.Minute), 10*time.Minute))
	assert.False(t, running.Failed())

	finished := &ImportJob{UpdatedAt: t0.Add(-time.Hour), FinishedAt: util.Ptr(t0.Add(-time.Hour)), Result: Result{Error: "x"}}
	assert.False(t, finished.Stuck(t0, 10*time.Minute))
	assert.True(t, finished.Failed())
}

func TestLatestFinishedAndOldestStuck(t *testing.T) {
	ctx := context.Background()
	store := NewStore(pdtest.CreateMigratedDB(t))

	none, err := store.LatestFinished(ctx, "Import::Ldap")
	require.NoError(t, err)
	assert.Nil(t, none)

	failed := &ImportJob{Name: "Import::Ldap"}
	require.NoError(t, store.Create(ctx, failed, t0.Add(-2*time.Hour)))
	require.NoError(t, store.Finish(ctx, failed.ID, Result{Error: "bind failed"}, t0.Add(-time.Hour)))

	dry := &ImportJob{Name: "Import::Ldap", DryRun: true}
	require.NoError(t, store.Create(ctx, dry, t0.Add(-time.Hour)))
	require.NoError(t, store.Finish(ctx, dry.ID, Result{}, t0.Add(-30*time.Minute)))

	latest, err := store.LatestFinished(ctx, "Import::Ldap")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, failed.ID, latest.ID, "dry runs are ignored")

	ok := &ImportJob{Name: "Import::Ldap"}
	require.NoError(t, store.Create(ctx, ok, t0.Add(-20*time.Minute)))
	require.NoError(t, store.Finish(ctx, ok.ID, Result{Stats: map[string]interface{}{"users": 3}}, t0.Add(-15*time.Minute)))
	latest, err = store.LatestFinished(ctx, "Import::Ldap")
	require.NoError(t, err)
	assert.False(t, latest.Failed(), "a later success clears the failure")

	hung := &ImportJob{Name: "Import::Ldap"}
	require.NoError(t, store.Create(ctx, hung, t0.Add(-12*time.Minute)))
	fresh := &ImportJob{Name: "Import::Ldap"}
	require.NoError(t, store.Create(ctx, fresh, t0.Add(-time.Minute)))

	stuck, err := store.OldestStuck(ctx, "Import::Ldap", t0.Add(-10*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, stuck)
	assert.Equal(t, hung.ID, stuck.ID)

	stuck, err = store.OldestStuck(ctx, "Import::Zendesk", t0.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, stuck)
}
