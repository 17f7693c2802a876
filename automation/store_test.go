package automation

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pulsedesk/automation/condition"
	"github.com/teranos/pulsedesk/automation/perform"
	"github.com/teranos/pulsedesk/automation/timeplan"
	"github.com/teranos/pulsedesk/errors"
	pdtest "github.com/teranos/pulsedesk/internal/testing"
)

func sampleJob(name string) *Job {
	return &Job{
		Name:     name,
		Timeplan: timeplan.Always(),
		Condition: condition.Condition{
			{Path: "ticket.state_id", Operator: condition.OpIs, Value: condition.List("2", "3")},
			{Path: "ticket.pending_time", Operator: condition.OpBeforeRelative, Value: condition.Single("1"), Range: "day"},
		},
		Perform:             perform.Perform{{Path: "ticket.state_id", Value: "4"}},
		Active:              true,
		DisableNotification: true,
	}
}

func TestStoreCreateGet(t *testing.T) {
	ctx := context.Background()
	s := NewStore(pdtest.CreateMigratedDB(t))

	job := sampleJob("close pending")
	require.NoError(t, s.Create(ctx, job, 3, t0))
	require.NotZero(t, job.ID)

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Name, got.Name)
	assert.Equal(t, job.Timeplan, got.Timeplan)
	assert.Equal(t, job.Condition, got.Condition)
	assert.Equal(t, job.Perform, got.Perform)
	assert.Equal(t, int64(3), got.CreatedByID)
	assert.Nil(t, got.LastRunAt)
	assert.True(t, got.UpdatedAt.Equal(t0))

	byName, err := s.GetByName(ctx, "close pending")
	require.NoError(t, err)
	assert.Equal(t, job.ID, byName.ID)

	_, err = s.Get(ctx, 404)
	assert.True(t, errors.IsNotFoundError(err))
	_, err = s.GetByName(ctx, "nope")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStoreNameIsUnique(t *testing.T) {
	ctx := context.Background()
	s := NewStore(pdtest.CreateMigratedDB(t))
	require.NoError(t, s.Create(ctx, sampleJob("a"), 1, t0))
	assert.Error(t, s.Create(ctx, sampleJob("a"), 1, t0))
}

func TestStoreListActiveAndUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewStore(pdtest.CreateMigratedDB(t))

	a, b := sampleJob("a"), sampleJob("b")
	b.Active = false
	require.NoError(t, s.Create(ctx, a, 1, t0))
	require.NoError(t, s.Create(ctx, b, 1, t0))

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a", active[0].Name)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	edit := t0.Add(time.Hour)
	a.Perform = perform.Perform{{Path: "ticket.state_id", Value: "5"}}
	require.NoError(t, s.Update(ctx, a, 2, edit))
	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "5", got.Perform[0].Value)
	assert.True(t, got.UpdatedAt.Equal(edit))
	assert.Equal(t, int64(2), got.UpdatedByID)

	require.NoError(t, s.SetActive(ctx, b.ID, true, 1, edit))
	active, err = s.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	require.NoError(t, s.Delete(ctx, b.ID))
	assert.True(t, errors.IsNotFoundError(s.Delete(ctx, b.ID)))
}

func TestStoreFinishPassLeavesUpdatedAt(t *testing.T) {
	ctx := context.Background()
	s := NewStore(pdtest.CreateMigratedDB(t))
	job := sampleJob("a")
	require.NoError(t, s.Create(ctx, job, 1, t0))

	require.NoError(t, s.MarkRunning(ctx, job.ID, true))
	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, got.Running)

	ran := t0.Add(time.Hour)
	require.NoError(t, s.FinishPass(ctx, job.ID, ran, 7, 5))

	got, err = s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, got.Running)
	assert.Equal(t, 7, got.Matching)
	assert.Equal(t, 5, got.Processed)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, got.LastRunAt.Equal(ran))
	assert.True(t, got.UpdatedAt.Equal(t0), "bookkeeping is not an edit")
}

func TestStoreListActiveDriverError(t *testing.T) {
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	mock.ExpectQuery("SELECT .* FROM automation_jobs WHERE active = 1").
		WillReturnError(errors.New("database is locked"))

	_, err = NewStore(database).ListActive(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreListKeepsUndecodableJobs(t *testing.T) {
	ctx := context.Background()
	database := pdtest.CreateMigratedDB(t)
	s := NewStore(database)

	a, b := sampleJob("a"), sampleJob("b")
	require.NoError(t, s.Create(ctx, a, 1, t0))
	require.NoError(t, s.Create(ctx, b, 1, t0))
	_, err := database.ExecContext(ctx, `UPDATE automation_jobs SET perform = 'not json' WHERE id = ?`, b.ID)
	require.NoError(t, err)

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.NoError(t, active[0].DefinitionErr)
	assert.True(t, errors.Is(active[1].DefinitionErr, errors.ErrConfiguration))
	assert.Contains(t, active[1].DefinitionErr.Error(), "invalid perform")
}
