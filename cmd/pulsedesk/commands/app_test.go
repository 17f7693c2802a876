package commands

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pulsedesk/am"
	pdtest "github.com/teranos/pulsedesk/internal/testing"
	"github.com/teranos/pulsedesk/pulse/schedule"
)

func testConfig(t *testing.T) *am.Config {
	t.Helper()
	v := viper.New()
	am.SetDefaults(v)
	v.Set("monitoring.unprocessable_mail_dir", t.TempDir())
	cfg, err := am.LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

func TestNewAppRegistersTasks(t *testing.T) {
	database := pdtest.CreateMigratedDB(t)
	a, err := newApp(testConfig(t), database)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = a.newTicker(ctx)
	require.NoError(t, err)

	tasks, err := a.tasks.List(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	methods := []string{tasks[0].Method, tasks[1].Method}
	assert.ElementsMatch(t, []string{methodAutomationRun, methodAsyncCleanup}, methods)
}

func TestNewTickerKeepsDisabledTask(t *testing.T) {
	database := pdtest.CreateMigratedDB(t)
	a, err := newApp(testConfig(t), database)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = a.newTicker(ctx)
	require.NoError(t, err)
	task, err := a.tasks.GetByMethod(ctx, methodAsyncCleanup)
	require.NoError(t, err)
	require.NoError(t, a.tasks.SetActive(ctx, task.ID, false, time.Now()))

	// a second start must not re-enable it
	b, err := newApp(testConfig(t), database)
	require.NoError(t, err)
	_, err = b.newTicker(ctx)
	require.NoError(t, err)

	task, err = a.tasks.GetByMethod(ctx, methodAsyncCleanup)
	require.NoError(t, err)
	assert.False(t, task.Active)
}

func TestTickerRunsAutomation(t *testing.T) {
	database := pdtest.CreateMigratedDB(t)
	a, err := newApp(testConfig(t), database)
	require.NoError(t, err)
	ctx := context.Background()

	ticker, err := a.newTicker(ctx)
	require.NoError(t, err)
	ran, err := ticker.RunDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, ran, "tasks that never ran are due")

	task, err := a.tasks.GetByMethod(ctx, methodAutomationRun)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusOK, task.Status)
	require.NotNil(t, task.LastRun)
}

func TestReloadAppliesThresholds(t *testing.T) {
	database := pdtest.CreateMigratedDB(t)
	cfg := testConfig(t)
	a, err := newApp(cfg, database)
	require.NoError(t, err)

	next := *cfg
	next.Monitoring.BacklogCeiling = 10
	next.Monitoring.Token = "configured"
	require.NoError(t, a.reload(&next))

	assert.Equal(t, 10, a.health.Config().BacklogCeiling)
	ok, err := a.auth.VerifyToken(context.Background(), "configured")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedactedHidesToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.Monitoring.Token = "secret"
	assert.Equal(t, "********", redacted(cfg).Monitoring.Token)
	assert.Equal(t, "secret", cfg.Monitoring.Token)
}
