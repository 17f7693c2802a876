package automation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pulsedesk/automation/condition"
	"github.com/teranos/pulsedesk/errors"
)

const yamlDefinitions = `
jobs:
  - name: close stale pending
    timeplan:
      days: {Mon: true, Tue: true}
      hours: {"9": true}
      minutes: {"0": true}
    condition:
      ticket.state_id:
        operator: is
        value: ["3"]
      ticket.pending_time:
        operator: before (relative)
        value: 2
        range: day
    perform:
      ticket.state_id:
        value: 4
  - name: paused
    active: false
    disable_notification: false
    perform:
      ticket.priority_id:
        value: 1
`

const tomlDefinitions = `
[[jobs]]
name = "close stale pending"
[jobs.timeplan.days]
Mon = true
Tue = true
[jobs.timeplan.hours]
9 = true
[jobs.timeplan.minutes]
0 = true
[[jobs.condition]]
path = "ticket.state_id"
operator = "is"
value = ["3"]
[[jobs.condition]]
path = "ticket.pending_time"
operator = "before (relative)"
value = 2
range = "day"
[[jobs.perform]]
path = "ticket.state_id"
value = 4
`

func TestParseDefinitionsYAML(t *testing.T) {
	defs, err := ParseDefinitions([]byte(yamlDefinitions), "yaml")
	require.NoError(t, err)
	require.Len(t, defs, 2)

	job := defs[0].Job()
	assert.Equal(t, "close stale pending", job.Name)
	assert.True(t, job.Active)
	assert.True(t, job.DisableNotification)
	assert.True(t, job.Timeplan.Days[0])
	assert.True(t, job.Timeplan.Days[1])
	assert.False(t, job.Timeplan.Days[2])
	assert.True(t, job.Timeplan.Hours[9])
	assert.True(t, job.Timeplan.Minutes[0])

	require.Len(t, job.Condition, 2)
	assert.Equal(t, "ticket.state_id", job.Condition[0].Path)
	assert.Equal(t, condition.List("3"), job.Condition[0].Value)
	assert.Equal(t, "ticket.pending_time", job.Condition[1].Path)
	assert.Equal(t, "day", job.Condition[1].Range)
	assert.Equal(t, "4", job.Perform[0].Value)

	paused := defs[1].Job()
	assert.False(t, paused.Active)
	assert.False(t, paused.DisableNotification)
}

func TestParseDefinitionsTOMLMatchesYAML(t *testing.T) {
	fromTOML, err := ParseDefinitions([]byte(tomlDefinitions), "toml")
	require.NoError(t, err)
	fromYAML, err := ParseDefinitions([]byte(yamlDefinitions), "yml")
	require.NoError(t, err)

	require.Len(t, fromTOML, 1)
	a, b := fromTOML[0].Job(), fromYAML[0].Job()
	assert.Equal(t, b.Timeplan, a.Timeplan)
	assert.Equal(t, b.Condition, a.Condition)
	assert.Equal(t, b.Perform, a.Perform)
}

func TestParseDefinitionsErrors(t *testing.T) {
	_, err := ParseDefinitions([]byte("jobs:\n  - name: a\n  - name: a\n"), "yaml")
	assert.True(t, errors.IsConfigurationError(err))

	_, err = ParseDefinitions([]byte("jobs:\n  - active: true\n"), "yaml")
	assert.True(t, errors.IsConfigurationError(err))

	_, err = ParseDefinitions([]byte("[[jobs]]\nname = \"x\"\n[jobs.timeplan.days]\nFunday = true\n"), "toml")
	assert.True(t, errors.IsConfigurationError(err))

	_, err = ParseDefinitions([]byte("{}"), "json")
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestLoadDefinitionsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.toml")
	require.NoError(t, os.WriteFile(path, []byte(tomlDefinitions), 0644))

	defs, err := LoadDefinitionsFile(path)
	require.NoError(t, err)
	assert.Len(t, defs, 1)

	_, err = LoadDefinitionsFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestImportCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	defs, err := ParseDefinitions([]byte(yamlDefinitions), "yaml")
	require.NoError(t, err)

	res, err := Import(ctx, f.jobs, f.runner, defs, actor, t0)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Created: 2}, res)

	defs[0].Perform[0].Value = "5"
	res, err = Import(ctx, f.jobs, f.runner, defs, actor, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Updated: 2}, res)

	job, err := f.jobs.GetByName(ctx, "close stale pending")
	require.NoError(t, err)
	assert.Equal(t, "5", job.Perform[0].Value)
	assert.True(t, job.UpdatedAt.Equal(t0.Add(time.Hour)))

	all, err := f.jobs.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestImportRejectsInvalidBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	defs, err := ParseDefinitions([]byte(yamlDefinitions), "yaml")
	require.NoError(t, err)
	defs[1].Perform[0].Path = "invoice.paid"

	_, err = Import(ctx, f.jobs, f.runner, defs, actor, t0)
	assert.True(t, errors.IsConfigurationError(err))

	all, err := f.jobs.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "nothing is written when one definition is invalid")
}
