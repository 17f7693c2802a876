package perform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/teranos/pulsedesk/automation/record"
	"github.com/teranos/pulsedesk/errors"
)

type fakeTicket struct {
	fields map[string]string
	sets   int
}

func (f *fakeTicket) Entity() string { return "ticket" }

func (f *fakeTicket) Get(path string) (interface{}, error) {
	v, ok := f.fields[path]
	if !ok {
		return nil, record.UnknownField(path)
	}
	return v, nil
}

func (f *fakeTicket) Set(path string, value interface{}) error {
	if _, ok := f.fields[path]; !ok {
		return record.UnknownField(path)
	}
	f.fields[path] = record.String(value)
	f.sets++
	return nil
}

func TestPerformJSON(t *testing.T) {
	var p Perform
	raw := `{"ticket.state_id":{"value":4},"ticket.owner_id":{"value":"1"}}`
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Equal(t, Perform{{Path: "ticket.state_id", Value: "4"}, {Path: "ticket.owner_id", Value: "1"}}, p)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, `{"ticket.state_id":{"value":"4"},"ticket.owner_id":{"value":"1"}}`, string(data))
}

func TestPerformYAML(t *testing.T) {
	var p Perform
	require.NoError(t, yaml.Unmarshal([]byte("ticket.state_id:\n  value: 4\nticket.title:\n  value: closed by rule\n"), &p))
	assert.Equal(t, Perform{{Path: "ticket.state_id", Value: "4"}, {Path: "ticket.title", Value: "closed by rule"}}, p)
}

func TestApplyChangesOnlyDifferingValues(t *testing.T) {
	a := NewApplier()
	tk := &fakeTicket{fields: map[string]string{"ticket.state_id": "2", "ticket.owner_id": "1"}}
	p := Perform{{Path: "ticket.state_id", Value: "4"}, {Path: "ticket.owner_id", Value: "1"}}

	changed, err := a.Apply(tk, p)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, tk.sets)
	assert.Equal(t, "4", tk.fields["ticket.state_id"])

	changed, err = a.Apply(tk, p)
	require.NoError(t, err)
	assert.False(t, changed, "second apply is a no-op")
	assert.Equal(t, 1, tk.sets)
}

func TestApplyRejectsForeignEntity(t *testing.T) {
	a := NewApplier()
	tk := &fakeTicket{fields: map[string]string{}}

	_, err := a.Apply(tk, Perform{{Path: "user.active", Value: "false"}})
	assert.True(t, errors.IsConfigurationError(err))
}

func TestApplyUnknownField(t *testing.T) {
	a := NewApplier()
	tk := &fakeTicket{fields: map[string]string{}}

	_, err := a.Apply(tk, Perform{{Path: "ticket.nope", Value: "1"}})
	assert.True(t, errors.IsNotFoundError(err))
}

func TestValidate(t *testing.T) {
	a := NewApplier()
	assert.NoError(t, a.Validate(Perform{{Path: "ticket.state_id", Value: "4"}}))
	assert.True(t, errors.IsConfigurationError(a.Validate(nil)))
	assert.True(t, errors.IsConfigurationError(a.Validate(Perform{{Path: "state_id", Value: "4"}})))
}
