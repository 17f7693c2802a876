package ticket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pulsedesk/automation/record"
	"github.com/teranos/pulsedesk/errors"
	pdtest "github.com/teranos/pulsedesk/internal/testing"
	"github.com/teranos/pulsedesk/pulse/async"
)

var t0 = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func TestGetSet(t *testing.T) {
	tk := &Ticket{ID: 7, StateID: 2, Title: "Printer on fire"}

	v, err := tk.Get("ticket.state_id")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	require.NoError(t, tk.Set("ticket.state_id", "4"))
	assert.Equal(t, int64(4), tk.StateID)
	require.NoError(t, tk.Set("ticket.pending_time", "2026-10-20T08:00:00Z"))
	require.NotNil(t, tk.PendingTime)
	assert.Equal(t, []string{"pending_time", "state_id"}, tk.Changes())
	assert.True(t, tk.Dirty())

	_, err = tk.Get("ticket.nope")
	assert.True(t, errors.IsNotFoundError(err))
	assert.True(t, errors.IsNotFoundError(tk.Set("ticket.updated_at", "x")), "audit columns are read-only")
	assert.True(t, errors.IsInvalidRequestError(tk.Set("ticket.owner_id", "nobody")))
	assert.True(t, errors.IsNotFoundError(tk.Set("user.active", "false")))
}

func TestStoreCreateGetList(t *testing.T) {
	ctx := context.Background()
	s := NewStore(pdtest.CreateMigratedDB(t), nil)

	tk := &Ticket{Number: "10001", Title: "VPN down", GroupID: 1, StateID: 1, PriorityID: 2, OwnerID: 1, CustomerID: 1}
	require.NoError(t, s.Create(ctx, tk, 1, t0))
	require.NotZero(t, tk.ID)

	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "VPN down", got.Title)
	assert.True(t, got.CreatedAt.Equal(t0))
	assert.Nil(t, got.PendingTime)

	_, err = s.Get(ctx, 999)
	assert.True(t, errors.IsNotFoundError(err))

	require.NoError(t, s.Create(ctx, &Ticket{Number: "10002", Title: "second"}, 1, t0))
	candidates, err := s.Candidates(ctx, 0, 1)
	require.NoError(t, err)
	assert.Len(t, candidates, 1)

	rest, err := s.Candidates(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "10002", rest[0].(*Ticket).Number)
}

type recordingNotifier struct {
	calls []Notification
}

func (r *recordingNotifier) TicketChanged(_ context.Context, t *Ticket, changes []string, actor int64, _ time.Time) error {
	r.calls = append(r.calls, Notification{TicketID: t.ID, Changes: changes, ActorID: actor})
	return nil
}

func TestSaveOnlyWritesDirtyTickets(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	s := NewStore(pdtest.CreateMigratedDB(t), n)

	tk := &Ticket{Number: "10001", Title: "VPN down", StateID: 2}
	require.NoError(t, s.Create(ctx, tk, 1, t0))

	later := t0.Add(time.Hour)
	require.NoError(t, s.Save(ctx, tk, record.SaveOptions{Actor: 5, Now: later}))
	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(t0), "clean ticket is not written")
	assert.Empty(t, n.calls)

	require.NoError(t, tk.Set("ticket.state_id", "4"))
	require.NoError(t, s.Save(ctx, tk, record.SaveOptions{Actor: 5, Now: later}))

	got, err = s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.StateID)
	assert.Equal(t, int64(5), got.UpdatedByID)
	assert.True(t, got.UpdatedAt.Equal(later))
	assert.False(t, tk.Dirty())

	require.Len(t, n.calls, 1)
	assert.Equal(t, []string{"state_id"}, n.calls[0].Changes)
	assert.Equal(t, int64(5), n.calls[0].ActorID)
}

func TestSaveWithNotificationsDisabled(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	s := NewStore(pdtest.CreateMigratedDB(t), n)

	tk := &Ticket{Number: "10001", Title: "VPN down"}
	require.NoError(t, s.Create(ctx, tk, 1, t0))
	require.NoError(t, tk.Set("ticket.title", "VPN up"))
	require.NoError(t, s.Save(ctx, tk, record.SaveOptions{Actor: 1, DisableNotification: true, Now: t0}))

	assert.Empty(t, n.calls)
}

func TestQueueNotifierEnqueuesJob(t *testing.T) {
	ctx := context.Background()
	database := pdtest.CreateMigratedDB(t)
	q := async.NewQueue(database, async.DefaultQueueConfig())
	s := NewStore(database, NewQueueNotifier(q))

	tk := &Ticket{Number: "10001", Title: "VPN down"}
	require.NoError(t, s.Create(ctx, tk, 1, t0))
	require.NoError(t, tk.Set("ticket.owner_id", int64(3)))
	require.NoError(t, s.Save(ctx, tk, record.SaveOptions{Actor: 1, Now: t0}))

	jobs, err := q.Store().ListJobs(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, NotificationHandler, jobs[0].HandlerName)

	var payload Notification
	require.NoError(t, json.Unmarshal(jobs[0].Payload, &payload))
	assert.Equal(t, tk.ID, payload.TicketID)
	assert.Equal(t, []string{"owner_id"}, payload.Changes)

	delivered := &recordingDeliverer{}
	h := NewNotificationJobHandler(delivered)
	require.NoError(t, h.Execute(ctx, jobs[0]))
	assert.Equal(t, []Notification{payload}, delivered.sent)

	err = h.Execute(ctx, &async.Job{Payload: []byte("not json")})
	assert.True(t, errors.Is(err, async.ErrPermanent))
}

type recordingDeliverer struct {
	sent []Notification
}

func (r *recordingDeliverer) Deliver(_ context.Context, n Notification) error {
	r.sent = append(r.sent, n)
	return nil
}
