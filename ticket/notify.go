package ticket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/pulsedesk/errors"
	"github.com/teranos/pulsedesk/logger"
	"github.com/teranos/pulsedesk/pulse/async"
)

// NotificationHandler is the background job type of change notifications.
const NotificationHandler = "ticket.notification"

// Notification is the payload of a ticket.notification job.
type Notification struct {
	TicketID int64    `json:"ticket_id"`
	Changes  []string `json:"changes"`
	ActorID  int64    `json:"actor_id"`
}

// QueueNotifier turns ticket changes into background jobs.
type QueueNotifier struct {
	queue *async.Queue
}

// NewQueueNotifier creates a notifier that enqueues on queue.
func NewQueueNotifier(queue *async.Queue) *QueueNotifier {
	return &QueueNotifier{queue: queue}
}

// TicketChanged implements Notifier
func (n *QueueNotifier) TicketChanged(ctx context.Context, t *Ticket, changes []string, actor int64, now time.Time) error {
	payload, err := json.Marshal(Notification{TicketID: t.ID, Changes: changes, ActorID: actor})
	if err != nil {
		return errors.Wrap(err, "failed to encode notification")
	}
	job, err := async.NewJob(NotificationHandler, fmt.Sprintf("ticket:%d", t.ID), payload, now)
	if err != nil {
		return err
	}
	return n.queue.Enqueue(ctx, job)
}

// Deliverer sends a notification to the people watching a ticket.
type Deliverer interface {
	Deliver(ctx context.Context, n Notification) error
}

// NotificationJobHandler executes ticket.notification jobs.
type NotificationJobHandler struct {
	deliverer Deliverer
}

// NewNotificationJobHandler creates the handler for ticket.notification jobs.
func NewNotificationJobHandler(d Deliverer) *NotificationJobHandler {
	return &NotificationJobHandler{deliverer: d}
}

// Name implements async.JobHandler
func (h *NotificationJobHandler) Name() string { return NotificationHandler }

// Execute implements async.JobHandler
func (h *NotificationJobHandler) Execute(ctx context.Context, job *async.Job) error {
	var n Notification
	if err := json.Unmarshal(job.Payload, &n); err != nil {
		return async.Permanent(errors.Wrap(err, "invalid notification payload"))
	}
	return h.deliverer.Deliver(ctx, n)
}

// LogDeliverer records notifications in the log. It stands in for mail
// delivery, which lives outside this daemon.
type LogDeliverer struct {
	log *zap.SugaredLogger
}

// NewLogDeliverer creates a deliverer writing to log (or the "ticket.notify" component logger).
func NewLogDeliverer(log *zap.SugaredLogger) *LogDeliverer {
	if log == nil {
		log = logger.ComponentLogger("ticket.notify")
	}
	return &LogDeliverer{log: log}
}

// Deliver implements Deliverer
func (d *LogDeliverer) Deliver(_ context.Context, n Notification) error {
	d.log.Infow("Ticket changed", "ticket_id", n.TicketID, "changes", n.Changes, logger.FieldActorID, n.ActorID)
	return nil
}
