package ticket

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/pulsedesk/automation/record"
	"github.com/teranos/pulsedesk/db"
	"github.com/teranos/pulsedesk/errors"
)

// Notifier receives ticket changes written with notifications enabled.
type Notifier interface {
	TicketChanged(ctx context.Context, t *Ticket, changes []string, actor int64, now time.Time) error
}

// Store persists tickets and serves them to the automation runner.
type Store struct {
	db       *sql.DB
	notifier Notifier
}

// NewStore creates a ticket store. notifier may be nil.
func NewStore(db *sql.DB, notifier Notifier) *Store {
	return &Store{db: db, notifier: notifier}
}

const ticketColumns = `id, number, title, group_id, state_id, priority_id, owner_id, customer_id,
	pending_time, created_by_id, updated_by_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTicket(row rowScanner) (*Ticket, error) {
	var t Ticket
	var pending sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&t.ID, &t.Number, &t.Title, &t.GroupID, &t.StateID, &t.PriorityID,
		&t.OwnerID, &t.CustomerID, &pending, &t.CreatedByID, &t.UpdatedByID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if t.PendingTime, err = db.ParseNullTime(pending); err != nil {
		return nil, errors.Wrapf(err, "failed to parse pending_time for ticket %d", t.ID)
	}
	if t.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for ticket %d", t.ID)
	}
	if t.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for ticket %d", t.ID)
	}
	return &t, nil
}

// Entity implements record.Store
func (s *Store) Entity() string { return Entity }

// Create inserts a ticket and stamps its audit columns.
func (s *Store) Create(ctx context.Context, t *Ticket, actor int64, now time.Time) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now.UTC()
	}
	t.UpdatedAt = t.CreatedAt
	t.CreatedByID, t.UpdatedByID = actor, actor

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets (
			number, title, group_id, state_id, priority_id, owner_id, customer_id,
			pending_time, created_by_id, updated_by_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Number, t.Title, t.GroupID, t.StateID, t.PriorityID, t.OwnerID, t.CustomerID,
		db.FormatNullTime(t.PendingTime), actor, actor, db.FormatTime(t.CreatedAt), db.FormatTime(t.UpdatedAt))
	if err != nil {
		return errors.Wrapf(err, "failed to create ticket %q", t.Number)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return errors.Wrap(err, "failed to read ticket id")
	}
	t.changed = nil
	return nil
}

// Get retrieves a ticket by id
func (s *Store) Get(ctx context.Context, id int64) (*Ticket, error) {
	t, err := scanTicket(s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("ticket %d not found", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get ticket %d", id)
	}
	return t, nil
}

// List returns up to limit tickets ordered by id (0 = all).
func (s *Store) List(ctx context.Context, limit int) ([]*Ticket, error) {
	return s.ListPage(ctx, 0, limit)
}

// ListPage returns up to limit tickets ordered by id after skipping offset
// of them (limit 0 = all).
func (s *Store) ListPage(ctx context.Context, offset, limit int) ([]*Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets ORDER BY id`
	var args []interface{}
	if limit > 0 || offset > 0 {
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tickets")
	}
	defer rows.Close()

	var tickets []*Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan ticket")
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// Candidates implements record.Store
func (s *Store) Candidates(ctx context.Context, offset, limit int) ([]record.Target, error) {
	tickets, err := s.ListPage(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	targets := make([]record.Target, len(tickets))
	for i, t := range tickets {
		targets[i] = t
	}
	return targets, nil
}

// Save implements record.Store. A ticket without changes is not written,
// so its updated_at only moves when an attribute actually changed.
func (s *Store) Save(ctx context.Context, target record.Target, opts record.SaveOptions) error {
	t, ok := target.(*Ticket)
	if !ok {
		return errors.Newf("ticket store cannot save a %s", target.Entity())
	}
	if !t.Dirty() {
		return nil
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE tickets
		SET title = ?, group_id = ?, state_id = ?, priority_id = ?, owner_id = ?, customer_id = ?,
		    pending_time = ?, updated_by_id = ?, updated_at = ?
		WHERE id = ?`,
		t.Title, t.GroupID, t.StateID, t.PriorityID, t.OwnerID, t.CustomerID,
		db.FormatNullTime(t.PendingTime), opts.Actor, db.FormatTime(now), t.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to save ticket %d", t.ID)
	}

	changes := t.Changes()
	t.UpdatedByID = opts.Actor
	t.UpdatedAt = now.UTC()
	t.changed = nil

	if opts.DisableNotification || s.notifier == nil {
		return nil
	}
	if err := s.notifier.TicketChanged(ctx, t, changes, opts.Actor, now); err != nil {
		return errors.Wrapf(err, "ticket %d saved but notification failed", t.ID)
	}
	return nil
}
