// Package channel stores the inbound/outbound communication channels
// (mail accounts, notification senders) whose health the monitor reports.
package channel

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/pulsedesk/db"
	"github.com/teranos/pulsedesk/errors"
)

// Channel statuses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Direction of a channel status
type Direction string

const (
	In  Direction = "in"
	Out Direction = "out"
)

// OptionKeys are the options that identify a channel in health messages,
// in the order they are rendered.
var OptionKeys = []string{"host", "user", "uid"}

// Channel is a communication channel such as "Email::Account"
type Channel struct {
	ID         int64             `json:"id"`
	Area       string            `json:"area"`
	Active     bool              `json:"active"`
	Options    map[string]string `json:"options"`
	StatusIn   string            `json:"status_in"`
	StatusOut  string            `json:"status_out"`
	LastLogIn  string            `json:"last_log_in,omitempty"`
	LastLogOut string            `json:"last_log_out,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Status returns the status of one direction.
func (c *Channel) Status(d Direction) string {
	if d == In {
		return c.StatusIn
	}
	return c.StatusOut
}

// LastLog returns the last log line of one direction.
func (c *Channel) LastLog(d Direction) string {
	if d == In {
		return c.LastLogIn
	}
	return c.LastLogOut
}

// Store persists channels
type Store struct {
	db *sql.DB
}

// NewStore creates a channel store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const columns = `id, area, active, options, status_in, status_out, last_log_in, last_log_out, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scan(row rowScanner) (*Channel, error) {
	var (
		c                    Channel
		options              string
		logIn, logOut        sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&c.ID, &c.Area, &c.Active, &options, &c.StatusIn, &c.StatusOut,
		&logIn, &logOut, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(options), &c.Options); err != nil {
		return nil, errors.Wrapf(err, "channel %d: options", c.ID)
	}
	c.LastLogIn, c.LastLogOut = logIn.String, logOut.String

	var err error
	if c.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, errors.Wrapf(err, "channel %d: created_at", c.ID)
	}
	if c.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return nil, errors.Wrapf(err, "channel %d: updated_at", c.ID)
	}
	return &c, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Create inserts a channel. Empty statuses default to ok.
func (s *Store) Create(ctx context.Context, c *Channel, now time.Time) error {
	if c.Area == "" {
		return errors.NewInvalidRequestError("channel area is required")
	}
	if c.StatusIn == "" {
		c.StatusIn = StatusOK
	}
	if c.StatusOut == "" {
		c.StatusOut = StatusOK
	}
	if c.Options == nil {
		c.Options = map[string]string{}
	}
	options, err := json.Marshal(c.Options)
	if err != nil {
		return errors.Wrap(err, "failed to encode channel options")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (area, active, options, status_in, status_out, last_log_in, last_log_out, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Area, c.Active, string(options), c.StatusIn, c.StatusOut,
		nullString(c.LastLogIn), nullString(c.LastLogOut), db.FormatTime(now), db.FormatTime(now))
	if err != nil {
		return errors.Wrapf(err, "failed to create channel %s", c.Area)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return errors.Wrap(err, "failed to read channel id")
	}
	c.CreatedAt, c.UpdatedAt = now.UTC(), now.UTC()
	return nil
}

// Get returns one channel
func (s *Store) Get(ctx context.Context, id int64) (*Channel, error) {
	c, err := scan(s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM channels WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("channel %d not found", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get channel %d", id)
	}
	return c, nil
}

// ListActive returns active channels ordered by id
func (s *Store) ListActive(ctx context.Context) ([]*Channel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+` FROM channels WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query channels")
	}
	defer rows.Close()

	var channels []*Channel
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan channel")
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

// SetStatus records the outcome of the last fetch (In) or delivery (Out).
func (s *Store) SetStatus(ctx context.Context, id int64, d Direction, status, lastLog string, now time.Time) error {
	if status != StatusOK && status != StatusError {
		return errors.NewInvalidRequestError("unknown channel status %q", status)
	}
	query := `UPDATE channels SET status_out = ?, last_log_out = ?, updated_at = ? WHERE id = ?`
	if d == In {
		query = `UPDATE channels SET status_in = ?, last_log_in = ?, updated_at = ? WHERE id = ?`
	}
	res, err := s.db.ExecContext(ctx, query, status, nullString(lastLog), db.FormatTime(now), id)
	if err != nil {
		return errors.Wrapf(err, "failed to update channel %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("channel %d not found", id)
	}
	return nil
}
