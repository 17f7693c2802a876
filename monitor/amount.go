package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/teranos/pulsedesk/db"
	"github.com/teranos/pulsedesk/errors"
)

// Amount check states
const (
	StateOK       = "ok"
	StateWarning  = "warning"
	StateCritical = "critical"
)

// Thresholds of an amount check. Nil thresholds are never compared.
type Thresholds struct {
	MinWarning  *int
	MinCritical *int
	MaxWarning  *int
	MaxCritical *int
}

// AmountResult is the outcome of an amount check
type AmountResult struct {
	State   string `json:"state"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

var periodPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParsePeriod parses a period like "30s", "15m", "1h" or "2d".
func ParsePeriod(periode string) (time.Duration, error) {
	m := periodPattern.FindStringSubmatch(periode)
	if m == nil {
		return 0, errors.NewInvalidRequestError("periode %q must be a number followed by s, m, h or d", periode)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, errors.NewInvalidRequestError("periode %q must be positive", periode)
	}

	unit := map[string]time.Duration{"s": time.Second, "m": time.Minute, "h": time.Hour, "d": 24 * time.Hour}[m[2]]
	if n > int64((1<<63-1)/unit) {
		return 0, errors.NewInvalidRequestError("periode %q is too long", periode)
	}
	return time.Duration(n) * unit, nil
}

// Classify grades count against the thresholds. Critical minimum wins
// over warning minimum, which wins over the maximums.
func Classify(count int, periode string, th Thresholds) AmountResult {
	res := AmountResult{State: StateOK, Count: count}
	switch {
	case th.MinCritical != nil && count < *th.MinCritical:
		res.State = StateCritical
		res.Message = undercut(*th.MinCritical, count, periode)
	case th.MinWarning != nil && count < *th.MinWarning:
		res.State = StateWarning
		res.Message = undercut(*th.MinWarning, count, periode)
	case th.MaxCritical != nil && count > *th.MaxCritical:
		res.State = StateCritical
		res.Message = exceeded(*th.MaxCritical, count, periode)
	case th.MaxWarning != nil && count > *th.MaxWarning:
		res.State = StateWarning
		res.Message = exceeded(*th.MaxWarning, count, periode)
	}
	return res
}

func undercut(limit, count int, periode string) string {
	return fmt.Sprintf("The minimum of %d was undercut by %d in the last %s", limit, count, periode)
}

func exceeded(limit, count int, periode string) string {
	return fmt.Sprintf("The limit of %d was exceeded with %d in the last %s", limit, count, periode)
}

// Counter counts records created in [since, until].
type Counter interface {
	CountCreated(ctx context.Context, since, until time.Time) (int, error)
}

// AmountChecker counts recently created records and grades the count.
type AmountChecker struct {
	counter Counter
}

// NewAmountChecker creates a checker over counter
func NewAmountChecker(counter Counter) *AmountChecker {
	return &AmountChecker{counter: counter}
}

// Check counts the records created within periode before now.
func (a *AmountChecker) Check(ctx context.Context, periode string, th Thresholds, now time.Time) (AmountResult, error) {
	d, err := ParsePeriod(periode)
	if err != nil {
		return AmountResult{}, err
	}
	count, err := a.counter.CountCreated(ctx, now.Add(-d), now)
	if err != nil {
		return AmountResult{}, errors.Transient(err, "failed to count records")
	}
	return Classify(count, periode, th), nil
}

// CountableTables are the tables the amount check and the status snapshot
// may count.
var CountableTables = []string{
	"tickets",
	"users",
	"automation_jobs",
	"scheduler_tasks",
	"background_jobs",
	"channels",
	"import_jobs",
}

func countable(table string) bool {
	for _, t := range CountableTables {
		if t == table {
			return true
		}
	}
	return false
}

// TableCounter counts rows of one table by created_at.
type TableCounter struct {
	db    *sql.DB
	table string
}

// NewTableCounter creates a counter over table, which must be one of
// CountableTables.
func NewTableCounter(database *sql.DB, table string) (*TableCounter, error) {
	if !countable(table) {
		return nil, errors.NewConfigurationError("table %q is not countable", table)
	}
	return &TableCounter{db: database, table: table}, nil
}

// CountCreated implements Counter
func (c *TableCounter) CountCreated(ctx context.Context, since, until time.Time) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+c.table+` WHERE created_at >= ? AND created_at <= ?`,
		db.FormatTime(since), db.FormatTime(until)).Scan(&n)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to count %s", c.table)
	}
	return n, nil
}
