package db

import (
	"database/sql"
	"time"

	"github.com/teranos/pulsedesk/errors"
)

// TimeLayout is the fixed-width UTC layout every timestamp column uses.
// Fixed width keeps lexicographic order equal to chronological order,
// so range predicates work directly on the TEXT columns.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t for storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// FormatNullTime renders an optional timestamp; nil becomes NULL.
func FormatNullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return FormatTime(*t)
}

// ParseTime parses a stored timestamp. RFC3339 is accepted for rows
// written by hand or by sqlite's strftime defaults.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid timestamp %q", s)
	}
	return t.UTC(), nil
}

// ParseNullTime parses an optional stored timestamp.
func ParseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := ParseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
