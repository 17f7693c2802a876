// Package record defines the capability interface the automation engine uses
// to read and write domain records without knowing their concrete shape.
package record

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/pulsedesk/errors"
)

// Target is a record addressable by dotted attribute path ("ticket.state_id").
type Target interface {
	// Get returns the current value of path. Unknown paths return an error
	// marked errors.ErrNotFound.
	Get(path string) (interface{}, error)
	// Set assigns value to path. The value arrives as written in the job
	// definition (usually a string) and the record converts it.
	Set(path string, value interface{}) error
	// Entity is the path prefix this record answers to ("ticket").
	Entity() string
}

// SaveOptions carries the audit and notification context of a write.
type SaveOptions struct {
	Actor               int64
	DisableNotification bool
	Now                 time.Time
}

// Store lists candidate records and persists changed ones.
type Store interface {
	// Candidates returns up to limit records of the store's entity in a
	// stable order, skipping the first offset (limit 0 = all).
	Candidates(ctx context.Context, offset, limit int) ([]Target, error)
	// Save persists a record whose attributes were changed through Set.
	Save(ctx context.Context, target Target, opts SaveOptions) error
	// Entity is the path prefix of the records this store serves.
	Entity() string
}

// SplitPath splits "ticket.state_id" into ("ticket", "state_id").
func SplitPath(path string) (entity, field string, err error) {
	entity, field, ok := strings.Cut(path, ".")
	if !ok || entity == "" || field == "" {
		return "", "", errors.NewConfigurationError("attribute path %q must look like entity.field", path)
	}
	return entity, field, nil
}

// UnknownField builds the error Get and Set return for an unsupported path.
func UnknownField(path string) error {
	return errors.NewNotFoundError("unknown attribute %q", path)
}

// String renders a record value the way job definitions write it:
// integers in base 10, timestamps in RFC3339, nil as "".
func String(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return ""
		}
		return val.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// Int64 converts a definition value into an integer attribute.
func Int64(path string, v interface{}) (int64, error) {
	switch val := v.(type) {
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	case float64:
		return int64(val), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, errors.NewInvalidRequestError("value %q for %s is not an integer", val, path)
		}
		return n, nil
	default:
		return 0, errors.NewInvalidRequestError("value %v for %s is not an integer", v, path)
	}
}

// Time converts a definition value into a timestamp attribute. An empty
// string clears the attribute.
func Time(path string, v interface{}) (*time.Time, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &val, nil
	case *time.Time:
		return val, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339, val)
		if err != nil {
			return nil, errors.NewInvalidRequestError("value %q for %s is not an RFC3339 timestamp", val, path)
		}
		return &t, nil
	default:
		return nil, errors.NewInvalidRequestError("value %v for %s is not a timestamp", v, path)
	}
}

// AsTime extracts a timestamp from a value returned by Get.
func AsTime(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, !val.IsZero()
	case *time.Time:
		if val == nil {
			return time.Time{}, false
		}
		return *val, true
	case string:
		t, err := time.Parse(time.RFC3339, val)
		return t, err == nil
	default:
		return time.Time{}, false
	}
}
