package condition

import (
	"strconv"
	"strings"
	"time"

	"github.com/teranos/pulsedesk/automation/record"
	"github.com/teranos/pulsedesk/errors"
)

// Operator names understood by the default registry.
const (
	OpIs             = "is"
	OpIsNot          = "is not"
	OpContains       = "contains"
	OpContainsNot    = "contains not"
	OpBeforeRelative = "before (relative)"
	OpAfterRelative  = "after (relative)"
	OpWithinLast     = "within last (relative)"
	OpWithinNext     = "within next (relative)"
	OpBeforeAbsolute = "before (absolute)"
	OpAfterAbsolute  = "after (absolute)"
)

// Operator compares a record's current attribute value with a predicate.
type Operator interface {
	// Check validates the predicate's operand before any record is read.
	Check(p Predicate) error
	// Match reports whether current satisfies the predicate at now.
	Match(current interface{}, p Predicate, now time.Time) (bool, error)
}

type setOperator struct {
	negate bool
}

func (o setOperator) Check(Predicate) error { return nil }

// A blank operand matches every record.
func (o setOperator) Match(current interface{}, p Predicate, _ time.Time) (bool, error) {
	if p.Value.Blank() {
		return true, nil
	}
	got := record.String(current)
	for _, want := range p.Value.Items {
		if got == want {
			return !o.negate, nil
		}
	}
	return o.negate, nil
}

type containsOperator struct {
	negate bool
}

func (o containsOperator) Check(Predicate) error { return nil }

func (o containsOperator) Match(current interface{}, p Predicate, _ time.Time) (bool, error) {
	if p.Value.Blank() {
		return true, nil
	}
	got := strings.ToLower(record.String(current))
	for _, want := range p.Value.Items {
		if want != "" && strings.Contains(got, strings.ToLower(want)) {
			return !o.negate, nil
		}
	}
	return o.negate, nil
}

type relativeDirection int

const (
	olderThan relativeDirection = iota
	laterThan
	withinLast
	withinNext
)

type relativeOperator struct {
	direction relativeDirection
}

func (o relativeOperator) Check(p Predicate) error {
	if _, err := amount(p); err != nil {
		return err
	}
	if _, ok := ranges[p.Range]; !ok {
		return errors.NewConfigurationError("condition %q: unknown range %q", p.Path, p.Range)
	}
	return nil
}

// Records without a timestamp never match a time operator.
func (o relativeOperator) Match(current interface{}, p Predicate, now time.Time) (bool, error) {
	ts, ok := record.AsTime(current)
	if !ok {
		return false, nil
	}
	n, err := amount(p)
	if err != nil {
		return false, err
	}
	shift, ok := ranges[p.Range]
	if !ok {
		return false, errors.NewConfigurationError("condition %q: unknown range %q", p.Path, p.Range)
	}

	switch o.direction {
	case olderThan:
		return ts.Before(shift(now, -n)), nil
	case laterThan:
		return ts.After(shift(now, n)), nil
	case withinLast:
		return !ts.Before(shift(now, -n)) && !ts.After(now), nil
	default:
		return !ts.Before(now) && !ts.After(shift(now, n)), nil
	}
}

func amount(p Predicate) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(p.Value.First()))
	if err != nil || n < 0 {
		return 0, errors.NewConfigurationError("condition %q: %q is not a whole number of %ss", p.Path, p.Value.First(), p.Range)
	}
	return n, nil
}

type absoluteOperator struct {
	before bool
}

func (o absoluteOperator) Check(p Predicate) error {
	_, err := o.pivot(p)
	return err
}

func (o absoluteOperator) Match(current interface{}, p Predicate, _ time.Time) (bool, error) {
	ts, ok := record.AsTime(current)
	if !ok {
		return false, nil
	}
	pivot, err := o.pivot(p)
	if err != nil {
		return false, err
	}
	if o.before {
		return ts.Before(pivot), nil
	}
	return ts.After(pivot), nil
}

func (o absoluteOperator) pivot(p Predicate) (time.Time, error) {
	pivot, err := time.Parse(time.RFC3339, strings.TrimSpace(p.Value.First()))
	if err != nil {
		return time.Time{}, errors.NewConfigurationError("condition %q: %q is not an RFC3339 timestamp", p.Path, p.Value.First())
	}
	return pivot, nil
}

var ranges = map[string]func(time.Time, int) time.Time{
	"minute": func(t time.Time, n int) time.Time { return t.Add(time.Duration(n) * time.Minute) },
	"hour":   func(t time.Time, n int) time.Time { return t.Add(time.Duration(n) * time.Hour) },
	"day":    func(t time.Time, n int) time.Time { return t.AddDate(0, 0, n) },
	"week":   func(t time.Time, n int) time.Time { return t.AddDate(0, 0, 7*n) },
	"month":  func(t time.Time, n int) time.Time { return t.AddDate(0, n, 0) },
	"year":   func(t time.Time, n int) time.Time { return t.AddDate(n, 0, 0) },
}
