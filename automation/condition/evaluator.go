package condition

import (
	"sort"
	"sync"
	"time"

	"github.com/teranos/pulsedesk/automation/record"
	"github.com/teranos/pulsedesk/errors"
)

// Evaluator matches records against conditions using a registry of operators.
type Evaluator struct {
	mu        sync.RWMutex
	operators map[string]Operator
}

// NewEvaluator returns an evaluator with every built-in operator registered.
func NewEvaluator() *Evaluator {
	e := &Evaluator{operators: make(map[string]Operator)}
	e.Register(OpIs, setOperator{})
	e.Register(OpIsNot, setOperator{negate: true})
	e.Register(OpContains, containsOperator{})
	e.Register(OpContainsNot, containsOperator{negate: true})
	e.Register(OpBeforeRelative, relativeOperator{direction: olderThan})
	e.Register(OpAfterRelative, relativeOperator{direction: laterThan})
	e.Register(OpWithinLast, relativeOperator{direction: withinLast})
	e.Register(OpWithinNext, relativeOperator{direction: withinNext})
	e.Register(OpBeforeAbsolute, absoluteOperator{before: true})
	e.Register(OpAfterAbsolute, absoluteOperator{})
	return e
}

// Register adds or replaces an operator.
func (e *Evaluator) Register(name string, op Operator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.operators[name] = op
}

// Operators lists the registered operator names, sorted.
func (e *Evaluator) Operators() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.operators))
	for name := range e.operators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Evaluator) lookup(name string) (Operator, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	op, ok := e.operators[name]
	return op, ok
}

// Validate rejects malformed paths, unknown operators and bad operands.
// Every returned error is marked errors.ErrConfiguration.
func (e *Evaluator) Validate(cond Condition) error {
	for _, p := range cond {
		if _, _, err := record.SplitPath(p.Path); err != nil {
			return err
		}
		op, ok := e.lookup(p.Operator)
		if !ok {
			return errors.NewConfigurationError("condition %q: unknown operator %q", p.Path, p.Operator)
		}
		if err := op.Check(p); err != nil {
			return err
		}
	}
	return nil
}

// Matches reports whether rec satisfies every predicate of cond at now.
// An empty condition matches everything.
func (e *Evaluator) Matches(cond Condition, rec record.Target, now time.Time) (bool, error) {
	for _, p := range cond {
		op, ok := e.lookup(p.Operator)
		if !ok {
			return false, errors.NewConfigurationError("condition %q: unknown operator %q", p.Path, p.Operator)
		}
		current, err := rec.Get(p.Path)
		if err != nil {
			return false, errors.Wrapf(err, "condition %q", p.Path)
		}
		ok, err = op.Match(current, p, now)
		if err != nil {
			return false, errors.Wrapf(err, "condition %q", p.Path)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
