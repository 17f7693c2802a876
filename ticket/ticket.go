// Package ticket is the helpdesk ticket entity the automation engine reads
// and writes through record.Target.
package ticket

import (
	"sort"
	"time"

	"github.com/teranos/pulsedesk/automation/record"
)

// Entity is the attribute path prefix of tickets.
const Entity = "ticket"

// Ticket is a helpdesk ticket
type Ticket struct {
	ID          int64      `json:"id"`
	Number      string     `json:"number"`
	Title       string     `json:"title"`
	GroupID     int64      `json:"group_id"`
	StateID     int64      `json:"state_id"`
	PriorityID  int64      `json:"priority_id"`
	OwnerID     int64      `json:"owner_id"`
	CustomerID  int64      `json:"customer_id"`
	PendingTime *time.Time `json:"pending_time,omitempty"`
	CreatedByID int64      `json:"created_by_id"`
	UpdatedByID int64      `json:"updated_by_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	changed map[string]bool
}

// Entity implements record.Target
func (t *Ticket) Entity() string { return Entity }

// Get implements record.Target
func (t *Ticket) Get(path string) (interface{}, error) {
	entity, field, err := record.SplitPath(path)
	if err != nil {
		return nil, err
	}
	if entity != Entity {
		return nil, record.UnknownField(path)
	}

	switch field {
	case "id":
		return t.ID, nil
	case "number":
		return t.Number, nil
	case "title":
		return t.Title, nil
	case "group_id":
		return t.GroupID, nil
	case "state_id":
		return t.StateID, nil
	case "priority_id":
		return t.PriorityID, nil
	case "owner_id":
		return t.OwnerID, nil
	case "customer_id":
		return t.CustomerID, nil
	case "pending_time":
		return t.PendingTime, nil
	case "created_by_id":
		return t.CreatedByID, nil
	case "updated_by_id":
		return t.UpdatedByID, nil
	case "created_at":
		return t.CreatedAt, nil
	case "updated_at":
		return t.UpdatedAt, nil
	default:
		return nil, record.UnknownField(path)
	}
}

// Set implements record.Target. Only the writable attributes are accepted;
// audit columns are maintained by the store.
func (t *Ticket) Set(path string, value interface{}) error {
	entity, field, err := record.SplitPath(path)
	if err != nil {
		return err
	}
	if entity != Entity {
		return record.UnknownField(path)
	}

	switch field {
	case "title":
		t.Title = record.String(value)
	case "group_id", "state_id", "priority_id", "owner_id", "customer_id":
		n, err := record.Int64(path, value)
		if err != nil {
			return err
		}
		switch field {
		case "group_id":
			t.GroupID = n
		case "state_id":
			t.StateID = n
		case "priority_id":
			t.PriorityID = n
		case "owner_id":
			t.OwnerID = n
		default:
			t.CustomerID = n
		}
	case "pending_time":
		ts, err := record.Time(path, value)
		if err != nil {
			return err
		}
		t.PendingTime = ts
	default:
		return record.UnknownField(path)
	}

	if t.changed == nil {
		t.changed = make(map[string]bool)
	}
	t.changed[field] = true
	return nil
}

// Changes lists the attributes set since the ticket was loaded or saved.
func (t *Ticket) Changes() []string {
	fields := make([]string, 0, len(t.changed))
	for f := range t.changed {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Dirty reports whether any attribute was set since the last save.
func (t *Ticket) Dirty() bool {
	return len(t.changed) > 0
}
