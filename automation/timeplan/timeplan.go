// Package timeplan decides whether a moment falls inside a recurring weekly
// schedule of day, hour and 10-minute bucket flags.
package timeplan

import (
	"encoding/json"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teranos/pulsedesk/errors"
)

// DayNames are the weekday keys of the map form, Monday first.
var DayNames = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// BucketMinutes is the width of one minute bucket.
const BucketMinutes = 10

// Plan is a recurring schedule. A moment is inside the plan when its
// weekday, hour and 10-minute bucket flags are all set.
type Plan struct {
	Days    [7]bool  // Monday first
	Hours   [24]bool // 0..23
	Minutes [6]bool  // buckets 0,10,..,50
}

// Always returns a plan with every flag set.
func Always() Plan {
	var p Plan
	for i := range p.Days {
		p.Days[i] = true
	}
	for i := range p.Hours {
		p.Hours[i] = true
	}
	for i := range p.Minutes {
		p.Minutes[i] = true
	}
	return p
}

// InWindow reports whether now is inside the plan, evaluated in now's location.
func (p Plan) InWindow(now time.Time) bool {
	return p.Days[dayIndex(now.Weekday())] &&
		p.Hours[now.Hour()] &&
		p.Minutes[now.Minute()/BucketMinutes]
}

// IsZero reports whether no flag is set. Such a plan never matches.
func (p Plan) IsZero() bool {
	return p == Plan{}
}

func dayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

type planJSON struct {
	Days    map[string]bool `json:"days" yaml:"days" toml:"days"`
	Hours   map[string]bool `json:"hours" yaml:"hours" toml:"hours"`
	Minutes map[string]bool `json:"minutes" yaml:"minutes" toml:"minutes"`
}

// MarshalJSON writes the map form with every bucket listed.
func (p Plan) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.toMaps())
}

// UnmarshalJSON reads the map form. Missing buckets are false; keys outside
// the domain are a configuration error.
func (p *Plan) UnmarshalJSON(data []byte) error {
	var raw planJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Mark(errors.Wrap(err, "timeplan is not a map of days, hours and minutes"), errors.ErrConfiguration)
	}
	parsed, err := FromMaps(raw.Days, raw.Hours, raw.Minutes)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// UnmarshalYAML reads the same map form as UnmarshalJSON.
func (p *Plan) UnmarshalYAML(node *yaml.Node) error {
	var raw planJSON
	if err := node.Decode(&raw); err != nil {
		return errors.Mark(errors.Wrapf(err, "timeplan at line %d", node.Line), errors.ErrConfiguration)
	}
	parsed, err := FromMaps(raw.Days, raw.Hours, raw.Minutes)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p Plan) toMaps() planJSON {
	out := planJSON{
		Days:    make(map[string]bool, 7),
		Hours:   make(map[string]bool, 24),
		Minutes: make(map[string]bool, 6),
	}
	for i, name := range DayNames {
		out.Days[name] = p.Days[i]
	}
	for h := range p.Hours {
		out.Hours[strconv.Itoa(h)] = p.Hours[h]
	}
	for b := range p.Minutes {
		out.Minutes[strconv.Itoa(b*BucketMinutes)] = p.Minutes[b]
	}
	return out
}

// FromMaps builds a plan from the map form used in job definitions.
func FromMaps(days, hours, minutes map[string]bool) (Plan, error) {
	var p Plan
	for key, on := range days {
		idx := -1
		for i, name := range DayNames {
			if name == key {
				idx = i
				break
			}
		}
		if idx < 0 {
			return Plan{}, errors.NewConfigurationError("timeplan day %q is not one of Mon..Sun", key)
		}
		p.Days[idx] = on
	}
	for key, on := range hours {
		h, err := strconv.Atoi(key)
		if err != nil || h < 0 || h > 23 {
			return Plan{}, errors.NewConfigurationError("timeplan hour %q is not in 0..23", key)
		}
		p.Hours[h] = on
	}
	for key, on := range minutes {
		m, err := strconv.Atoi(key)
		if err != nil || m < 0 || m > 50 || m%BucketMinutes != 0 {
			return Plan{}, errors.NewConfigurationError("timeplan minute %q is not one of 0,10,20,30,40,50", key)
		}
		p.Minutes[m/BucketMinutes] = on
	}
	return p, nil
}

// Maps returns the map form, suitable for YAML or TOML encoding.
func (p Plan) Maps() (days, hours, minutes map[string]bool) {
	m := p.toMaps()
	return m.Days, m.Hours, m.Minutes
}
