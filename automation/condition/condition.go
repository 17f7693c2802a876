// Package condition evaluates ordered attribute predicates against records.
package condition

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teranos/pulsedesk/automation/record"
	"github.com/teranos/pulsedesk/errors"
)

// Predicate tests one attribute path of a record.
type Predicate struct {
	Path     string
	Operator string
	Value    Value
	Range    string // minute, hour, day, week, month, year; relative operators only
}

// Condition is an ordered set of predicates, AND-ed together.
// Its JSON form is an object keyed by attribute path that keeps key order.
type Condition []Predicate

// Value is a predicate operand: a single string or a list of strings.
type Value struct {
	Items []string
	List  bool
}

// Single returns a scalar value.
func Single(s string) Value { return Value{Items: []string{s}} }

// List returns a list value.
func List(items ...string) Value { return Value{Items: items, List: true} }

// Blank reports whether the value carries no usable operand.
func (v Value) Blank() bool {
	for _, item := range v.Items {
		if strings.TrimSpace(item) != "" {
			return false
		}
	}
	return true
}

// First returns the first operand or "".
func (v Value) First() string {
	if len(v.Items) == 0 {
		return ""
	}
	return v.Items[0]
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.List {
		items := v.Items
		if items == nil {
			items = []string{}
		}
		return json.Marshal(items)
	}
	return json.Marshal(v.First())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var raw interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueOf converts a decoded scalar or list into a Value.
func ValueOf(raw interface{}) (Value, error) {
	switch val := raw.(type) {
	case nil:
		return Value{}, nil
	case []interface{}:
		out := Value{List: true, Items: make([]string, 0, len(val))}
		for _, item := range val {
			s, err := scalar(item)
			if err != nil {
				return Value{}, err
			}
			out.Items = append(out.Items, s)
		}
		return out, nil
	default:
		s, err := scalar(val)
		if err != nil {
			return Value{}, err
		}
		return Single(s), nil
	}
}

func scalar(raw interface{}) (string, error) {
	switch val := raw.(type) {
	case string:
		return val, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		return record.String(val), nil
	}
}

type predicateBody struct {
	Operator string `json:"operator" yaml:"operator"`
	Value    Value  `json:"value" yaml:"value"`
	Range    string `json:"range,omitempty" yaml:"range,omitempty"`
}

// MarshalJSON writes {"path": {"operator":…,"value":…}, …} in predicate order.
func (c Condition) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p.Path)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(predicateBody{Operator: p.Operator, Value: p.Value, Range: p.Range})
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the object form, keeping the key order of the document.
func (c *Condition) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return errors.Wrap(err, "failed to read condition")
	}
	if tok == nil {
		*c = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.NewConfigurationError("condition must be an object keyed by attribute path")
	}

	var out Condition
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return errors.Wrap(err, "failed to read condition key")
		}
		path, _ := tok.(string)

		var body predicateBody
		if err := dec.Decode(&body); err != nil {
			return errors.Mark(errors.Wrapf(err, "condition %q", path), errors.ErrConfiguration)
		}
		out = append(out, Predicate{Path: path, Operator: body.Operator, Value: body.Value, Range: body.Range})
	}
	if _, err := dec.Token(); err != nil {
		return errors.Wrap(err, "failed to read condition end")
	}

	*c = out
	return nil
}

// UnmarshalYAML reads the mapping form, keeping the key order of the document.
func (c *Condition) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return errors.NewConfigurationError("condition must be a mapping keyed by attribute path (line %d)", node.Line)
	}
	out := make(Condition, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		path := node.Content[i].Value
		var body predicateBody
		if err := node.Content[i+1].Decode(&body); err != nil {
			return errors.Mark(errors.Wrapf(err, "condition %q", path), errors.ErrConfiguration)
		}
		out = append(out, Predicate{Path: path, Operator: body.Operator, Value: body.Value, Range: body.Range})
	}
	*c = out
	return nil
}

// Entities returns the distinct entity prefixes the condition reads, in order.
func (c Condition) Entities() []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range c {
		entity, _, err := record.SplitPath(p.Path)
		if err != nil || seen[entity] {
			continue
		}
		seen[entity] = true
		out = append(out, entity)
	}
	return out
}
