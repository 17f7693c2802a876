// Package perform applies attribute assignments to matched records.
package perform

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/teranos/pulsedesk/automation/record"
	"github.com/teranos/pulsedesk/errors"
)

// Action assigns a literal value to one attribute path.
type Action struct {
	Path  string
	Value string
}

// Perform is the ordered list of assignments of a job.
// Its JSON form is {"ticket.state_id": {"value": "4"}, …}.
type Perform []Action

type actionBody struct {
	Value string `json:"value" yaml:"value"`
}

func (p Perform) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, a := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(a.Path)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(actionBody{Value: a.Value})
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

func (p *Perform) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return errors.Wrap(err, "failed to read perform")
	}
	if tok == nil {
		*p = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.NewConfigurationError("perform must be an object keyed by attribute path")
	}

	var out Perform
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return errors.Wrap(err, "failed to read perform key")
		}
		path, _ := tok.(string)

		var body struct {
			Value interface{} `json:"value"`
		}
		if err := dec.Decode(&body); err != nil {
			return errors.Mark(errors.Wrapf(err, "perform %q", path), errors.ErrConfiguration)
		}
		out = append(out, Action{Path: path, Value: record.String(jsonScalar(body.Value))})
	}
	if _, err := dec.Token(); err != nil {
		return errors.Wrap(err, "failed to read perform end")
	}

	*p = out
	return nil
}

// json decodes numbers as float64; 4 should read back as "4", not "4e+00".
func jsonScalar(v interface{}) interface{} {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return int64(f)
	}
	return v
}

func (p *Perform) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return errors.NewConfigurationError("perform must be a mapping keyed by attribute path (line %d)", node.Line)
	}
	out := make(Perform, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		path := node.Content[i].Value
		var body actionBody
		if err := node.Content[i+1].Decode(&body); err != nil {
			return errors.Mark(errors.Wrapf(err, "perform %q", path), errors.ErrConfiguration)
		}
		out = append(out, Action{Path: path, Value: body.Value})
	}
	*p = out
	return nil
}

// Applier writes perform actions onto records.
type Applier struct{}

// NewApplier returns an Applier.
func NewApplier() *Applier {
	return &Applier{}
}

// Validate rejects malformed attribute paths.
func (a *Applier) Validate(p Perform) error {
	if len(p) == 0 {
		return errors.NewConfigurationError("perform has no actions")
	}
	for _, action := range p {
		if _, _, err := record.SplitPath(action.Path); err != nil {
			return err
		}
	}
	return nil
}

// Apply sets every action whose value differs from the record's current
// value. It reports whether anything changed; the caller persists.
func (a *Applier) Apply(target record.Target, p Perform) (bool, error) {
	changed := false
	for _, action := range p {
		entity, _, err := record.SplitPath(action.Path)
		if err != nil {
			return changed, err
		}
		if entity != target.Entity() {
			return changed, errors.NewConfigurationError("perform %q cannot be applied to a %s", action.Path, target.Entity())
		}

		current, err := target.Get(action.Path)
		if err != nil {
			return changed, errors.Wrapf(err, "perform %q", action.Path)
		}
		if record.String(current) == action.Value {
			continue
		}
		if err := target.Set(action.Path, action.Value); err != nil {
			return changed, errors.Wrapf(err, "perform %q", action.Path)
		}
		changed = true
	}
	return changed, nil
}
