package automation

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/teranos/pulsedesk/automation/condition"
	"github.com/teranos/pulsedesk/automation/perform"
	"github.com/teranos/pulsedesk/automation/record"
	"github.com/teranos/pulsedesk/automation/timeplan"
	"github.com/teranos/pulsedesk/errors"
)

// Definition is a job as written in a definition file. Active and
// DisableNotification default to true when omitted.
type Definition struct {
	Name                string              `yaml:"name"`
	Active              *bool               `yaml:"active"`
	DisableNotification *bool               `yaml:"disable_notification"`
	Timeplan            timeplan.Plan       `yaml:"timeplan"`
	Condition           condition.Condition `yaml:"condition"`
	Perform             perform.Perform     `yaml:"perform"`
}

// Job converts the definition into an unsaved job.
func (d Definition) Job() *Job {
	job := &Job{
		Name:                d.Name,
		Timeplan:            d.Timeplan,
		Condition:           d.Condition,
		Perform:             d.Perform,
		Active:              true,
		DisableNotification: true,
	}
	if d.Active != nil {
		job.Active = *d.Active
	}
	if d.DisableNotification != nil {
		job.DisableNotification = *d.DisableNotification
	}
	return job
}

type yamlFile struct {
	Jobs []Definition `yaml:"jobs"`
}

// TOML tables are unordered, so predicates and actions are arrays of tables:
//
//	[[jobs]]
//	name = "close stale pending"
//	[jobs.timeplan.days]
//	Mon = true
//	[[jobs.condition]]
//	path = "ticket.state_id"
//	operator = "is"
//	value = ["3"]
//	[[jobs.perform]]
//	path = "ticket.state_id"
//	value = "4"
type tomlFile struct {
	Jobs []tomlDefinition `toml:"jobs"`
}

type tomlDefinition struct {
	Name                string `toml:"name"`
	Active              *bool  `toml:"active"`
	DisableNotification *bool  `toml:"disable_notification"`
	Timeplan            struct {
		Days    map[string]bool `toml:"days"`
		Hours   map[string]bool `toml:"hours"`
		Minutes map[string]bool `toml:"minutes"`
	} `toml:"timeplan"`
	Condition []struct {
		Path     string      `toml:"path"`
		Operator string      `toml:"operator"`
		Value    interface{} `toml:"value"`
		Range    string      `toml:"range"`
	} `toml:"condition"`
	Perform []struct {
		Path  string      `toml:"path"`
		Value interface{} `toml:"value"`
	} `toml:"perform"`
}

func (t tomlDefinition) definition() (Definition, error) {
	d := Definition{Name: t.Name, Active: t.Active, DisableNotification: t.DisableNotification}

	plan, err := timeplan.FromMaps(t.Timeplan.Days, t.Timeplan.Hours, t.Timeplan.Minutes)
	if err != nil {
		return Definition{}, err
	}
	d.Timeplan = plan

	for _, c := range t.Condition {
		v, err := condition.ValueOf(c.Value)
		if err != nil {
			return Definition{}, errors.Mark(errors.Wrapf(err, "condition %q", c.Path), errors.ErrConfiguration)
		}
		d.Condition = append(d.Condition, condition.Predicate{Path: c.Path, Operator: c.Operator, Value: v, Range: c.Range})
	}
	for _, a := range t.Perform {
		d.Perform = append(d.Perform, perform.Action{Path: a.Path, Value: record.String(a.Value)})
	}
	return d, nil
}

// ParseDefinitions decodes definitions in the given format ("yaml" or "toml").
func ParseDefinitions(data []byte, format string) ([]Definition, error) {
	var defs []Definition
	switch format {
	case "yaml", "yml":
		var f yamlFile
		if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&f); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "failed to parse yaml definitions"), errors.ErrConfiguration)
		}
		defs = f.Jobs
	case "toml":
		var f tomlFile
		if _, err := toml.Decode(string(data), &f); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "failed to parse toml definitions"), errors.ErrConfiguration)
		}
		for _, td := range f.Jobs {
			d, err := td.definition()
			if err != nil {
				return nil, errors.Wrapf(err, "job %q", td.Name)
			}
			defs = append(defs, d)
		}
	default:
		return nil, errors.NewInvalidRequestError("unsupported definition format %q (want yaml or toml)", format)
	}

	seen := make(map[string]bool, len(defs))
	for i, d := range defs {
		if strings.TrimSpace(d.Name) == "" {
			return nil, errors.NewConfigurationError("job #%d has no name", i+1)
		}
		if seen[d.Name] {
			return nil, errors.NewConfigurationError("job %q is defined twice", d.Name)
		}
		seen[d.Name] = true
	}
	return defs, nil
}

// LoadDefinitionsFile reads definitions, picking the format from the extension.
func LoadDefinitionsFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	defs, err := ParseDefinitions(data, format)
	if err != nil {
		return nil, errors.Wrapf(err, "in %s", path)
	}
	return defs, nil
}

// ImportResult counts what Import did.
type ImportResult struct {
	Created int
	Updated int
}

// Import validates every definition with the runner and upserts them by
// name. Nothing is written when any definition is invalid.
func Import(ctx context.Context, store *Store, runner *Runner, defs []Definition, actor int64, now time.Time) (ImportResult, error) {
	var res ImportResult

	jobs := make([]*Job, 0, len(defs))
	for _, d := range defs {
		job := d.Job()
		if err := runner.Validate(job); err != nil {
			return res, errors.Wrapf(err, "job %q", d.Name)
		}
		jobs = append(jobs, job)
	}

	for _, job := range jobs {
		existing, err := store.GetByName(ctx, job.Name)
		switch {
		case errors.IsNotFoundError(err):
			if err := store.Create(ctx, job, actor, now); err != nil {
				return res, err
			}
			res.Created++
		case err != nil:
			return res, err
		default:
			job.ID = existing.ID
			if err := store.Update(ctx, job, actor, now); err != nil {
				return res, err
			}
			res.Updated++
		}
	}
	return res, nil
}
