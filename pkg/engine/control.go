package engine

import (
	"fmt"
	"regexp"
)

// QueryKind selects the resolver responsible for a ResourceQuery.
type QueryKind string

const (
	QueryContainerInspect QueryKind = "container_inspect"
	QueryImageHistory     QueryKind = "image_history"
	QueryEnvVar           QueryKind = "env_var"
	QueryShellCommand     QueryKind = "shell_command"
)

// QueryKinds lists every supported resolver kind.
var QueryKinds = []QueryKind{QueryContainerInspect, QueryImageHistory, QueryEnvVar, QueryShellCommand}

// ContainerFilter values understood by the container resolver.
const (
	FilterRunning = "running"
	FilterAll     = "all"
)

// ResourceQuery describes which live state a check observes.
type ResourceQuery struct {
	Kind QueryKind `yaml:"kind" json:"kind"`

	// container_inspect
	Filter string `yaml:"filter,omitempty" json:"filter,omitempty"`
	// image_history; empty means every local image
	Image string `yaml:"image,omitempty" json:"image,omitempty"`
	// env_var
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// shell_command
	Argv []string `yaml:"argv,omitempty" json:"argv,omitempty"`

	// Require turns an empty resolution into a failure instead of a vacuous pass.
	Require bool `yaml:"require,omitempty" json:"require,omitempty"`
}

func (q ResourceQuery) validate() error {
	switch q.Kind {
	case QueryContainerInspect, QueryImageHistory:
	case QueryEnvVar:
		if q.Name == "" {
			return fmt.Errorf("env_var query needs a name")
		}
	case QueryShellCommand:
		if len(q.Argv) == 0 || q.Argv[0] == "" {
			return fmt.Errorf("shell_command query needs a non-empty argv")
		}
	case "":
		return fmt.Errorf("resource kind is missing")
	default:
		return fmt.Errorf("unknown resource kind %q", q.Kind)
	}
	return nil
}

// PredicateOp is the assertion applied to a resolved value.
type PredicateOp string

const (
	OpEquals     PredicateOp = "equals"
	OpNotEquals  PredicateOp = "not_equals"
	OpNotNil     PredicateOp = "not_nil"
	OpMatches    PredicateOp = "matches"
	OpNotMatches PredicateOp = "not_matches"
	OpIsEmpty    PredicateOp = "is_empty"
)

// Predicate asserts something about the field at Path within an instance.
// An empty Path addresses the whole value.
type Predicate struct {
	Op       PredicateOp `yaml:"op" json:"op"`
	Path     []string    `yaml:"path,omitempty" json:"path,omitempty"`
	Expected any         `yaml:"expected,omitempty" json:"expected,omitempty"`
	Pattern  string      `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	// Except drops lines that also match it; screening becomes line-wise.
	Except string `yaml:"except,omitempty" json:"except,omitempty"`
	// AllowMissing resolves a missing final key to nil instead of an error.
	AllowMissing bool `yaml:"allow_missing,omitempty" json:"allow_missing,omitempty"`

	pattern *regexp.Regexp
	except  *regexp.Regexp
}

func (p *Predicate) compile() error {
	switch p.Op {
	case OpEquals, OpNotEquals, OpNotNil, OpIsEmpty:
		return nil
	case OpMatches, OpNotMatches:
	case "":
		return fmt.Errorf("assertion op is missing")
	default:
		return fmt.Errorf("unknown assertion op %q", p.Op)
	}

	if p.Pattern == "" {
		return fmt.Errorf("%s needs a pattern", p.Op)
	}
	re, err := regexp.Compile(p.Pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern %q: %w", p.Pattern, err)
	}
	p.pattern = re
	if p.Except != "" {
		ex, err := regexp.Compile(p.Except)
		if err != nil {
			return fmt.Errorf("invalid except pattern %q: %w", p.Except, err)
		}
		p.except = ex
	}
	return nil
}

// Check is one evaluable unit of a control: either a resource query paired
// with a predicate, or an explicit skip.
type Check struct {
	Describe string         `yaml:"describe,omitempty" json:"describe,omitempty"`
	Skip     string         `yaml:"skip,omitempty" json:"skip,omitempty"`
	Resource *ResourceQuery `yaml:"resource,omitempty" json:"resource,omitempty"`
	Assert   *Predicate     `yaml:"assert,omitempty" json:"assert,omitempty"`
}

// IsSkip reports whether the check is a skip marker.
func (c Check) IsSkip() bool {
	return c.Skip != ""
}

// Label names the check in reports.
func (c Check) Label() string {
	if c.Describe != "" {
		return c.Describe
	}
	if c.Resource != nil {
		return string(c.Resource.Kind)
	}
	return "check"
}

func (c *Check) validate() error {
	if c.IsSkip() {
		if c.Resource != nil || c.Assert != nil {
			return fmt.Errorf("a skipped check cannot also declare resource or assert")
		}
		return nil
	}
	if c.Resource == nil || c.Assert == nil {
		return fmt.Errorf("check needs either skip or both resource and assert")
	}
	if err := c.Resource.validate(); err != nil {
		return err
	}
	return c.Assert.compile()
}

// Control is a named, impact-weighted compliance rule.
type Control struct {
	ID          string   `yaml:"id" json:"id"`
	Impact      float64  `yaml:"impact" json:"impact"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"desc" json:"description"`
	Checks      []Check  `yaml:"checks" json:"checks"`
	References  []string `yaml:"refs,omitempty" json:"references,omitempty"`
}

// Informational reports whether the control is excluded from the score.
func (c Control) Informational() bool {
	return c.Impact == 0
}

// clone returns a copy of c that shares no mutable state with it. Compiled
// patterns are immutable and stay shared.
func (c Control) clone() Control {
	out := c
	if c.Checks != nil {
		out.Checks = make([]Check, len(c.Checks))
		for i, check := range c.Checks {
			out.Checks[i] = check.clone()
		}
	}
	if c.References != nil {
		out.References = append([]string(nil), c.References...)
	}
	return out
}

func (c Check) clone() Check {
	out := c
	if c.Resource != nil {
		q := *c.Resource
		if q.Argv != nil {
			q.Argv = append([]string(nil), q.Argv...)
		}
		out.Resource = &q
	}
	if c.Assert != nil {
		p := *c.Assert
		if p.Path != nil {
			p.Path = append([]string(nil), p.Path...)
		}
		out.Assert = &p
	}
	return out
}
