package wrappers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/user/cisaudit/pkg/engine"
)

// Evaluator runs a set of controls to a report.
type Evaluator interface {
	Run(ctx context.Context, controls []engine.Control) engine.Report
}

// Session is the state the agent tools share: the catalog, the engine and
// the most recent report.
type Session struct {
	Registry  *engine.Registry
	Evaluator Evaluator
	// OnReport, when set, receives every report the tools produce.
	OnReport func(ctx context.Context, r engine.Report)

	mu   sync.Mutex
	last *engine.Report
}

// Latest returns the most recent report, if any.
func (s *Session) Latest() (engine.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return engine.Report{}, false
	}
	return *s.last, true
}

func (s *Session) record(ctx context.Context, r engine.Report) {
	s.mu.Lock()
	s.last = &r
	s.mu.Unlock()
	if s.OnReport != nil {
		s.OnReport(ctx, r)
	}
}

// stringList accepts a JSON array or a comma separated string.
func stringList(v interface{}) []string {
	var out []string
	switch t := v.(type) {
	case []interface{}:
		for _, item := range t {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, t...)
	case string:
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// ComplianceWrapper implements the Tool interface for running control evaluations
type ComplianceWrapper struct {
	Session *Session
}

func (c *ComplianceWrapper) Name() string {
	return "EvaluateControls"
}

func (c *ComplianceWrapper) Description() string {
	return "Evaluates CIS Docker controls against the live docker host and returns the weighted compliance report. Can run the full catalog or specific control ids."
}

func (c *ComplianceWrapper) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"control_ids": map[string]interface{}{
				"type":        "string",
				"description": "Comma separated control ids to run (e.g. 'cis-docker-benchmark-4.6'). If omitted, runs every control.",
			},
		},
	}
}

func (c *ComplianceWrapper) Execute(ctx context.Context, args map[string]interface{}, progress func(string)) (string, error) {
	if c.Session == nil || c.Session.Registry == nil || c.Session.Evaluator == nil {
		return "Error: Evaluation engine not initialized.", nil
	}

	controls, err := c.Session.Registry.Select(stringList(args["control_ids"]))
	if err != nil {
		return fmt.Sprintf("Error: %v. Use DescribeControl to list the catalog.", err), nil
	}

	if progress != nil {
		progress(fmt.Sprintf("Evaluating %d controls...", len(controls)))
	}
	report := c.Session.Evaluator.Run(ctx, controls)
	c.Session.record(ctx, report)

	return summarizeReport(report), nil
}

func summarizeReport(r engine.Report) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Compliance score: %.1f%%", r.Score*100))
	if r.Incomplete {
		sb.WriteString(" (incomplete run)")
	}
	sb.WriteString("\n\n")

	for _, c := range r.Controls {
		sb.WriteString(fmt.Sprintf("[%s] %s (impact %.1f): %s\n", strings.ToUpper(string(c.Outcome)), c.ID, c.Impact, c.Title))
		if c.Outcome != engine.OutcomePass && c.Detail != "" {
			sb.WriteString(fmt.Sprintf("  Detail: %s\n", c.Detail))
		}
	}

	sb.WriteString(fmt.Sprintf("\nSummary: %d Controls, %d Passed, %d Failed, %d Errors, %d Skipped",
		len(r.Controls),
		r.Counts[engine.OutcomePass],
		r.Counts[engine.OutcomeFail],
		r.Counts[engine.OutcomeError],
		r.Counts[engine.OutcomeSkip],
	))
	return sb.String()
}

// DescribeControlWrapper lists the catalog or explains one control.
type DescribeControlWrapper struct {
	Registry *engine.Registry
}

func (d *DescribeControlWrapper) Name() string {
	return "DescribeControl"
}

func (d *DescribeControlWrapper) Description() string {
	return "Describes a compliance control (title, impact, description, checks). If no id is given, lists every control in the catalog."
}

func (d *DescribeControlWrapper) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"control_id": map[string]interface{}{
				"type":        "string",
				"description": "The control id to describe. If omitted, lists all controls.",
			},
		},
	}
}

func (d *DescribeControlWrapper) Execute(ctx context.Context, args map[string]interface{}, progress func(string)) (string, error) {
	if d.Registry == nil {
		return "Error: Control catalog not loaded.", nil
	}

	id, _ := args["control_id"].(string)
	if id == "" {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Catalog has %d controls:\n", d.Registry.Len()))
		for _, c := range d.Registry.All() {
			sb.WriteString(fmt.Sprintf("- %s (impact %.1f): %s\n", c.ID, c.Impact, c.Title))
		}
		return sb.String(), nil
	}

	c, err := d.Registry.Get(id)
	if err != nil {
		return fmt.Sprintf("Control '%s' not found.", id), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: %s\nImpact: %.1f\n", c.ID, c.Title, c.Impact))
	if c.Informational() {
		sb.WriteString("(informational: excluded from the score)\n")
	}
	if c.Description != "" {
		sb.WriteString(c.Description + "\n")
	}
	sb.WriteString("Checks:\n")
	for _, check := range c.Checks {
		if check.IsSkip() {
			sb.WriteString(fmt.Sprintf("- skipped: %s\n", check.Skip))
			continue
		}
		sb.WriteString(fmt.Sprintf("- %s: %s %s %s\n", check.Label(), check.Resource.Kind, check.Assert.Op, strings.Join(check.Assert.Path, ".")))
	}
	return sb.String(), nil
}
