package engine

import (
	"time"
)

// ControlReport is one control's line in a report.
type ControlReport struct {
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	Impact  float64       `json:"impact"`
	Outcome OutcomeKind   `json:"outcome"`
	Detail  string        `json:"detail,omitempty"`
	Checks  []CheckResult `json:"checks"`
}

// Report is the weighted compliance summary of one evaluation run.
type Report struct {
	GeneratedAt time.Time           `json:"generatedAt"`
	Score       float64             `json:"score"`
	Counts      map[OutcomeKind]int `json:"counts"`
	Controls    []ControlReport     `json:"controls"`
	Incomplete  bool                `json:"incomplete"`
}

// Aggregate folds control results into a report. The score is the impact of
// passing controls over the impact of every non-skipped control, and 1.0
// when nothing scorable ran.
func Aggregate(results []ControlResult, generatedAt time.Time, incomplete bool) Report {
	r := Report{
		GeneratedAt: generatedAt,
		Counts:      make(map[OutcomeKind]int, len(OutcomeKinds)),
		Controls:    make([]ControlReport, 0, len(results)),
		Incomplete:  incomplete,
	}
	for _, k := range OutcomeKinds {
		r.Counts[k] = 0
	}

	var passed, scorable float64
	for _, res := range results {
		r.Counts[res.Outcome.Kind]++
		checks := res.Checks
		if checks == nil {
			checks = []CheckResult{}
		}
		r.Controls = append(r.Controls, ControlReport{
			ID:      res.Control.ID,
			Title:   res.Control.Title,
			Impact:  res.Control.Impact,
			Outcome: res.Outcome.Kind,
			Detail:  res.Outcome.Detail,
			Checks:  checks,
		})

		if res.Outcome.Kind == OutcomeSkip {
			continue
		}
		scorable += res.Control.Impact
		if res.Outcome.Kind == OutcomePass {
			passed += res.Control.Impact
		}
	}

	r.Score = 1.0
	if scorable > 0 {
		r.Score = passed / scorable
	}
	return r
}

// Control returns the report line for id.
func (r Report) Control(id string) (ControlReport, bool) {
	for _, c := range r.Controls {
		if c.ID == id {
			return c, true
		}
	}
	return ControlReport{}, false
}

// ByOutcome returns the report lines with the given outcome, in report order.
func (r Report) ByOutcome(kind OutcomeKind) []ControlReport {
	var out []ControlReport
	for _, c := range r.Controls {
		if c.Outcome == kind {
			out = append(out, c)
		}
	}
	return out
}
