package engine

import (
	"encoding/json"
	"fmt"
	"os"
)

// DefaultSnapshotPath is where report snapshots are written when no path is given.
const DefaultSnapshotPath = ".cisaudit-snapshot.json"

// ControlChange pairs a control's baseline and current outcome.
type ControlChange struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Impact   float64     `json:"impact"`
	Baseline OutcomeKind `json:"baseline,omitempty"`
	Current  OutcomeKind `json:"current,omitempty"`
	Detail   string      `json:"detail,omitempty"`
}

// ReportDiff classifies how control outcomes moved between two reports.
type ReportDiff struct {
	New        []ControlChange `json:"new"`       // failing now, not failing before
	Fixed      []ControlChange `json:"fixed"`     // failing before, passing now
	Unchanged  []ControlChange `json:"unchanged"` // failing in both
	Errored    []ControlChange `json:"errored"`   // erroring now, not erroring before
	Recovered  []ControlChange `json:"recovered"` // erroring before, passing now
	Added      []ControlChange `json:"added"`     // absent from baseline
	Removed    []ControlChange `json:"removed"`   // absent from current
	ScoreDelta float64         `json:"scoreDelta"`
}

// SaveSnapshot writes a report as indented JSON.
func SaveSnapshot(path string, r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadSnapshot reads a report written by SaveSnapshot.
func LoadSnapshot(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	return r, nil
}

// CompareReports diffs current against baseline by control id. Lists follow
// the current report's order, removed controls the baseline's.
func CompareReports(baseline, current Report) ReportDiff {
	diff := ReportDiff{ScoreDelta: current.Score - baseline.Score}

	before := make(map[string]ControlReport, len(baseline.Controls))
	for _, c := range baseline.Controls {
		before[c.ID] = c
	}
	seen := make(map[string]bool, len(current.Controls))

	for _, cur := range current.Controls {
		seen[cur.ID] = true
		change := ControlChange{ID: cur.ID, Title: cur.Title, Impact: cur.Impact, Current: cur.Outcome, Detail: cur.Detail}

		old, ok := before[cur.ID]
		if !ok {
			diff.Added = append(diff.Added, change)
			switch cur.Outcome {
			case OutcomeFail:
				diff.New = append(diff.New, change)
			case OutcomeError:
				diff.Errored = append(diff.Errored, change)
			}
			continue
		}
		change.Baseline = old.Outcome

		switch {
		case cur.Outcome == OutcomeFail && old.Outcome == OutcomeFail:
			diff.Unchanged = append(diff.Unchanged, change)
		case cur.Outcome == OutcomeFail:
			diff.New = append(diff.New, change)
		case old.Outcome == OutcomeFail && cur.Outcome == OutcomePass:
			diff.Fixed = append(diff.Fixed, change)
		case cur.Outcome == OutcomeError && old.Outcome != OutcomeError:
			diff.Errored = append(diff.Errored, change)
		case old.Outcome == OutcomeError && cur.Outcome == OutcomePass:
			diff.Recovered = append(diff.Recovered, change)
		}
	}

	for _, old := range baseline.Controls {
		if !seen[old.ID] {
			diff.Removed = append(diff.Removed, ControlChange{
				ID: old.ID, Title: old.Title, Impact: old.Impact, Baseline: old.Outcome,
			})
		}
	}
	return diff
}
