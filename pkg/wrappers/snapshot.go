package wrappers

import (
	"context"
	"fmt"
	"strings"

	"github.com/user/cisaudit/pkg/engine"
)

// SaveSnapshotWrapper implements the Tool interface for saving the latest report
type SaveSnapshotWrapper struct {
	Session *Session
}

func (s *SaveSnapshotWrapper) Name() string {
	return "SaveSnapshot"
}

func (s *SaveSnapshotWrapper) Description() string {
	return "Saves the latest evaluation report to a snapshot file for future comparison."
}

func (s *SaveSnapshotWrapper) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"filename": map[string]interface{}{
				"type":        "string",
				"description": "Optional filename for the snapshot (default: " + engine.DefaultSnapshotPath + ")",
			},
		},
	}
}

func (s *SaveSnapshotWrapper) Execute(ctx context.Context, args map[string]interface{}, progress func(string)) (string, error) {
	if s.Session == nil {
		return "Error: Session not initialized.", nil
	}
	report, ok := s.Session.Latest()
	if !ok {
		return "No evaluation has been run yet. Run EvaluateControls first.", nil
	}

	filename := engine.DefaultSnapshotPath
	if val, ok := args["filename"].(string); ok && val != "" {
		filename = val
	}

	if err := engine.SaveSnapshot(filename, report); err != nil {
		return fmt.Sprintf("Error saving snapshot: %v", err), nil
	}
	return fmt.Sprintf("Successfully saved %d control results to snapshot '%s'.", len(report.Controls), filename), nil
}

// DiffSnapshotWrapper implements the Tool interface for comparing the latest report with a baseline
type DiffSnapshotWrapper struct {
	Session *Session
}

func (d *DiffSnapshotWrapper) Name() string {
	return "CompareWithBaseline"
}

func (d *DiffSnapshotWrapper) Description() string {
	return "Compares the latest evaluation against a previously saved snapshot to identify new, fixed and still failing controls, plus controls that started or stopped erroring."
}

func (d *DiffSnapshotWrapper) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"filename": map[string]interface{}{
				"type":        "string",
				"description": "Optional filename of the baseline snapshot (default: " + engine.DefaultSnapshotPath + ")",
			},
		},
	}
}

func (d *DiffSnapshotWrapper) Execute(ctx context.Context, args map[string]interface{}, progress func(string)) (string, error) {
	if d.Session == nil {
		return "Error: Session not initialized.", nil
	}
	current, ok := d.Session.Latest()
	if !ok {
		return "No evaluation has been run yet. Run EvaluateControls first.", nil
	}

	filename := engine.DefaultSnapshotPath
	if val, ok := args["filename"].(string); ok && val != "" {
		filename = val
	}

	baseline, err := engine.LoadSnapshot(filename)
	if err != nil {
		return fmt.Sprintf("Error loading baseline snapshot '%s': %v. Have you saved a snapshot before?", filename, err), nil
	}

	diff := engine.CompareReports(baseline, current)
	return formatDiff(diff, filename), nil
}

const maxUnchangedListed = 10

func formatDiff(diff engine.ReportDiff, against string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Snapshot Comparison (vs %s):\n", against))
	sb.WriteString("--------------------------------------------------\n")

	sb.WriteString(fmt.Sprintf("NEW FAILURES: %d\n", len(diff.New)))
	for _, c := range diff.New {
		sb.WriteString(fmt.Sprintf("  [+] %s (impact %.1f) - %s\n", c.ID, c.Impact, c.Detail))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("FIXED: %d\n", len(diff.Fixed)))
	for _, c := range diff.Fixed {
		sb.WriteString(fmt.Sprintf("  [-] %s (impact %.1f)\n", c.ID, c.Impact))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("STILL FAILING: %d\n", len(diff.Unchanged)))
	for i, c := range diff.Unchanged {
		if i == maxUnchangedListed {
			sb.WriteString(fmt.Sprintf("  ... and %d more.\n", len(diff.Unchanged)-maxUnchangedListed))
			break
		}
		sb.WriteString(fmt.Sprintf("  [=] %s (impact %.1f) - %s\n", c.ID, c.Impact, c.Detail))
	}

	if len(diff.Errored) > 0 || len(diff.Recovered) > 0 {
		sb.WriteString(fmt.Sprintf("\nNEW ERRORS: %d\n", len(diff.Errored)))
		for _, c := range diff.Errored {
			sb.WriteString(fmt.Sprintf("  [!] %s (was %s) - %s\n", c.ID, c.Baseline, c.Detail))
		}
		sb.WriteString(fmt.Sprintf("RECOVERED: %d\n", len(diff.Recovered)))
		for _, c := range diff.Recovered {
			sb.WriteString(fmt.Sprintf("  [~] %s\n", c.ID))
		}
	}

	sb.WriteString(fmt.Sprintf("\nScore change: %+.1f points\n", diff.ScoreDelta*100))
	return sb.String()
}
