// Package output renders reports for terminals and machines.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/user/cisaudit/pkg/engine"
	"github.com/user/cisaudit/pkg/store"
)

const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// Write renders report to w in the named format.
func Write(w io.Writer, report engine.Report, format string) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, report)
	case FormatTable, "":
		_, err := io.WriteString(w, RenderReport(report))
		return err
	}
	return fmt.Errorf("unknown output format %q (want %s or %s)", format, FormatTable, FormatJSON)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func outcomeLabel(k engine.OutcomeKind) string {
	switch k {
	case engine.OutcomePass:
		return passStyle.Render("PASS")
	case engine.OutcomeFail:
		return failStyle.Render("FAIL")
	case engine.OutcomeError:
		return warnStyle.Render("ERR ")
	default:
		return skipStyle.Render("SKIP")
	}
}

func scoreStyle(score float64) string {
	text := fmt.Sprintf("%.1f%%", score*100)
	switch {
	case score >= 0.9:
		return passStyle.Render(text)
	case score >= 0.5:
		return warnStyle.Render(text)
	}
	return failStyle.Render(text)
}

// RenderReport renders one line per control followed by a summary box.
func RenderReport(report engine.Report) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("Compliance Report"))
	b.WriteString("\n")

	for _, c := range report.Controls {
		line := fmt.Sprintf(" %s  %-28s %-46s %s", outcomeLabel(c.Outcome), c.ID, truncate(c.Title, 46), dimStyle.Render(fmt.Sprintf("impact %.1f", c.Impact)))
		b.WriteString(line)
		b.WriteString("\n")
		if c.Detail != "" && c.Outcome != engine.OutcomePass {
			b.WriteString("        ")
			b.WriteString(dimStyle.Render(truncate(c.Detail, 110)))
			b.WriteString("\n")
		}
	}

	summary := fmt.Sprintf("%s %s   %s %d  %s %d  %s %d  %s %d",
		titleStyle.Render("Score"), scoreStyle(report.Score),
		passStyle.Render("pass"), report.Counts[engine.OutcomePass],
		failStyle.Render("fail"), report.Counts[engine.OutcomeFail],
		warnStyle.Render("error"), report.Counts[engine.OutcomeError],
		skipStyle.Render("skip"), report.Counts[engine.OutcomeSkip],
	)
	if report.Incomplete {
		summary += "  " + warnStyle.Render("INCOMPLETE")
	}
	b.WriteString(summaryBoxStyle.Render(summary))
	b.WriteString("\n")
	return b.String()
}

// RenderControls lists catalog controls.
func RenderControls(controls []engine.Control) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Controls (%d)", len(controls))))
	b.WriteString("\n")
	for _, c := range controls {
		b.WriteString(fmt.Sprintf(" %-28s %-52s %s\n", c.ID, truncate(c.Title, 52), dimStyle.Render(fmt.Sprintf("impact %.1f", c.Impact))))
	}
	return b.String()
}

// RenderControl shows one control with its checks.
func RenderControl(c engine.Control) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(c.ID+"  "+c.Title) + "\n")
	b.WriteString(fmt.Sprintf("Impact: %.1f\n", c.Impact))
	if c.Description != "" {
		b.WriteString(c.Description + "\n")
	}
	b.WriteString("\nChecks:\n")
	for i, check := range c.Checks {
		switch {
		case check.IsSkip():
			b.WriteString(fmt.Sprintf("  %d. %s %s\n", i+1, skipStyle.Render("[skip]"), check.Skip))
		default:
			b.WriteString(fmt.Sprintf("  %d. %s: %s %s\n", i+1, check.Label(), check.Resource.Kind, check.Assert.Op))
		}
	}
	for _, ref := range c.References {
		b.WriteString(dimStyle.Render("  ref: "+ref) + "\n")
	}
	return b.String()
}

// RenderDiff renders a comparison of two reports.
func RenderDiff(diff engine.ReportDiff, against string) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Comparison (vs " + against + ")"))
	b.WriteString("\n")

	section := func(title, marker string, style func(...string) string, items []engine.ControlChange) {
		b.WriteString(fmt.Sprintf("%s: %d\n", title, len(items)))
		for _, c := range items {
			b.WriteString(fmt.Sprintf("  %s %-28s %s\n", style(marker), c.ID, dimStyle.Render(truncate(c.Detail, 80))))
		}
	}
	section("NEW FAILURES", "[+]", failStyle.Render, diff.New)
	section("FIXED", "[-]", passStyle.Render, diff.Fixed)
	section("STILL FAILING", "[=]", warnStyle.Render, diff.Unchanged)
	if len(diff.Errored) > 0 || len(diff.Recovered) > 0 {
		section("NEW ERRORS", "[!]", warnStyle.Render, diff.Errored)
		section("RECOVERED", "[~]", passStyle.Render, diff.Recovered)
	}
	if len(diff.Added) > 0 || len(diff.Removed) > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("%d controls added, %d removed", len(diff.Added), len(diff.Removed))))
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("Score change: %+.1f points\n", diff.ScoreDelta*100))
	return b.String()
}

// RenderHistory lists stored report summaries.
func RenderHistory(recs []store.Record) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Report History"))
	b.WriteString("\n")
	if len(recs) == 0 {
		b.WriteString(dimStyle.Render("no reports stored") + "\n")
		return b.String()
	}
	for _, r := range recs {
		status := ""
		if r.Incomplete {
			status = warnStyle.Render(" incomplete")
		}
		b.WriteString(fmt.Sprintf(" %s  %s  %s  fail %d%s\n",
			r.ID, dimStyle.Render(r.GeneratedAt), scoreStyle(r.Score), r.Counts[engine.OutcomeFail], status))
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
