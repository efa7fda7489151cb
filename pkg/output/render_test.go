package output

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/cisaudit/pkg/engine"
	"github.com/user/cisaudit/pkg/store"
)

func sampleReport() engine.Report {
	return engine.Aggregate([]engine.ControlResult{
		{Control: engine.Control{ID: "cis-docker-benchmark-4.6", Title: "Add HEALTHCHECK instruction", Impact: 0}, Outcome: engine.Fail("web: Config.Healthcheck is nil")},
		{Control: engine.Control{ID: "cis-docker-benchmark-4.9", Title: "Use COPY instead of ADD", Impact: 0.3}, Outcome: engine.Pass()},
		{Control: engine.Control{ID: "cis-docker-benchmark-4.10", Title: "Secrets", Impact: 0}, Outcome: engine.Skip("manual")},
	}, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), true)
}

func TestRenderReport(t *testing.T) {
	out := RenderReport(sampleReport())
	assert.Contains(t, out, "cis-docker-benchmark-4.6")
	assert.Contains(t, out, "Config.Healthcheck is nil")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "100.0%")
	assert.Contains(t, out, "INCOMPLETE")
}

func TestWriteFormats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(), FormatJSON))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, true, doc["incomplete"])
	assert.Len(t, doc["controls"], 3)

	buf.Reset()
	require.NoError(t, Write(&buf, sampleReport(), ""))
	assert.Contains(t, buf.String(), "Compliance Report")

	assert.Error(t, Write(&buf, sampleReport(), "xml"))
}

func TestRenderControl(t *testing.T) {
	pred := engine.Predicate{Op: engine.OpNotNil, Path: []string{"Config", "Healthcheck"}}
	c := engine.Control{
		ID: "x", Title: "Healthcheck", Impact: 0.5, Description: "desc",
		References: []string{"https://example.com"},
		Checks: []engine.Check{
			{Describe: "has healthcheck", Resource: &engine.ResourceQuery{Kind: engine.QueryContainerInspect}, Assert: &pred},
			{Skip: "manual"},
		},
	}
	out := RenderControl(c)
	assert.Contains(t, out, "has healthcheck: container_inspect not_nil")
	assert.Contains(t, out, "[skip]")
	assert.Contains(t, out, "https://example.com")

	list := RenderControls([]engine.Control{c})
	assert.Contains(t, list, "Controls (1)")
}

func TestRenderDiffAndHistory(t *testing.T) {
	diff := engine.ReportDiff{
		New:        []engine.ControlChange{{ID: "a", Detail: "bad"}},
		Fixed:      []engine.ControlChange{{ID: "b"}},
		ScoreDelta: -0.25,
	}
	out := RenderDiff(diff, "baseline.json")
	assert.Contains(t, out, "NEW FAILURES: 1")
	assert.Contains(t, out, "FIXED: 1")
	assert.Contains(t, out, "-25.0 points")
	assert.NotContains(t, out, "NEW ERRORS")

	diff.Errored = []engine.ControlChange{{ID: "c", Baseline: engine.OutcomePass, Detail: "timeout"}}
	diff.Recovered = []engine.ControlChange{{ID: "d"}}
	out = RenderDiff(diff, "baseline.json")
	assert.Contains(t, out, "NEW ERRORS: 1")
	assert.Contains(t, out, "RECOVERED: 1")

	hist := RenderHistory([]store.Record{{ID: "r1", GeneratedAt: "2026-01-01T00:00:00Z", Score: 0.5, Incomplete: true}})
	assert.Contains(t, hist, "r1")
	assert.Contains(t, hist, "50.0%")
	assert.Contains(t, RenderHistory(nil), "no reports stored")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdefgh", 5))
	assert.Equal(t, "a b", truncate("a\nb", 5))
}
