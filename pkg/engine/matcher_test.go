package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inspectDoc() Instance {
	return Instance{ID: "web", Value: map[string]any{
		"Config": map[string]any{
			"User":   "app",
			"Labels": map[string]any{},
			"Env":    []any{"PATH=/usr/bin", "TZ=UTC"},
		},
		"HostConfig": map[string]any{
			"Privileged": false,
			"CpuShares":  float64(512),
		},
		"RestartCount": float64(0),
	}}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name   string
		inst   Instance
		pred   Predicate
		want   OutcomeKind
		detail string
	}{
		{"equals string", inspectDoc(), Predicate{Op: OpEquals, Path: []string{"Config", "User"}, Expected: "app"}, OutcomePass, ""},
		{"equals mismatch", inspectDoc(), Predicate{Op: OpEquals, Path: []string{"Config", "User"}, Expected: "root"}, OutcomeFail, `Config.User is "app", expected "root"`},
		{"equals bool", inspectDoc(), Predicate{Op: OpEquals, Path: []string{"HostConfig", "Privileged"}, Expected: false}, OutcomePass, ""},
		{"equals int against json number", inspectDoc(), Predicate{Op: OpEquals, Path: []string{"HostConfig", "CpuShares"}, Expected: 512}, OutcomePass, ""},
		{"equals nil", Instance{Value: nil}, Predicate{Op: OpEquals, Expected: nil}, OutcomePass, ""},
		{"not equals", inspectDoc(), Predicate{Op: OpNotEquals, Path: []string{"Config", "User"}, Expected: "root"}, OutcomePass, ""},
		{"not equals hit", inspectDoc(), Predicate{Op: OpNotEquals, Path: []string{"Config", "User"}, Expected: "app"}, OutcomeFail, `Config.User must not be "app"`},
		{"slice index", inspectDoc(), Predicate{Op: OpEquals, Path: []string{"Config", "Env", "1"}, Expected: "TZ=UTC"}, OutcomePass, ""},
		{"not nil", inspectDoc(), Predicate{Op: OpNotNil, Path: []string{"Config", "User"}}, OutcomePass, ""},
		{"not nil on absent env", Instance{ID: "X"}, Predicate{Op: OpNotNil}, OutcomeFail, "<value> is nil"},
		{"is empty map", inspectDoc(), Predicate{Op: OpIsEmpty, Path: []string{"Config", "Labels"}}, OutcomePass, ""},
		{"is empty on absent", Instance{}, Predicate{Op: OpIsEmpty}, OutcomePass, ""},
		{"is empty string", Instance{Value: ""}, Predicate{Op: OpIsEmpty}, OutcomePass, ""},
		{"is empty fails", Instance{Value: "x"}, Predicate{Op: OpIsEmpty}, OutcomeFail, `<value> is not empty: "x"`},
		{"matches substring", Instance{Value: "docker version 24.0.7"}, Predicate{Op: OpMatches, Pattern: `24\.0`}, OutcomePass, ""},
		{"matches miss", Instance{Value: "abc"}, Predicate{Op: OpMatches, Pattern: `^x`}, OutcomeFail, "<value> does not match /^x/"},
		{"matches on absent", Instance{}, Predicate{Op: OpMatches, Pattern: `.*`}, OutcomeFail, "<value> does not match /.*/"},
		{"not matches", Instance{Value: "COPY . /app"}, Predicate{Op: OpNotMatches, Pattern: `ADD`}, OutcomePass, ""},
		{"not matches hit", Instance{Value: "RUN x\nADD http://x /y"}, Predicate{Op: OpNotMatches, Pattern: `ADD`}, OutcomeFail, "<value> matches /ADD/: ADD"},
		{
			"except screens line by line",
			Instance{Value: "ADD file:abc in /\nRUN apk add --no-cache curl\n"},
			Predicate{Op: OpNotMatches, Pattern: `\bADD\b`, Except: `ADD file:`},
			OutcomePass, "",
		},
		{
			"except reports the offending line",
			Instance{Value: "ADD file:abc in /\n  ADD https://x/y.tgz /opt  \n"},
			Predicate{Op: OpNotMatches, Pattern: `\bADD\b`, Except: `ADD file:`},
			OutcomeFail, `<value> matches /\bADD\b/: ADD https://x/y.tgz /opt`,
		},
		{"missing field is an error", inspectDoc(), Predicate{Op: OpEquals, Path: []string{"Config", "Healthcheck"}, Expected: nil}, OutcomeError, "field not found: Config.Healthcheck"},
		{"missing parent is an error even when allowed", inspectDoc(), Predicate{Op: OpNotNil, Path: []string{"State", "Health"}, AllowMissing: true}, OutcomeError, "field not found: State"},
		{"allow missing final key", inspectDoc(), Predicate{Op: OpNotNil, Path: []string{"Config", "Healthcheck"}, AllowMissing: true}, OutcomeFail, "Config.Healthcheck is nil"},
		{"path through a scalar", inspectDoc(), Predicate{Op: OpNotNil, Path: []string{"Config", "User", "Name"}}, OutcomeError, "field not found: Config.User.Name"},
		{"shell result", Instance{Value: map[string]any{"stdout": "", "stderr": "", "exit_status": 0}}, Predicate{Op: OpEquals, Path: []string{"exit_status"}, Expected: 0}, OutcomePass, ""},
		{"unknown op", Instance{}, Predicate{Op: "bogus"}, OutcomeError, `unknown assertion op "bogus"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(tt.inst, tt.pred)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, tt.detail, got.Detail)
		})
	}
}

func TestMatchNeverSkips(t *testing.T) {
	for _, op := range []PredicateOp{OpEquals, OpNotEquals, OpNotNil, OpMatches, OpNotMatches, OpIsEmpty} {
		got := Match(Instance{}, Predicate{Op: op, Pattern: "x"})
		assert.NotEqual(t, OutcomeSkip, got.Kind, op)
	}
}

func TestMatchDoesNotMutateInstance(t *testing.T) {
	inst := inspectDoc()
	before := inspectDoc()
	Match(inst, Predicate{Op: OpEquals, Path: []string{"Config", "User"}, Expected: "root"})
	Match(inst, Predicate{Op: OpNotNil, Path: []string{"Config", "Missing"}, AllowMissing: true})
	require.Equal(t, before, inst)
}

func TestMatchLongExcerptIsTruncated(t *testing.T) {
	long := "ADD " + strings.Repeat("x", 300)
	got := Match(Instance{Value: long}, Predicate{Op: OpNotMatches, Pattern: `ADD.*`})
	assert.Equal(t, OutcomeFail, got.Kind)
	assert.True(t, len(got.Detail) < 200)
	assert.Contains(t, got.Detail, "...")
}
