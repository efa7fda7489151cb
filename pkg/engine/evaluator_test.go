package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticResolvers serves fixed instances per kind, keyed by query name for env vars.
func staticResolvers(containers []Instance, env map[string]string) map[QueryKind]Resolver {
	return map[QueryKind]Resolver{
		QueryContainerInspect: ResolverFunc(func(context.Context, ResourceQuery) ([]Instance, error) {
			return containers, nil
		}),
		QueryEnvVar: ResolverFunc(func(_ context.Context, q ResourceQuery) ([]Instance, error) {
			inst := Instance{ID: q.Name}
			if v, ok := env[q.Name]; ok {
				inst.Value = v
			}
			return []Instance{inst}, nil
		}),
	}
}

func inspectCheck(pred Predicate) Check {
	return Check{Resource: &ResourceQuery{Kind: QueryContainerInspect}, Assert: &pred}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestEmptyFleetIsVacuousPass(t *testing.T) {
	reg, err := Load([]Control{{
		ID: "hc", Impact: 1, Checks: []Check{inspectCheck(Predicate{Op: OpNotNil, Path: []string{"Config", "Healthcheck"}})},
	}})
	require.NoError(t, err)

	report := New(staticResolvers(nil, nil), Options{}).Run(context.Background(), reg.All())
	require.Len(t, report.Controls, 1)
	assert.Equal(t, OutcomePass, report.Controls[0].Outcome)
	assert.Equal(t, 1.0, report.Score)
}

func TestRequiredInstances(t *testing.T) {
	check := inspectCheck(Predicate{Op: OpNotNil})
	check.Resource.Require = true
	reg, err := Load([]Control{{ID: "req", Impact: 1, Checks: []Check{check}}})
	require.NoError(t, err)

	report := New(staticResolvers(nil, nil), Options{}).Run(context.Background(), reg.All())
	assert.Equal(t, OutcomeFail, report.Controls[0].Outcome)
	assert.Equal(t, "no matching container_inspect resources", report.Controls[0].Detail)

	reg, err = Load([]Control{{ID: "opt", Impact: 1, Checks: []Check{inspectCheck(Predicate{Op: OpNotNil})}}})
	require.NoError(t, err)
	eng := New(staticResolvers(nil, nil), Options{RequireInstances: map[QueryKind]bool{QueryContainerInspect: true}})
	report = eng.Run(context.Background(), reg.All())
	assert.Equal(t, OutcomeFail, report.Controls[0].Outcome)
}

func TestAllSkipControlIsExcludedFromScore(t *testing.T) {
	reg, err := Load([]Control{
		{ID: "manual", Impact: 1, Checks: []Check{{Skip: "manual review"}, {Skip: "manual review"}, {Skip: "not applicable"}}},
		envControl("trust", 0.5, "DOCKER_CONTENT_TRUST", Predicate{Op: OpEquals, Expected: "1"}),
	})
	require.NoError(t, err)

	report := New(staticResolvers(nil, map[string]string{"DOCKER_CONTENT_TRUST": "0"}), Options{}).Run(context.Background(), reg.All())

	manual, ok := report.Control("manual")
	require.True(t, ok)
	assert.Equal(t, OutcomeSkip, manual.Outcome)
	assert.Equal(t, "manual review; not applicable", manual.Detail)
	assert.Equal(t, 0.0, report.Score)
	assert.Equal(t, 1, report.Counts[OutcomeSkip])
	assert.Equal(t, 1, report.Counts[OutcomeFail])
}

func TestMissingFieldIsErrorNotFail(t *testing.T) {
	containers := []Instance{{ID: "web", Value: map[string]any{"Config": map[string]any{}}}}
	reg, err := Load([]Control{{
		ID: "user", Impact: 1, Checks: []Check{inspectCheck(Predicate{Op: OpNotEquals, Path: []string{"Config", "User"}, Expected: ""})},
	}})
	require.NoError(t, err)

	report := New(staticResolvers(containers, nil), Options{}).Run(context.Background(), reg.All())
	c := report.Controls[0]
	assert.Equal(t, OutcomeError, c.Outcome)
	assert.Equal(t, "web: field not found: Config.User", c.Detail)
	assert.Equal(t, 1, report.Counts[OutcomeError])
	assert.Zero(t, report.Counts[OutcomeFail])
}

func TestWeightedScore(t *testing.T) {
	reg, err := Load([]Control{
		envControl("pass", 1.0, "A", Predicate{Op: OpEquals, Expected: "yes"}),
		envControl("fail", 1.0, "B", Predicate{Op: OpEquals, Expected: "yes"}),
		{ID: "skip", Impact: 0.0, Checks: []Check{{Skip: "informational"}}},
	})
	require.NoError(t, err)

	report := New(staticResolvers(nil, map[string]string{"A": "yes", "B": "no"}), Options{}).Run(context.Background(), reg.All())
	assert.Equal(t, 0.5, report.Score)
	assert.Equal(t, map[OutcomeKind]int{OutcomePass: 1, OutcomeFail: 1, OutcomeSkip: 1, OutcomeError: 0}, report.Counts)
}

func TestInformationalControlRunsButDoesNotScore(t *testing.T) {
	reg, err := Load([]Control{
		envControl("info", 0.0, "A", Predicate{Op: OpEquals, Expected: "yes"}),
		envControl("real", 1.0, "B", Predicate{Op: OpEquals, Expected: "yes"}),
	})
	require.NoError(t, err)

	report := New(staticResolvers(nil, map[string]string{"A": "no", "B": "yes"}), Options{}).Run(context.Background(), reg.All())
	info, _ := report.Control("info")
	assert.Equal(t, OutcomeFail, info.Outcome)
	assert.Equal(t, 1.0, report.Score)
}

func TestNothingScorableScoresOne(t *testing.T) {
	report := New(nil, Options{}).Run(context.Background(), nil)
	assert.Equal(t, 1.0, report.Score)
	assert.Empty(t, report.Controls)
	assert.False(t, report.Incomplete)
}

func TestResolverFailureIsContainedToItsCheck(t *testing.T) {
	resolvers := staticResolvers(nil, map[string]string{"A": "yes"})
	resolvers[QueryShellCommand] = ResolverFunc(func(context.Context, ResourceQuery) ([]Instance, error) {
		return nil, &LaunchError{Argv: []string{"missing-bin"}, Err: errors.New("executable file not found")}
	})
	resolvers[QueryImageHistory] = ResolverFunc(func(context.Context, ResourceQuery) ([]Instance, error) {
		panic("boom")
	})

	shell := Predicate{Op: OpEquals, Path: []string{"exit_status"}, Expected: 0}
	pass := Predicate{Op: OpEquals, Expected: "yes"}
	fail := Predicate{Op: OpEquals, Expected: "no"}
	notNil := Predicate{Op: OpNotNil}
	reg, err := Load([]Control{
		{ID: "mixed", Impact: 1, Checks: []Check{
			{Resource: &ResourceQuery{Kind: QueryShellCommand, Argv: []string{"missing-bin"}}, Assert: &shell},
			{Resource: &ResourceQuery{Kind: QueryEnvVar, Name: "A"}, Assert: &fail},
		}},
		{ID: "errored", Impact: 1, Checks: []Check{
			{Resource: &ResourceQuery{Kind: QueryShellCommand, Argv: []string{"missing-bin"}}, Assert: &shell},
			{Resource: &ResourceQuery{Kind: QueryEnvVar, Name: "A"}, Assert: &pass},
		}},
		{ID: "panics", Impact: 1, Checks: []Check{{Resource: &ResourceQuery{Kind: QueryImageHistory}, Assert: &notNil}}},
		envControl("healthy", 1, "A", pass),
	})
	require.NoError(t, err)

	report := New(resolvers, Options{Concurrency: 2}).Run(context.Background(), reg.All())

	mixed, _ := report.Control("mixed")
	assert.Equal(t, OutcomeFail, mixed.Outcome)
	require.Len(t, mixed.Checks, 2)
	assert.Equal(t, OutcomeError, mixed.Checks[0].Outcome)
	assert.Contains(t, mixed.Checks[0].Detail, "executable file not found")
	assert.Equal(t, OutcomeFail, mixed.Checks[1].Outcome)

	errored, _ := report.Control("errored")
	assert.Equal(t, OutcomeError, errored.Outcome)

	panics, _ := report.Control("panics")
	assert.Equal(t, OutcomeError, panics.Outcome)
	assert.Contains(t, panics.Detail, "boom")

	healthy, _ := report.Control("healthy")
	assert.Equal(t, OutcomePass, healthy.Outcome)
	assert.Len(t, report.Controls, 4)
}

func TestMissingResolverIsError(t *testing.T) {
	reg, err := Load([]Control{{ID: "x", Impact: 1, Checks: []Check{inspectCheck(Predicate{Op: OpNotNil})}}})
	require.NoError(t, err)
	report := New(map[QueryKind]Resolver{}, Options{}).Run(context.Background(), reg.All())
	assert.Equal(t, OutcomeError, report.Controls[0].Outcome)
	assert.Equal(t, "no resolver registered for container_inspect", report.Controls[0].Detail)
}

func TestEmptyCheckIsErrorNotCrash(t *testing.T) {
	reg, err := Load([]Control{skipControl("x", 1), skipControl("y", 1)})
	require.NoError(t, err)
	controls := reg.All()
	controls[0].Checks[0].Skip = ""

	report := New(staticResolvers(nil, nil), Options{}).Run(context.Background(), controls)
	require.Len(t, report.Controls, 2)
	assert.Equal(t, OutcomeError, report.Controls[0].Outcome)
	assert.Contains(t, report.Controls[0].Detail, "neither skip nor resource")
	assert.Equal(t, OutcomeSkip, report.Controls[1].Outcome)
	assert.False(t, report.Incomplete)
}

func TestTimeoutDetail(t *testing.T) {
	resolvers := map[QueryKind]Resolver{
		QueryShellCommand: ResolverFunc(func(context.Context, ResourceQuery) ([]Instance, error) {
			return nil, &ResolutionError{Kind: QueryShellCommand, Err: ErrTimeout}
		}),
	}
	pred := Predicate{Op: OpNotNil}
	reg, err := Load([]Control{{ID: "slow", Impact: 1, Checks: []Check{
		{Resource: &ResourceQuery{Kind: QueryShellCommand, Argv: []string{"sleep", "60"}}, Assert: &pred},
	}}})
	require.NoError(t, err)

	report := New(resolvers, Options{}).Run(context.Background(), reg.All())
	assert.Equal(t, OutcomeError, report.Controls[0].Outcome)
	assert.Equal(t, "timeout", report.Controls[0].Detail)
}

func TestPerInstanceFold(t *testing.T) {
	containers := []Instance{
		{ID: "a", Value: map[string]any{"Config": map[string]any{"User": "app"}}},
		{ID: "b", Value: map[string]any{"Config": map[string]any{"User": ""}}},
		{ID: "c", Value: map[string]any{"Config": map[string]any{}}},
	}
	reg, err := Load([]Control{{
		ID: "user", Impact: 1, Checks: []Check{inspectCheck(Predicate{Op: OpNotEquals, Path: []string{"Config", "User"}, Expected: ""})},
	}})
	require.NoError(t, err)

	report := New(staticResolvers(containers, nil), Options{}).Run(context.Background(), reg.All())
	c := report.Controls[0]
	assert.Equal(t, OutcomeFail, c.Outcome)
	assert.Equal(t, `b: Config.User must not be ""`, c.Detail)

	require.Len(t, c.Checks[0].Instances, 3)
	assert.Equal(t, OutcomePass, c.Checks[0].Instances[0].Outcome)
	assert.Equal(t, OutcomeFail, c.Checks[0].Instances[1].Outcome)
	assert.Equal(t, OutcomeError, c.Checks[0].Instances[2].Outcome)
}

func TestChecksKeepDefinitionOrder(t *testing.T) {
	var checks []Check
	env := map[string]string{}
	for i := 0; i < 6; i++ {
		name := fmt.Sprintf("V%d", i)
		env[name] = "x"
		pred := Predicate{Op: OpNotNil}
		checks = append(checks, Check{Describe: name, Resource: &ResourceQuery{Kind: QueryEnvVar, Name: name}, Assert: &pred})
	}
	checks = append(checks, Check{Describe: "manual", Skip: "manual"})

	reg, err := Load([]Control{{ID: "ordered", Impact: 1, Checks: checks}})
	require.NoError(t, err)

	report := New(staticResolvers(nil, env), Options{}).Run(context.Background(), reg.All())
	got := report.Controls[0].Checks
	require.Len(t, got, 7)
	for i := 0; i < 6; i++ {
		assert.Equal(t, fmt.Sprintf("V%d", i), got[i].Describe)
	}
	assert.Equal(t, OutcomeSkip, got[6].Outcome)
	assert.Equal(t, OutcomePass, report.Controls[0].Outcome)
}

func TestRunIsIdempotent(t *testing.T) {
	containers := []Instance{{ID: "web", Value: map[string]any{"Config": map[string]any{"User": "app"}}}}
	var defs []Control
	for i := 0; i < 12; i++ {
		defs = append(defs, Control{
			ID: fmt.Sprintf("c%02d", i), Impact: float64(i%4) / 4,
			Checks: []Check{inspectCheck(Predicate{Op: OpEquals, Path: []string{"Config", "User"}, Expected: fmt.Sprintf("u%d", i%2)})},
		})
	}
	defs = append(defs, envControl("env", 1, "MISSING", Predicate{Op: OpNotNil}))
	reg, err := Load(defs)
	require.NoError(t, err)

	run := func(at time.Time) []byte {
		eng := New(staticResolvers(containers, nil), Options{Concurrency: 8, Clock: fixedClock(at)})
		r := eng.Run(context.Background(), reg.All())
		r.GeneratedAt = time.Time{}
		data, err := json.Marshal(r)
		require.NoError(t, err)
		return data
	}

	first := run(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	second := run(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, string(first), string(second))
}

func TestGeneratedAtComesFromClock(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("X", 3600))
	report := New(nil, Options{Clock: fixedClock(at)}).Run(context.Background(), nil)
	assert.True(t, report.GeneratedAt.Equal(at))
	assert.Equal(t, time.UTC, report.GeneratedAt.Location())
}

func TestCancellationAfterTwoOfFive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	resolvers := map[QueryKind]Resolver{
		QueryEnvVar: ResolverFunc(func(ctx context.Context, q ResourceQuery) ([]Instance, error) {
			if calls.Add(1) == 3 {
				cancel()
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return []Instance{{ID: q.Name, Value: "1"}}, nil
		}),
	}

	var defs []Control
	for i := 1; i <= 5; i++ {
		defs = append(defs, envControl(fmt.Sprintf("c%d", i), 1, "V", Predicate{Op: OpEquals, Expected: "1"}))
	}
	reg, err := Load(defs)
	require.NoError(t, err)

	report := New(resolvers, Options{Concurrency: 1}).Run(ctx, reg.All())

	assert.True(t, report.Incomplete)
	require.Len(t, report.Controls, 5)
	for i, c := range report.Controls {
		assert.Equal(t, fmt.Sprintf("c%d", i+1), c.ID)
		if i < 2 {
			assert.Equal(t, OutcomePass, c.Outcome, c.ID)
			continue
		}
		assert.Equal(t, OutcomeSkip, c.Outcome, c.ID)
		assert.Equal(t, "cancelled", c.Detail, c.ID)
	}
	assert.Equal(t, 2, report.Counts[OutcomePass])
	assert.Equal(t, 3, report.Counts[OutcomeSkip])
	assert.Equal(t, 1.0, report.Score)
	assert.LessOrEqual(t, calls.Load(), int32(3))
}

func TestCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reg, err := Load([]Control{skipControl("a", 1), skipControl("b", 1)})
	require.NoError(t, err)

	report := New(nil, Options{}).Run(ctx, reg.All())
	assert.True(t, report.Incomplete)
	require.Len(t, report.Controls, 2)
	assert.Equal(t, "cancelled", report.Controls[0].Detail)
}

type recordingObserver struct {
	mu       sync.Mutex
	controls []string
	errors   []QueryKind
	runs     int
}

func (o *recordingObserver) ObserveControl(res ControlResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.controls = append(o.controls, res.Control.ID)
}

func (o *recordingObserver) ObserveResolutionError(kind QueryKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, kind)
}

func (o *recordingObserver) ObserveRun(Report, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs++
}

func TestObserver(t *testing.T) {
	resolvers := staticResolvers(nil, nil)
	resolvers[QueryShellCommand] = ResolverFunc(func(context.Context, ResourceQuery) ([]Instance, error) {
		return nil, errors.New("nope")
	})
	pred := Predicate{Op: OpNotNil}
	reg, err := Load([]Control{
		skipControl("a", 1),
		{ID: "b", Impact: 1, Checks: []Check{{Resource: &ResourceQuery{Kind: QueryShellCommand, Argv: []string{"x"}}, Assert: &pred}}},
	})
	require.NoError(t, err)

	obs := &recordingObserver{}
	New(resolvers, Options{Observer: obs}).Run(context.Background(), reg.All())
	assert.ElementsMatch(t, []string{"a", "b"}, obs.controls)
	assert.Equal(t, []QueryKind{QueryShellCommand}, obs.errors)
	assert.Equal(t, 1, obs.runs)
}
