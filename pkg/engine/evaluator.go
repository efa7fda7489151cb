package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel control evaluation when unset.
const DefaultConcurrency = 4

// Resolver fetches live state for one query kind.
type Resolver interface {
	Resolve(ctx context.Context, q ResourceQuery) ([]Instance, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, q ResourceQuery) ([]Instance, error)

func (f ResolverFunc) Resolve(ctx context.Context, q ResourceQuery) ([]Instance, error) {
	return f(ctx, q)
}

// Observer receives evaluation events, e.g. for metrics.
type Observer interface {
	ObserveControl(res ControlResult)
	ObserveResolutionError(kind QueryKind)
	ObserveRun(report Report, elapsed time.Duration)
}

// Options tunes an Engine.
type Options struct {
	// Concurrency is the number of controls evaluated in parallel.
	Concurrency int
	// RequireInstances makes an empty resolution fail for the given kinds.
	RequireInstances map[QueryKind]bool
	Observer         Observer
	// Clock stamps reports; defaults to time.Now.
	Clock func() time.Time
}

// InstanceResult is the outcome of a predicate on one resolved instance.
type InstanceResult struct {
	ID      string      `json:"id,omitempty"`
	Outcome OutcomeKind `json:"outcome"`
	Detail  string      `json:"detail,omitempty"`
}

// CheckResult is the folded outcome of one check.
type CheckResult struct {
	Describe  string           `json:"describe,omitempty"`
	Outcome   OutcomeKind      `json:"outcome"`
	Detail    string           `json:"detail,omitempty"`
	Instances []InstanceResult `json:"instances,omitempty"`
}

// ControlResult is the evaluated state of one control.
type ControlResult struct {
	Control Control
	Outcome Outcome
	Checks  []CheckResult
}

type checkState string

const (
	statePending   checkState = "pending"
	stateResolving checkState = "resolving"
	stateMatching  checkState = "matching"
	stateDone      checkState = "done"
	stateSkipped   checkState = "skipped"
)

// Engine drives resolution and matching for a set of controls. It keeps no
// state between runs.
type Engine struct {
	resolvers map[QueryKind]Resolver
	opts      Options
}

// New creates an engine over the given resolvers.
func New(resolvers map[QueryKind]Resolver, opts Options) *Engine {
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	rs := make(map[QueryKind]Resolver, len(resolvers))
	for k, r := range resolvers {
		rs[k] = r
	}
	return &Engine{resolvers: rs, opts: opts}
}

// Run evaluates every control and aggregates the results into a report.
// On cancellation the report is marked incomplete and every control that did
// not finish is reported as skipped with reason "cancelled".
func (e *Engine) Run(ctx context.Context, controls []Control) Report {
	start := time.Now()
	results, incomplete := e.Evaluate(ctx, controls)
	report := Aggregate(results, e.opts.Clock().UTC(), incomplete)

	zerolog.Ctx(ctx).Info().
		Int("controls", len(controls)).
		Float64("score", report.Score).
		Bool("incomplete", incomplete).
		Dur("elapsed", time.Since(start)).
		Msg("evaluation finished")

	if e.opts.Observer != nil {
		e.opts.Observer.ObserveRun(report, time.Since(start))
	}
	return report
}

// Evaluate runs controls on a bounded worker pool. Results keep the input
// order. The bool reports whether the run was cut short.
func (e *Engine) Evaluate(ctx context.Context, controls []Control) ([]ControlResult, bool) {
	results := make([]ControlResult, len(controls))
	done := make([]bool, len(controls))

	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)
	for i, c := range controls {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := e.EvaluateControl(ctx, c)
			if err != nil {
				return nil
			}
			results[i] = res
			done[i] = true
			return nil
		})
	}
	_ = g.Wait()

	incomplete := false
	for i, c := range controls {
		if done[i] {
			continue
		}
		incomplete = true
		results[i] = ControlResult{
			Control: c,
			Outcome: Skip(ErrCancelled.Error()),
			Checks:  []CheckResult{},
		}
	}
	return results, incomplete
}

// EvaluateControl evaluates the checks of one control in order. It returns
// ErrCancelled when ctx ends before the control completes.
func (e *Engine) EvaluateControl(ctx context.Context, c Control) (ControlResult, error) {
	logger := zerolog.Ctx(ctx).With().Str("control", c.ID).Logger()

	res := ControlResult{Control: c, Checks: make([]CheckResult, 0, len(c.Checks))}
	for i, check := range c.Checks {
		if ctx.Err() != nil {
			return ControlResult{}, ErrCancelled
		}
		cr, err := e.evaluateCheck(logger.WithContext(ctx), check)
		if err != nil {
			logger.Debug().Int("check", i+1).Msg("check interrupted by cancellation")
			return ControlResult{}, err
		}
		res.Checks = append(res.Checks, cr)
	}
	res.Outcome = rollUp(res.Checks)

	logger.Debug().Str("outcome", string(res.Outcome.Kind)).Float64("impact", c.Impact).Msg("control evaluated")
	if e.opts.Observer != nil {
		e.opts.Observer.ObserveControl(res)
	}
	return res, nil
}

func (e *Engine) evaluateCheck(ctx context.Context, check Check) (cr CheckResult, err error) {
	logger := zerolog.Ctx(ctx)
	state := statePending
	transition := func(next checkState) {
		logger.Trace().Str("check", check.Label()).Str("from", string(state)).Str("to", string(next)).Msg("check state")
		state = next
	}

	cr = CheckResult{Describe: check.Describe}
	if check.IsSkip() {
		transition(stateSkipped)
		cr.Outcome, cr.Detail = OutcomeSkip, check.Skip
		return cr, nil
	}

	var kind QueryKind
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Str("kind", string(kind)).Msg("check panicked")
			cr = CheckResult{Describe: check.Describe, Outcome: OutcomeError, Detail: fmt.Sprintf("internal error: %v", r)}
			err = nil
		}
	}()
	if check.Resource == nil || check.Assert == nil {
		transition(stateDone)
		cr.Outcome, cr.Detail = OutcomeError, "check has neither skip nor resource and assert"
		return cr, nil
	}
	kind = check.Resource.Kind

	resolver, ok := e.resolvers[kind]
	if !ok {
		transition(stateDone)
		cr.Outcome, cr.Detail = OutcomeError, fmt.Sprintf("no resolver registered for %s", kind)
		return cr, nil
	}

	transition(stateResolving)
	instances, rerr := resolver.Resolve(ctx, *check.Resource)
	if rerr != nil {
		if ctx.Err() != nil {
			return CheckResult{}, ErrCancelled
		}
		transition(stateDone)
		var resErr *ResolutionError
		if !errors.As(rerr, &resErr) {
			rerr = &ResolutionError{Kind: kind, Err: rerr}
		}
		logger.Warn().Err(rerr).Str("kind", string(kind)).Msg("resolution failed")
		if e.opts.Observer != nil {
			e.opts.Observer.ObserveResolutionError(kind)
		}
		cr.Outcome = OutcomeError
		if errors.Is(rerr, ErrTimeout) {
			cr.Detail = ErrTimeout.Error()
		} else {
			cr.Detail = rerr.Error()
		}
		return cr, nil
	}

	if len(instances) == 0 {
		transition(stateDone)
		if check.Resource.Require || e.opts.RequireInstances[kind] {
			cr.Outcome, cr.Detail = OutcomeFail, fmt.Sprintf("no matching %s resources", kind)
		} else {
			cr.Outcome = OutcomePass
		}
		return cr, nil
	}

	transition(stateMatching)
	cr.Instances = make([]InstanceResult, 0, len(instances))
	for _, inst := range instances {
		o := Match(inst, *check.Assert)
		cr.Instances = append(cr.Instances, InstanceResult{ID: inst.ID, Outcome: o.Kind, Detail: o.Detail})
	}
	folded := foldInstances(cr.Instances)
	cr.Outcome, cr.Detail = folded.Kind, folded.Detail
	transition(stateDone)
	return cr, nil
}
