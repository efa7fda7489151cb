package engine

import "strings"

// OutcomeKind is the verdict of a check, instance, or control.
type OutcomeKind string

const (
	OutcomePass  OutcomeKind = "pass"
	OutcomeFail  OutcomeKind = "fail"
	OutcomeSkip  OutcomeKind = "skip"
	OutcomeError OutcomeKind = "error"
)

// OutcomeKinds lists every kind in report order.
var OutcomeKinds = []OutcomeKind{OutcomePass, OutcomeFail, OutcomeSkip, OutcomeError}

// Outcome pairs a verdict with its explanation.
type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Detail string      `json:"detail,omitempty"`
}

func Pass() Outcome { return Outcome{Kind: OutcomePass} }

func Fail(detail string) Outcome { return Outcome{Kind: OutcomeFail, Detail: detail} }

func Skip(reason string) Outcome { return Outcome{Kind: OutcomeSkip, Detail: reason} }

func Errored(detail string) Outcome { return Outcome{Kind: OutcomeError, Detail: detail} }

// foldInstances combines per-instance outcomes into a check outcome:
// any failure wins, then any error, else pass.
func foldInstances(results []InstanceResult) Outcome {
	var fails, errs []string
	for _, r := range results {
		switch r.Outcome {
		case OutcomeFail:
			fails = append(fails, qualify(r.ID, r.Detail))
		case OutcomeError:
			errs = append(errs, qualify(r.ID, r.Detail))
		}
	}
	switch {
	case len(fails) > 0:
		return Fail(strings.Join(fails, "; "))
	case len(errs) > 0:
		return Errored(strings.Join(errs, "; "))
	}
	return Pass()
}

// rollUp derives a control outcome from its check outcomes.
func rollUp(checks []CheckResult) Outcome {
	var fails, errs, skips []string
	passed := false
	for _, c := range checks {
		switch c.Outcome {
		case OutcomeFail:
			fails = append(fails, c.Detail)
		case OutcomeError:
			errs = append(errs, c.Detail)
		case OutcomeSkip:
			skips = appendUnique(skips, c.Detail)
		case OutcomePass:
			passed = true
		}
	}
	switch {
	case len(fails) > 0:
		return Fail(strings.Join(fails, "; "))
	case len(errs) > 0:
		return Errored(strings.Join(errs, "; "))
	case passed:
		return Pass()
	}
	return Skip(strings.Join(skips, "; "))
}

func qualify(id, detail string) string {
	if id == "" {
		return detail
	}
	return id + ": " + detail
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
