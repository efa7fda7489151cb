package engine

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Instance is one resolved piece of live state: a nested mapping, raw text,
// or nil for an absent value. Instances are never mutated after resolution.
type Instance struct {
	ID    string
	Value any
}

// Match evaluates a predicate against an instance. It never returns Skip.
func Match(inst Instance, p Predicate) Outcome {
	value, err := lookup(inst.Value, p.Path, p.AllowMissing)
	if err != nil {
		return Errored(err.Error())
	}
	where := formatPath(p.Path)

	switch p.Op {
	case OpEquals:
		if valuesEqual(value, p.Expected) {
			return Pass()
		}
		return Fail(fmt.Sprintf("%s is %s, expected %s", where, show(value), show(p.Expected)))
	case OpNotEquals:
		if !valuesEqual(value, p.Expected) {
			return Pass()
		}
		return Fail(fmt.Sprintf("%s must not be %s", where, show(p.Expected)))
	case OpNotNil:
		if value != nil {
			return Pass()
		}
		return Fail(fmt.Sprintf("%s is nil", where))
	case OpIsEmpty:
		if isEmpty(value) {
			return Pass()
		}
		return Fail(fmt.Sprintf("%s is not empty: %s", where, excerpt(show(value))))
	case OpMatches, OpNotMatches:
		return matchPattern(value, where, p)
	}
	return Errored(fmt.Sprintf("unknown assertion op %q", p.Op))
}

func matchPattern(value any, where string, p Predicate) Outcome {
	re, except := p.pattern, p.except
	if re == nil {
		compiled := p
		if err := compiled.compile(); err != nil {
			return Errored(err.Error())
		}
		re, except = compiled.pattern, compiled.except
	}

	hit := ""
	if value != nil {
		hit = screen(stringify(value), re, except)
	}
	found := hit != ""

	if p.Op == OpMatches {
		if found {
			return Pass()
		}
		return Fail(fmt.Sprintf("%s does not match /%s/", where, re))
	}
	if !found {
		return Pass()
	}
	return Fail(fmt.Sprintf("%s matches /%s/: %s", where, re, excerpt(hit)))
}

// screen returns the first matching text, or "" when nothing matches.
// With an except pattern the text is screened line by line.
func screen(text string, re, except *regexp.Regexp) string {
	if except == nil {
		return re.FindString(text)
	}
	for _, line := range strings.Split(text, "\n") {
		if re.MatchString(line) && !except.MatchString(line) {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

// lookup walks path through nested maps and slices.
func lookup(value any, path []string, allowMissing bool) (any, error) {
	cur := value
	for i, key := range path {
		last := i == len(path)-1
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[key]
			if !ok {
				if last && allowMissing {
					return nil, nil
				}
				return nil, &FieldNotFoundError{Path: path[:i+1]}
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(node) {
				if last && allowMissing {
					return nil, nil
				}
				return nil, &FieldNotFoundError{Path: path[:i+1]}
			}
			cur = node[idx]
		default:
			return nil, &FieldNotFoundError{Path: path[:i+1]}
		}
	}
	return cur, nil
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return sa == sb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func show(v any) string {
	switch t := v.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(t)
	}
	return fmt.Sprint(v)
}

func excerpt(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
