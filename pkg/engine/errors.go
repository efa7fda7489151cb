package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by Registry.Get for an unknown control id.
	ErrNotFound = errors.New("control not found")

	// ErrTimeout marks a subprocess that exceeded its time bound.
	ErrTimeout = errors.New("timeout")

	// ErrCancelled marks work abandoned because the run was cancelled.
	ErrCancelled = errors.New("cancelled")
)

// DefinitionError reports a malformed catalog entry. It is fatal at load time.
type DefinitionError struct {
	ControlID string
	Source    string
	Reason    string
}

func (e *DefinitionError) Error() string {
	var sb strings.Builder
	sb.WriteString("invalid control definition")
	if e.Source != "" {
		sb.WriteString(" in " + e.Source)
	}
	if e.ControlID != "" {
		sb.WriteString(fmt.Sprintf(" %q", e.ControlID))
	}
	sb.WriteString(": " + e.Reason)
	return sb.String()
}

// ResolutionError wraps a resolver's failure to observe state.
type ResolutionError struct {
	Kind QueryKind
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Kind, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// FieldNotFoundError reports a predicate path missing from a resolved instance.
type FieldNotFoundError struct {
	Path []string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("field not found: %s", formatPath(e.Path))
}

// LaunchError reports a subprocess that could not be started.
type LaunchError struct {
	Argv []string
	Err  error
}

func (e *LaunchError) Error() string {
	name := ""
	if len(e.Argv) > 0 {
		name = e.Argv[0]
	}
	return fmt.Sprintf("launch %q: %v", name, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

func formatPath(path []string) string {
	if len(path) == 0 {
		return "<value>"
	}
	return strings.Join(path, ".")
}
