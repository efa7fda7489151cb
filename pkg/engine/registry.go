package engine

import (
	"fmt"
	"math"
)

// Registry holds the ordered, immutable control catalog.
type Registry struct {
	controls []Control
	index    map[string]int
}

// Load validates definitions and builds a registry. Any malformed entry
// aborts the load with a *DefinitionError.
func Load(defs []Control) (*Registry, error) {
	r := &Registry{
		controls: make([]Control, 0, len(defs)),
		index:    make(map[string]int, len(defs)),
	}
	for _, def := range defs {
		if err := r.add(def, ""); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(def Control, source string) error {
	fail := func(format string, args ...any) error {
		return &DefinitionError{ControlID: def.ID, Source: source, Reason: fmt.Sprintf(format, args...)}
	}

	if def.ID == "" {
		return fail("id is missing")
	}
	if _, dup := r.index[def.ID]; dup {
		return fail("duplicate id")
	}
	if math.IsNaN(def.Impact) || def.Impact < 0 || def.Impact > 1 {
		return fail("impact %v is outside [0.0, 1.0]", def.Impact)
	}
	if len(def.Checks) == 0 {
		return fail("no checks defined")
	}

	def = def.clone()
	for i := range def.Checks {
		if err := def.Checks[i].validate(); err != nil {
			return fail("check #%d: %v", i+1, err)
		}
	}

	r.index[def.ID] = len(r.controls)
	r.controls = append(r.controls, def)
	return nil
}

// Get returns a copy of the control with the given id.
func (r *Registry) Get(id string) (Control, error) {
	i, ok := r.index[id]
	if !ok {
		return Control{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.controls[i].clone(), nil
}

// All returns copies of the controls in definition order.
func (r *Registry) All() []Control {
	out := make([]Control, len(r.controls))
	for i, c := range r.controls {
		out[i] = c.clone()
	}
	return out
}

// Len returns the number of controls.
func (r *Registry) Len() int {
	return len(r.controls)
}

// Select returns the controls with the given ids, in catalog order.
// An empty id list selects everything.
func (r *Registry) Select(ids []string) ([]Control, error) {
	if len(ids) == 0 {
		return r.All(), nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := r.index[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		want[id] = true
	}
	var out []Control
	for _, c := range r.controls {
		if want[c.ID] {
			out = append(out, c.clone())
		}
	}
	return out, nil
}
