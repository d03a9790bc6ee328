package behavior

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/roach88/bip/internal/ir"
)

// Descriptor is the declarative form of a component type, as produced by a
// spec loader. Code is attached through Bindings when the descriptor is built.
type Descriptor struct {
	Type        string           `json:"type"`
	Initial     string           `json:"initial"`
	States      []string         `json:"states,omitempty"`
	Ports       []PortDecl       `json:"ports"`
	Transitions []TransitionDecl `json:"transitions"`
	Guards      []GuardDecl      `json:"guards,omitempty"`
	Data        []DataDecl       `json:"data,omitempty"`
}

// PortDecl declares a port.
type PortDecl struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Tag  string `json:"spec_type,omitempty"`
}

// TransitionDecl declares a transition. Action names a bound ActionFunc; Set
// assigns local values when the transition fires.
type TransitionDecl struct {
	Port   string         `json:"port,omitempty"`
	Source string         `json:"from"`
	Target string         `json:"to"`
	Guard  string         `json:"guard,omitempty"`
	DataIn []string       `json:"data_in,omitempty"`
	Action string         `json:"action,omitempty"`
	Set    map[string]any `json:"set,omitempty"`
}

// GuardDecl declares a named guard.
type GuardDecl struct {
	Name   string   `json:"name"`
	DataIn []string `json:"data_in,omitempty"`
}

// DataDecl declares a data-out. Access entries are "port" for one of the
// component's own ports, "Type.port" for a port of another type, or "*".
type DataDecl struct {
	Name   string   `json:"name"`
	Type   string   `json:"type,omitempty"`
	Access []string `json:"access,omitempty"`
	Value  any      `json:"value,omitempty"`
}

// Bindings attaches code to a descriptor by name.
type Bindings struct {
	Guards  map[string]GuardFunc
	Actions map[string]ActionFunc
	Data    map[string]DataFunc
}

// Build turns the descriptor into a Spec. A guard with no bound function
// reads a boolean local value of the same name. Naming an action that is not
// bound is a configuration error.
func (d Descriptor) Build(bind Bindings) (*Spec, error) {
	b := NewBuilder(d.Type).Initial(d.Initial).States(d.States...)
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, ir.Errorf(ir.ErrCodeConfiguration, "%s: "+format, append([]any{d.Type}, args...)...))
	}

	for _, p := range d.Ports {
		kind := ir.PortEnforceable
		if p.Kind != "" {
			k, err := ir.ParsePortKind(p.Kind)
			if err != nil {
				fail("port %s: %v", p.ID, err)
				continue
			}
			kind = k
		}
		b.TaggedPort(p.ID, kind, p.Tag)
	}

	for _, g := range d.Guards {
		eval := bind.Guards[g.Name]
		if eval == nil {
			eval = valueGuard(g.Name)
		}
		b.Guard(Guard{Name: g.Name, DataIn: g.DataIn, Eval: eval})
	}

	for _, t := range d.Transitions {
		tr := Transition{Port: t.Port, Source: t.Source, Target: t.Target, Guard: t.Guard, DataIn: t.DataIn}
		var action ActionFunc
		if t.Action != "" {
			action = bind.Actions[t.Action]
			if action == nil {
				fail("transition %s references unbound action %s", t.Port, t.Action)
			}
		}
		tr.Action = withAssignments(action, t.Set)
		b.Transition(tr)
	}

	for _, dd := range d.Data {
		out := DataOut{Name: dd.Name, Type: dd.Type, Get: bind.Data[dd.Name]}
		for _, a := range dd.Access {
			a = strings.TrimSpace(a)
			switch {
			case a == "*":
				out.AnyPort = true
			case strings.Contains(a, "."):
				ref, err := ir.ParsePortRef(a)
				if err != nil {
					fail("data %s: %v", dd.Name, err)
					continue
				}
				out.Access = append(out.Access, ref)
			default:
				out.Access = append(out.Access, ir.PortRef{Spec: d.Type, Port: a})
			}
		}
		b.Data(out)
		if dd.Value != nil {
			b.Value(dd.Name, dd.Value)
		}
	}

	spec, err := b.Build()
	if err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return spec, nil
}

// valueGuard evaluates to the boolean local value named name. A missing value
// is false.
func valueGuard(name string) GuardFunc {
	return func(data map[string]any) (bool, error) {
		v, ok := data[name]
		if !ok || v == nil {
			return false, nil
		}
		bv, ok := v.(bool)
		if !ok {
			return false, fmt.Errorf("value %q is %T, not bool", name, v)
		}
		return bv, nil
	}
}

// withAssignments wraps action so that set is written to the local values
// after it succeeds.
func withAssignments(action ActionFunc, set map[string]any) ActionFunc {
	if len(set) == 0 {
		return action
	}
	set = maps.Clone(set)
	return func(ctx context.Context, data map[string]any) error {
		if action != nil {
			if err := action(ctx, data); err != nil {
				return err
			}
		}
		maps.Copy(data, set)
		return nil
	}
}
