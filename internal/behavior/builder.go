package behavior

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/bip/internal/ir"
)

// Builder gathers the declarations of one component type and validates them
// in Build. Builder methods never fail; every problem is reported by Build.
//
// Example:
//
//	spec, err := behavior.NewBuilder("Feeder").
//		Initial("zero").
//		Port("giveY", ir.PortEnforceable).
//		Port("returnY", ir.PortEnforceable).
//		Transition(behavior.Transition{Port: "giveY", Source: "zero", Target: "oneY"}).
//		Transition(behavior.Transition{Port: "returnY", Source: "oneY", Target: "zero"}).
//		Build()
type Builder struct {
	typ         string
	initial     string
	states      []string
	ports       []ir.Port
	transitions []Transition
	guards      []Guard
	data        []DataOut
	values      map[string]any
}

// NewBuilder starts a behavior for component type typ.
func NewBuilder(typ string) *Builder {
	return &Builder{typ: typ, values: make(map[string]any)}
}

// Initial sets the initial state.
func (b *Builder) Initial(state string) *Builder {
	b.initial = state
	return b
}

// States declares states. States referenced by transitions are declared
// implicitly.
func (b *Builder) States(states ...string) *Builder {
	b.states = append(b.states, states...)
	return b
}

// Port declares a port of the given kind.
func (b *Builder) Port(id string, kind ir.PortKind) *Builder {
	b.ports = append(b.ports, ir.Port{ID: id, Kind: kind, Spec: b.typ})
	return b
}

// TaggedPort declares a port carrying a port type tag.
func (b *Builder) TaggedPort(id string, kind ir.PortKind, tag string) *Builder {
	b.ports = append(b.ports, ir.Port{ID: id, Kind: kind, Spec: b.typ, Tag: tag})
	return b
}

// Transition declares a transition.
func (b *Builder) Transition(t Transition) *Builder {
	b.transitions = append(b.transitions, t)
	return b
}

// Guard declares a named guard.
func (b *Builder) Guard(g Guard) *Builder {
	b.guards = append(b.guards, g)
	return b
}

// Data declares a data-out.
func (b *Builder) Data(d DataOut) *Builder {
	b.data = append(b.data, d)
	return b
}

// Value sets the initial local value of a named datum.
func (b *Builder) Value(name string, v any) *Builder {
	b.values[name] = v
	return b
}

// Build validates the declarations and returns the immutable Spec.
// All problems are returned together, joined, each a ConfigurationError.
func (b *Builder) Build() (*Spec, error) {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, ir.Errorf(ir.ErrCodeConfiguration, "%s: "+format, append([]any{b.typ}, args...)...))
	}

	if strings.TrimSpace(b.typ) == "" {
		b.typ = "<unnamed>"
		fail("component type cannot be empty")
	}
	if b.initial == "" {
		fail("initial state cannot be empty")
	}
	if len(b.ports) == 0 {
		fail("at least one port is required")
	}
	if len(b.transitions) == 0 {
		fail("at least one transition is required")
	}

	spec := &Spec{
		typ:     b.typ,
		initial: b.initial,
		ports:   make(map[string]ir.Port, len(b.ports)),
		guards:  make(map[string]Guard, len(b.guards)),
		data:    make(map[string]DataOut, len(b.data)),
		values:  make(map[string]any, len(b.values)),
	}

	for _, p := range b.ports {
		if p.ID == "" {
			fail("port id cannot be empty")
			continue
		}
		if !ir.ValidPortKinds[p.Kind] {
			fail("port %s has invalid kind %q", p.ID, p.Kind)
			continue
		}
		if _, dup := spec.ports[p.ID]; dup {
			fail("port with id %s has been already defined", p.ID)
			continue
		}
		p.Spec = b.typ
		spec.ports[p.ID] = p
		spec.portOrder = append(spec.portOrder, p.ID)
	}

	for _, g := range b.guards {
		if g.Name == "" {
			fail("guard name cannot be empty")
			continue
		}
		if g.Eval == nil {
			fail("guard %s has no evaluation function", g.Name)
			continue
		}
		if _, dup := spec.guards[g.Name]; dup {
			fail("guard %s has been already defined", g.Name)
			continue
		}
		spec.guards[g.Name] = g
	}

	states := make(map[string]bool)
	for _, s := range b.states {
		if s != "" {
			states[s] = true
		}
	}
	if b.initial != "" {
		states[b.initial] = true
	}

	for i, t := range b.transitions {
		label := t.Port
		if label == "" {
			label = "<internal>"
		}
		if t.Source == "" || t.Target == "" {
			fail("transition %d (%s) must name source and target states", i, label)
			continue
		}
		states[t.Source] = true
		states[t.Target] = true

		if t.Port == "" {
			t.kind = ir.PortInternal
		} else {
			p, ok := spec.ports[t.Port]
			if !ok {
				fail("transition %s does not correspond to any port", t.Port)
				continue
			}
			t.kind = p.Kind
		}

		expr, err := parseGuard(t.Guard)
		if err != nil {
			fail("transition %s: %v", label, err)
			continue
		}
		if expr != nil {
			for _, name := range expr.names(nil) {
				if _, ok := spec.guards[name]; !ok {
					fail("transition %s references undefined guard %s", label, name)
				}
			}
		}
		t.guard = expr
		t.DataIn = append([]string(nil), t.DataIn...)
		spec.transitions = append(spec.transitions, t)
	}

	for _, d := range b.data {
		if d.Name == "" {
			fail("data name cannot be empty")
			continue
		}
		if _, dup := spec.data[d.Name]; dup {
			fail("data %s has been already defined", d.Name)
			continue
		}
		access := make([]ir.PortRef, 0, len(d.Access))
		for _, r := range d.Access {
			if r.Spec == "" {
				r.Spec = b.typ
			}
			if r.Spec == b.typ {
				if _, ok := spec.ports[r.Port]; !ok {
					fail("data %s allows unknown own port %s", d.Name, r.Port)
					continue
				}
			}
			access = append(access, r)
		}
		d.Access = access
		spec.data[d.Name] = d
		spec.dataOrder = append(spec.dataOrder, d.Name)
	}

	for name, v := range b.values {
		spec.values[name] = v
	}

	for s := range states {
		spec.states = append(spec.states, s)
	}
	sort.Strings(spec.states)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return spec, nil
}

// MustBuild is like Build but panics on error.
// Use only in tests or when declarations are known to be valid.
func (b *Builder) MustBuild() *Spec {
	spec, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("behavior: %v", err))
	}
	return spec
}
