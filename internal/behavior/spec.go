package behavior

import (
	"context"
	"sort"

	"github.com/roach88/bip/internal/ir"
)

// GuardFunc evaluates a guard over named data values. The map holds the
// component's local values overlaid with any data-in the guard declares.
type GuardFunc func(data map[string]any) (bool, error)

// ActionFunc is the component logic run when a transition fires. The map
// holds the component's local values overlaid with the transition's data-in.
type ActionFunc func(ctx context.Context, data map[string]any) error

// DataFunc produces the current value of a data-out.
type DataFunc func() any

// Transition moves the component from Source to Target through Port.
// An empty Port declares an internal transition.
type Transition struct {
	Port   string
	Source string
	Target string

	// Guard is a guard expression over guard names, e.g. "ready & !busy".
	// Empty means unguarded.
	Guard string

	// DataIn names the data consumed from other components when firing.
	DataIn []string

	Action ActionFunc

	kind  ir.PortKind
	guard guardExpr
}

// Kind returns the kind of the transition's port.
func (t Transition) Kind() ir.PortKind {
	return t.kind
}

// Guard is a named predicate usable in transition guard expressions.
type Guard struct {
	Name string

	// DataIn names data the guard reads from other components. A guard with
	// data-in cannot be evaluated before data resolution and is deferred.
	DataIn []string

	Eval GuardFunc
}

// DataOut declares a datum other components may read.
type DataOut struct {
	Name string
	Type string

	// Access lists the ports allowed to read the datum. Entries naming the
	// owner's own type refer to the port the owner participates through.
	Access []ir.PortRef

	// AnyPort lifts the access restriction.
	AnyPort bool

	// Get returns the current value. When nil the value is read from the
	// instance's local data values.
	Get DataFunc
}

// Spec is the immutable behavior descriptor of one component type.
type Spec struct {
	typ         string
	initial     string
	states      []string
	ports       map[string]ir.Port
	portOrder   []string
	transitions []Transition
	guards      map[string]Guard
	data        map[string]DataOut
	dataOrder   []string
	values      map[string]any
}

// Type returns the component type name.
func (s *Spec) Type() string { return s.typ }

// Initial returns the initial state.
func (s *Spec) Initial() string { return s.initial }

// States returns the sorted state labels.
func (s *Spec) States() []string {
	out := make([]string, len(s.states))
	copy(out, s.states)
	return out
}

// HasState reports whether state is declared.
func (s *Spec) HasState(state string) bool {
	i := sort.SearchStrings(s.states, state)
	return i < len(s.states) && s.states[i] == state
}

// Ports returns the declared ports in declaration order.
func (s *Spec) Ports() []ir.Port {
	out := make([]ir.Port, 0, len(s.portOrder))
	for _, id := range s.portOrder {
		out = append(out, s.ports[id])
	}
	return out
}

// Port looks up a port by id.
func (s *Spec) Port(id string) (ir.Port, bool) {
	p, ok := s.ports[id]
	return p, ok
}

// Transitions returns a copy of the transitions in declaration order.
func (s *Spec) Transitions() []Transition {
	out := make([]Transition, len(s.transitions))
	copy(out, s.transitions)
	return out
}

// Transition returns the transition at index i.
func (s *Spec) Transition(i int) Transition {
	return s.transitions[i]
}

// DataOut returns the data-out declarations in declaration order.
func (s *Spec) DataOut() []DataOut {
	out := make([]DataOut, 0, len(s.dataOrder))
	for _, name := range s.dataOrder {
		out = append(out, s.data[name])
	}
	return out
}

// DataNames returns the data-out names in declaration order.
func (s *Spec) DataNames() []string {
	out := make([]string, len(s.dataOrder))
	copy(out, s.dataOrder)
	return out
}

// EnabledPorts returns the ports structurally enabled in state: ports of the
// transitions leaving state. Guards are not applied. Internal transitions are
// not ports and are not included.
func (s *Spec) EnabledPorts(state string) []ir.Port {
	seen := make(map[string]bool)
	var out []ir.Port
	for _, t := range s.transitions {
		if t.Source != state || t.Port == "" || seen[t.Port] {
			continue
		}
		seen[t.Port] = true
		out = append(out, s.ports[t.Port])
	}
	return out
}

// TransitionsFrom returns the indexes of transitions leaving state through
// port, in declaration order. Port "" selects internal transitions.
func (s *Spec) TransitionsFrom(state, port string) []int {
	var out []int
	for i, t := range s.transitions {
		if t.Source == state && t.Port == port {
			out = append(out, i)
		}
	}
	return out
}

// GuardData returns the data-in the transition's guard needs from other
// components, deduplicated in first-use order.
func (s *Spec) GuardData(i int) []string {
	t := s.transitions[i]
	if t.guard == nil {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, name := range t.guard.names(nil) {
		for _, d := range s.guards[name].DataIn {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	return out
}

// Deferred reports whether transition i has a guard that needs data from
// other components.
func (s *Spec) Deferred(i int) bool {
	return len(s.GuardData(i)) > 0
}

// Fingerprint returns a content hash of the declarative part of the spec.
func (s *Spec) Fingerprint() string {
	ports := make([]any, 0, len(s.portOrder))
	for _, p := range s.Ports() {
		ports = append(ports, map[string]any{"id": p.ID, "kind": string(p.Kind)})
	}
	transitions := make([]any, 0, len(s.transitions))
	for _, t := range s.transitions {
		transitions = append(transitions, map[string]any{
			"port":    t.Port,
			"source":  t.Source,
			"target":  t.Target,
			"guard":   t.Guard,
			"data_in": append([]string{}, t.DataIn...),
		})
	}
	data := make([]any, 0, len(s.dataOrder))
	for _, d := range s.DataOut() {
		access := make([]string, len(d.Access))
		for i, r := range d.Access {
			access[i] = r.String()
		}
		data = append(data, map[string]any{"name": d.Name, "type": d.Type, "access": access, "any": d.AnyPort})
	}
	// Only strings, bools and nested containers: marshal cannot fail.
	fp, _ := ir.Fingerprint(ir.DomainBehavior, map[string]any{
		"type":        s.typ,
		"initial":     s.initial,
		"states":      s.States(),
		"ports":       ports,
		"transitions": transitions,
		"data":        data,
	})
	return fp
}
