package ir

import (
	"fmt"
	"sort"
	"strings"
)

// PortKind classifies how a port is driven.
type PortKind string

const (
	// PortEnforceable ports fire only when the engine selects them in a round.
	PortEnforceable PortKind = "enforceable"

	// PortSpontaneous ports fire when the environment informs the executor.
	PortSpontaneous PortKind = "spontaneous"

	// PortInternal marks transitions the component takes on its own.
	PortInternal PortKind = "internal"
)

// ValidPortKinds defines allowed port kinds.
var ValidPortKinds = map[PortKind]bool{
	PortEnforceable: true,
	PortSpontaneous: true,
	PortInternal:    true,
}

// ParsePortKind converts a textual port kind.
func ParsePortKind(s string) (PortKind, error) {
	k := PortKind(strings.ToLower(strings.TrimSpace(s)))
	if !ValidPortKinds[k] {
		return "", fmt.Errorf("unknown port kind %q", s)
	}
	return k, nil
}

// Port is a synchronization point declared by a component type.
type Port struct {
	ID   string   `json:"id"`
	Kind PortKind `json:"kind"`
	Spec string   `json:"spec"`                // owning component type
	Tag  string   `json:"spec_type,omitempty"` // optional port type tag
}

// Ref returns the glue-level reference of the port.
func (p Port) Ref() PortRef {
	return PortRef{Spec: p.Spec, Port: p.ID}
}

// PortRef names a port of a component type. Glue constraints and priority
// patterns are written in terms of PortRefs.
type PortRef struct {
	Spec string `json:"spec"`
	Port string `json:"port"`
}

// String renders the reference as "Spec.port".
func (r PortRef) String() string {
	if r.Spec == "" {
		return r.Port
	}
	return r.Spec + "." + r.Port
}

// IsZero reports whether the reference is empty.
func (r PortRef) IsZero() bool {
	return r.Spec == "" && r.Port == ""
}

// ParsePortRef parses "Spec.port". Component types may themselves contain
// dots, so the port is taken after the last dot.
func ParsePortRef(s string) (PortRef, error) {
	s = strings.TrimSpace(s)
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return PortRef{}, fmt.Errorf("invalid port reference %q: expected Spec.port", s)
	}
	return PortRef{Spec: s[:i], Port: s[i+1:]}, nil
}

// MustPortRef is like ParsePortRef but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustPortRef(s string) PortRef {
	r, err := ParsePortRef(s)
	if err != nil {
		panic(err)
	}
	return r
}

// ComparePortRefs orders references by Spec, then Port.
func ComparePortRefs(a, b PortRef) int {
	if c := strings.Compare(a.Spec, b.Spec); c != 0 {
		return c
	}
	return strings.Compare(a.Port, b.Port)
}

// SortPortRefs sorts refs in place and returns them.
func SortPortRefs(refs []PortRef) []PortRef {
	sort.Slice(refs, func(i, j int) bool { return ComparePortRefs(refs[i], refs[j]) < 0 })
	return refs
}

// DataRef names a datum of a component type (used by data wires).
type DataRef struct {
	Spec string `json:"spec"`
	Name string `json:"name"`
}

// String renders the reference as "Spec.name".
func (r DataRef) String() string {
	return r.Spec + "." + r.Name
}

// ParseDataRef parses "Spec.name".
func ParseDataRef(s string) (DataRef, error) {
	ref, err := ParsePortRef(s)
	if err != nil {
		return DataRef{}, fmt.Errorf("invalid data reference %q: expected Spec.name", s)
	}
	return DataRef{Spec: ref.Spec, Name: ref.Port}, nil
}

// ComponentPort is a port of one registered component instance.
type ComponentPort struct {
	Component string `json:"component"` // instance id
	Spec      string `json:"spec"`      // component type
	Port      string `json:"port"`
}

// Ref drops the instance and returns the glue-level reference.
func (cp ComponentPort) Ref() PortRef {
	return PortRef{Spec: cp.Spec, Port: cp.Port}
}

// ID renders the instance-level port id "component.port". This is the id
// used for deterministic ordering and tie-breaking.
func (cp ComponentPort) ID() string {
	return cp.Component + "." + cp.Port
}

// Offer is one port a component reports as ready in a round.
type Offer struct {
	Port string `json:"port"`

	// DataIn lists the data the selected transition consumes.
	DataIn []string `json:"data_in,omitempty"`

	// Deferred is set when the transition guard depends on data from other
	// components and must be re-checked after data resolution.
	Deferred bool `json:"deferred,omitempty"`
}

// Report is an executor's answer to a step request.
type Report struct {
	Component string   `json:"component"`
	Spec      string   `json:"spec"`
	State     string   `json:"state"`
	Offers    []Offer  `json:"offers"`
	DataOut   []string `json:"data_out,omitempty"`

	// Faults are round-local failures met while computing the offers, such
	// as guards that failed to evaluate.
	Faults []error `json:"-"`
}

// Offer returns the offer for port, if present.
func (r Report) Offer(port string) (Offer, bool) {
	for _, o := range r.Offers {
		if o.Port == port {
			return o, true
		}
	}
	return Offer{}, false
}

// ProvidesData reports whether the component exposes a datum named name.
func (r Report) ProvidesData(name string) bool {
	for _, d := range r.DataOut {
		if d == name {
			return true
		}
	}
	return false
}

// Interaction is a set of ports, one per participating component, that fire
// together in one round.
type Interaction struct {
	Participants []ComponentPort `json:"participants"`
	Priority     int             `json:"priority"`
}

// NewInteraction builds an interaction with participants sorted by id.
func NewInteraction(priority int, participants ...ComponentPort) Interaction {
	ps := make([]ComponentPort, len(participants))
	copy(ps, participants)
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID() < ps[j].ID() })
	return Interaction{Participants: ps, Priority: priority}
}

// PortIDs returns the sorted instance-level port ids.
func (in Interaction) PortIDs() []string {
	ids := make([]string, len(in.Participants))
	for i, p := range in.Participants {
		ids[i] = p.ID()
	}
	sort.Strings(ids)
	return ids
}

// Key returns a stable identity for the interaction within a round.
func (in Interaction) Key() string {
	return strings.Join(in.PortIDs(), ",")
}

// Refs returns the glue-level references of all participants, sorted.
func (in Interaction) Refs() []PortRef {
	refs := make([]PortRef, len(in.Participants))
	for i, p := range in.Participants {
		refs[i] = p.Ref()
	}
	return SortPortRefs(refs)
}

// Involves reports whether the component participates.
func (in Interaction) Involves(component string) bool {
	for _, p := range in.Participants {
		if p.Component == component {
			return true
		}
	}
	return false
}

// Components returns the participating instance ids.
func (in Interaction) Components() []string {
	out := make([]string, len(in.Participants))
	for i, p := range in.Participants {
		out[i] = p.Component
	}
	return out
}
