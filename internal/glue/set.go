package glue

import (
	"sort"

	"github.com/roach88/bip/internal/ir"
)

// PortSet is a sorted collection of port references. It may repeat a
// reference: a cause naming a port twice needs two instances of its type.
type PortSet []ir.PortRef

func newPortSet(refs []ir.PortRef) PortSet {
	out := make(PortSet, len(refs))
	copy(out, refs)
	ir.SortPortRefs(out)
	return out
}

// Strings renders the set as sorted "Spec.port" strings.
func (s PortSet) Strings() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = r.String()
	}
	return out
}

// Pattern is a named interaction pattern with a priority weight. An
// interaction matches the pattern when every pattern port takes part in it.
type Pattern struct {
	Name   string  `json:"name"`
	Ports  PortSet `json:"ports"`
	Weight int     `json:"weight"`
}

// Wire routes data-out From to data-in To.
type Wire struct {
	From ir.DataRef `json:"from"`
	To   ir.DataRef `json:"to"`
}

// Set is an immutable glue constraint set.
//
// A port with no requires entry is self-sufficient. A port with no accepts
// entry accepts only the empty set of co-participants, so it can fire only
// alone.
type Set struct {
	requires map[ir.PortRef][]PortSet
	accepts  map[ir.PortRef][]PortSet
	patterns []Pattern
	weights  map[string]int // pattern name -> effective weight
	prefer   [][2]string
	wires    []Wire
	related  map[ir.PortRef]map[ir.PortRef]bool
	ports    []ir.PortRef
}

// Empty returns a glue set with no constraints.
func Empty() *Set {
	s, _ := NewBuilder().Build()
	return s
}

// Requires returns the cause sets of p.
func (s *Set) Requires(p ir.PortRef) []PortSet { return s.requires[p] }

// Accepts returns the accept sets of p.
func (s *Set) Accepts(p ir.PortRef) []PortSet { return s.accepts[p] }

// Ports returns every port the glue mentions, sorted.
func (s *Set) Ports() []ir.PortRef {
	out := make([]ir.PortRef, len(s.ports))
	copy(out, s.ports)
	return out
}

// Patterns returns the priority patterns with their effective weights.
func (s *Set) Patterns() []Pattern {
	out := make([]Pattern, len(s.patterns))
	for i, p := range s.patterns {
		p.Weight = s.weights[p.Name]
		out[i] = p
	}
	return out
}

// Wires returns the data wires.
func (s *Set) Wires() []Wire {
	out := make([]Wire, len(s.wires))
	copy(out, s.wires)
	return out
}

// WiresTo returns the wires delivering into data-in to.
func (s *Set) WiresTo(to ir.DataRef) []Wire {
	var out []Wire
	for _, w := range s.wires {
		if w.To == to {
			out = append(out, w)
		}
	}
	return out
}

// IsValid reports whether the candidate may fire as one interaction.
// For every port p in the candidate, some cause set of p must be contained in
// the candidate, and the candidate without p must be contained in some accept
// set of p.
func (s *Set) IsValid(candidate []ir.PortRef) bool {
	if len(candidate) == 0 {
		return false
	}
	for i, p := range candidate {
		rest := without(candidate, i)
		if !s.RequiresSatisfied(p, rest) || !s.AcceptsAll(p, rest) {
			return false
		}
	}
	return true
}

// RequiresSatisfied reports whether some cause set of p is contained in p
// plus its co-participants, counting repeated references. A cause naming p
// is met by p itself once.
func (s *Set) RequiresSatisfied(p ir.PortRef, others []ir.PortRef) bool {
	causes, ok := s.requires[p]
	if !ok {
		return true
	}
	have := counts(others)
	for _, cause := range causes {
		if containsMulti(have, cause.without(p)) {
			return true
		}
	}
	return false
}

// AcceptsAll reports whether every co-participant falls within one accept
// set of p.
func (s *Set) AcceptsAll(p ir.PortRef, others []ir.PortRef) bool {
	if len(others) == 0 {
		return true
	}
	for _, acc := range s.accepts[p] {
		if containsAll(acc, others) {
			return true
		}
	}
	return false
}

// Related reports whether a and b appear together in some requires or
// accepts entry, in either direction.
func (s *Set) Related(a, b ir.PortRef) bool {
	return s.related[a][b]
}

// CanFireAlone reports whether p alone is a valid interaction.
func (s *Set) CanFireAlone(p ir.PortRef) bool {
	return s.RequiresSatisfied(p, nil)
}

// Weight returns the priority of an interaction over refs: the highest
// effective weight of the patterns it matches, or 0.
func (s *Set) Weight(refs []ir.PortRef) int {
	have := counts(refs)
	best := 0
	for _, p := range s.patterns {
		if w := s.weights[p.Name]; w > best && containsMulti(have, p.Ports) {
			best = w
		}
	}
	return best
}

// Partition groups the enabled instance ports into connected components of
// the interaction hypergraph. Ports of one instance are never joined through
// the instance itself; only glue relations connect ports. Each group and the
// list of groups are sorted by port id.
func (s *Set) Partition(enabled []ir.ComponentPort) [][]ir.ComponentPort {
	n := len(enabled)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if enabled[i].Component == enabled[j].Component {
				continue
			}
			if s.Related(enabled[i].Ref(), enabled[j].Ref()) {
				if ri, rj := find(i), find(j); ri != rj {
					parent[ri] = rj
				}
			}
		}
	}

	groups := make(map[int][]ir.ComponentPort)
	for i, cp := range enabled {
		r := find(i)
		groups[r] = append(groups[r], cp)
	}
	out := make([][]ir.ComponentPort, 0, len(groups))
	for _, g := range groups {
		sort.Slice(g, func(i, j int) bool { return g[i].ID() < g[j].ID() })
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0].ID() < out[j][0].ID() })
	return out
}

// Fingerprint returns a content hash of the constraint set.
func (s *Set) Fingerprint() string {
	entries := func(m map[ir.PortRef][]PortSet) map[string]any {
		out := make(map[string]any, len(m))
		for p, sets := range m {
			list := make([]any, len(sets))
			for i, set := range sets {
				list[i] = set.Strings()
			}
			out[p.String()] = list
		}
		return out
	}
	patterns := make([]any, len(s.patterns))
	for i, p := range s.Patterns() {
		patterns[i] = map[string]any{"name": p.Name, "ports": p.Ports.Strings(), "weight": p.Weight}
	}
	wires := make([]any, len(s.wires))
	for i, w := range s.wires {
		wires[i] = map[string]any{"from": w.From.String(), "to": w.To.String()}
	}
	// Strings, ints and containers only: marshal cannot fail.
	fp, _ := ir.Fingerprint(ir.DomainGlue, map[string]any{
		"requires": entries(s.requires),
		"accepts":  entries(s.accepts),
		"priority": patterns,
		"data":     wires,
	})
	return fp
}

// without drops one occurrence of p.
func (ps PortSet) without(p ir.PortRef) PortSet {
	for i, r := range ps {
		if r == p {
			return PortSet(without(ps, i))
		}
	}
	return ps
}

func without(refs []ir.PortRef, i int) []ir.PortRef {
	out := make([]ir.PortRef, 0, len(refs)-1)
	out = append(out, refs[:i]...)
	return append(out, refs[i+1:]...)
}

func counts(refs []ir.PortRef) map[ir.PortRef]int {
	m := make(map[ir.PortRef]int, len(refs))
	for _, r := range refs {
		m[r]++
	}
	return m
}

func containsMulti(have map[ir.PortRef]int, need PortSet) bool {
	want := counts(need)
	for r, n := range want {
		if have[r] < n {
			return false
		}
	}
	return true
}

func containsAll(set PortSet, refs []ir.PortRef) bool {
	for _, r := range refs {
		found := false
		for _, x := range set {
			if x == r {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
