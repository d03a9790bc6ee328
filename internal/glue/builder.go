package glue

import (
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/bip/internal/ir"
)

// Builder composes synchronization declarations into a Set. Builder methods
// never fail; Build reports every problem at once.
//
// Example:
//
//	set, err := glue.NewBuilder().
//		Synchron(ir.MustPortRef("A.sync"), ir.MustPortRef("B.sync")).
//		Port(ir.MustPortRef("Feeder.giveY")).Requires(ir.MustPortRef("Eater.eat")).
//		Port(ir.MustPortRef("Feeder.giveY")).Accepts(ir.MustPortRef("Eater.eat")).
//		Data(ir.DataRef{Spec: "Feeder", Name: "y"}).To(ir.DataRef{Spec: "Eater", Name: "y"}).
//		Build()
type Builder struct {
	requires map[ir.PortRef][]PortSet
	accepts  map[ir.PortRef][]PortSet
	patterns []Pattern
	prefer   [][2]string
	wires    []Wire
	errs     []error
}

// NewBuilder starts an empty glue.
func NewBuilder() *Builder {
	return &Builder{
		requires: make(map[ir.PortRef][]PortSet),
		accepts:  make(map[ir.PortRef][]PortSet),
	}
}

func (b *Builder) fail(format string, args ...any) {
	b.errs = append(b.errs, ir.Errorf(ir.ErrCodeConfiguration, format, args...))
}

// Synchron declares a strong rendezvous: every port requires all the others
// and accepts exactly the others.
func (b *Builder) Synchron(ports ...ir.PortRef) *Builder {
	if len(ports) < 2 {
		b.fail("synchron needs at least two ports, got %d", len(ports))
		return b
	}
	for i, p := range ports {
		others := newPortSet(without(ports, i))
		b.requires[p] = append(b.requires[p], others)
		b.accepts[p] = append(b.accepts[p], others)
	}
	return b
}

// PortBuilder adds requires and accepts entries for one port.
type PortBuilder struct {
	b    *Builder
	port ir.PortRef
}

// Port selects p for Requires or Accepts declarations.
func (b *Builder) Port(p ir.PortRef) *PortBuilder {
	return &PortBuilder{b: b, port: p}
}

// Requires adds one cause set. Several calls form a disjunction. Calling it
// with no ports makes the port explicitly self-sufficient.
func (pb *PortBuilder) Requires(causes ...ir.PortRef) *Builder {
	pb.b.requires[pb.port] = append(pb.b.requires[pb.port], newPortSet(causes))
	return pb.b
}

// Accepts adds one accept set.
func (pb *PortBuilder) Accepts(ports ...ir.PortRef) *Builder {
	pb.b.accepts[pb.port] = append(pb.b.accepts[pb.port], newPortSet(ports))
	return pb.b
}

// Priority declares a named interaction pattern with a weight.
func (b *Builder) Priority(name string, weight int, ports ...ir.PortRef) *Builder {
	b.patterns = append(b.patterns, Pattern{Name: name, Ports: newPortSet(ports), Weight: weight})
	return b
}

// Prefer orders two patterns: high must outweigh low.
func (b *Builder) Prefer(high, low string) *Builder {
	b.prefer = append(b.prefer, [2]string{high, low})
	return b
}

// WireBuilder completes a data wire.
type WireBuilder struct {
	b    *Builder
	from ir.DataRef
}

// Data starts a wire from a data-out.
func (b *Builder) Data(from ir.DataRef) *WireBuilder {
	return &WireBuilder{b: b, from: from}
}

// To completes the wire into a data-in.
func (wb *WireBuilder) To(to ir.DataRef) *Builder {
	wb.b.wires = append(wb.b.wires, Wire{From: wb.from, To: to})
	return wb.b
}

// Build validates the declarations and returns the Set.
func (b *Builder) Build() (*Set, error) {
	errs := append([]error(nil), b.errs...)
	fail := func(format string, args ...any) {
		errs = append(errs, ir.Errorf(ir.ErrCodeConfiguration, format, args...))
	}

	s := &Set{
		requires: make(map[ir.PortRef][]PortSet, len(b.requires)),
		accepts:  make(map[ir.PortRef][]PortSet, len(b.accepts)),
		weights:  make(map[string]int, len(b.patterns)),
		related:  make(map[ir.PortRef]map[ir.PortRef]bool),
	}
	mentioned := make(map[ir.PortRef]bool)
	checkRef := func(where string, r ir.PortRef) bool {
		if r.Spec == "" || r.Port == "" {
			fail("%s: incomplete port reference %q", where, r.String())
			return false
		}
		mentioned[r] = true
		return true
	}
	relate := func(a, c ir.PortRef) {
		for _, pair := range [][2]ir.PortRef{{a, c}, {c, a}} {
			m := s.related[pair[0]]
			if m == nil {
				m = make(map[ir.PortRef]bool)
				s.related[pair[0]] = m
			}
			m[pair[1]] = true
		}
	}

	copyEntries := func(kind string, src, dst map[ir.PortRef][]PortSet) {
		for p, sets := range src {
			if !checkRef(kind, p) {
				continue
			}
			for _, set := range sets {
				for _, r := range set {
					if checkRef(fmt.Sprintf("%s of %s", kind, p), r) {
						relate(p, r)
					}
				}
				dst[p] = appendUnique(dst[p], set)
			}
		}
	}
	copyEntries("requires", b.requires, s.requires)
	copyEntries("accepts", b.accepts, s.accepts)

	// A cause outside every accept set can never be satisfied.
	for p, causes := range s.requires {
		for _, cause := range causes {
			if rest := cause.without(p); len(rest) > 0 && !s.AcceptsAll(p, rest) {
				fail("port %s requires %v which it does not accept", p, cause.Strings())
			}
		}
	}

	for _, p := range b.patterns {
		if p.Name == "" {
			fail("priority pattern name cannot be empty")
			continue
		}
		if _, dup := s.weights[p.Name]; dup {
			fail("priority pattern %s has been already defined", p.Name)
			continue
		}
		if len(p.Ports) == 0 {
			fail("priority pattern %s has no ports", p.Name)
			continue
		}
		for _, r := range p.Ports {
			checkRef("priority "+p.Name, r)
		}
		s.weights[p.Name] = p.Weight
		s.patterns = append(s.patterns, p)
	}

	for _, pr := range b.prefer {
		for _, name := range pr {
			if _, ok := s.weights[name]; !ok {
				fail("preference %s > %s names unknown pattern %s", pr[0], pr[1], name)
			}
		}
	}
	s.prefer = append(s.prefer, b.prefer...)
	if len(errs) == 0 {
		if err := s.resolveWeights(); err != nil {
			errs = append(errs, err)
		}
	}

	for _, w := range b.wires {
		if w.From.Spec == "" || w.From.Name == "" || w.To.Spec == "" || w.To.Name == "" {
			fail("data wire %s -> %s is incomplete", w.From, w.To)
			continue
		}
		s.wires = append(s.wires, w)
	}

	for r := range mentioned {
		s.ports = append(s.ports, r)
	}
	ir.SortPortRefs(s.ports)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return s, nil
}

// resolveWeights raises pattern weights until every preference high > low
// holds. A cyclic preference is a configuration error.
func (s *Set) resolveWeights() error {
	lower := make(map[string][]string)
	for _, pr := range s.prefer {
		lower[pr[0]] = append(lower[pr[0]], pr[1])
	}

	const (
		unvisited = iota
		visiting
		done
	)
	mark := make(map[string]int)
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch mark[name] {
		case done:
			return nil
		case visiting:
			return ir.Errorf(ir.ErrCodeConfiguration, "cyclic priority preference: %v", append(path, name))
		}
		mark[name] = visiting
		for _, l := range lower[name] {
			if err := visit(l, append(path, name)); err != nil {
				return err
			}
			if s.weights[name] <= s.weights[l] {
				s.weights[name] = s.weights[l] + 1
			}
		}
		mark[name] = done
		return nil
	}

	names := make([]string, 0, len(s.weights))
	for name := range s.weights {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}

func appendUnique(sets []PortSet, set PortSet) []PortSet {
	for _, s := range sets {
		if equalSets(s, set) {
			return sets
		}
	}
	return append(sets, set)
}

func equalSets(a, b PortSet) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
