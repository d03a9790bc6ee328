package glue

import (
	"errors"
	"slices"

	"github.com/roach88/bip/internal/behavior"
	"github.com/roach88/bip/internal/ir"
)

// Validate cross-checks the glue against the component types it will
// coordinate. Every referenced port must exist and be enforceable, and every
// data wire must connect a declared data-out to a consumed data-in.
func (s *Set) Validate(specs map[string]*behavior.Spec) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, ir.Errorf(ir.ErrCodeConfiguration, format, args...))
	}

	for _, r := range s.ports {
		spec, ok := specs[r.Spec]
		if !ok {
			fail("glue references unknown component type %s", r.Spec)
			continue
		}
		p, ok := spec.Port(r.Port)
		if !ok {
			fail("glue references unknown port %s", r)
			continue
		}
		if p.Kind != ir.PortEnforceable {
			fail("glue references %s port %s; only enforceable ports synchronize", p.Kind, r)
		}
	}

	for _, w := range s.wires {
		from, ok := specs[w.From.Spec]
		if !ok {
			fail("data wire from unknown component type %s", w.From.Spec)
		} else if !slices.Contains(from.DataNames(), w.From.Name) {
			fail("data wire from %s: no such data-out", w.From)
		}
		to, ok := specs[w.To.Spec]
		if !ok {
			fail("data wire to unknown component type %s", w.To.Spec)
		} else if !consumes(to, w.To.Name) {
			fail("data wire to %s: no transition or guard consumes it", w.To)
		}
	}

	return errors.Join(errs...)
}

func consumes(spec *behavior.Spec, name string) bool {
	for i, t := range spec.Transitions() {
		if slices.Contains(t.DataIn, name) || slices.Contains(spec.GuardData(i), name) {
			return true
		}
	}
	return false
}
