package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/bip/internal/behavior"
	"github.com/roach88/bip/internal/ir"
)

// Validation codes (E100-E199)
const (
	// Component errors (E101-E109)
	ErrUnknownState      = "E101" // transition or initial names an undeclared state
	ErrUnknownPort       = "E102" // transition names an undeclared port
	ErrDuplicateName     = "E103" // duplicate port, guard or data name
	ErrInvalidPortKind   = "E104" // unknown port kind
	ErrUnknownAccessPort = "E105" // data access names an undeclared own port

	// Glue errors (E110-E119)
	ErrGlueUnknownType = "E110" // glue names an unknown component type
	ErrGlueUnknownPort = "E111" // glue names an undeclared port
	ErrGluePortKind    = "E112" // glue names a non-enforceable port
	ErrWireUnknownData = "E113" // data wire names an undeclared data-out

	// Warnings (E120-E129)
	ErrUnreachableState = "E120" // state cannot be reached from initial
	ErrDeadEndState     = "E121" // reachable state with no outgoing transition
)

// Severity of a validation finding.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ValidationError represents a schema validation finding.
type ValidationError struct {
	Field    string `json:"field"`
	Message  string `json:"message"`
	Code     string `json:"code"`
	Severity string `json:"severity"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled project and returns every finding, errors and
// warnings alike. It does not fail fast.
func Validate(p *Project) []ValidationError {
	var out []ValidationError
	for _, c := range p.Components {
		out = append(out, validateDescriptor(c.Descriptor)...)
	}
	out = append(out, validateGlue(p)...)
	return out
}

// HasErrors reports whether any finding has error severity.
func HasErrors(findings []ValidationError) bool {
	return slices.ContainsFunc(findings, func(f ValidationError) bool { return f.Severity == SeverityError })
}

func validateDescriptor(d behavior.Descriptor) []ValidationError {
	var errs []ValidationError
	fail := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:    d.Type + "." + field,
			Message:  fmt.Sprintf(format, args...),
			Code:     code,
			Severity: SeverityError,
		})
	}

	states := make(map[string]bool)
	for _, s := range d.States {
		states[s] = true
	}
	// An empty state list means states are implied by the transitions.
	declared := len(d.States) > 0
	if declared && !states[d.Initial] {
		fail("initial", ErrUnknownState, "initial state %q is not declared", d.Initial)
	}

	ports := make(map[string]bool)
	for i, p := range d.Ports {
		if ports[p.ID] {
			fail(fmt.Sprintf("ports[%d]", i), ErrDuplicateName, "duplicate port %q", p.ID)
		}
		ports[p.ID] = true
		if p.Kind != "" {
			if _, err := ir.ParsePortKind(p.Kind); err != nil {
				fail(fmt.Sprintf("ports[%d].kind", i), ErrInvalidPortKind, "%v", err)
			}
		}
	}

	for i, t := range d.Transitions {
		field := fmt.Sprintf("transitions[%d]", i)
		if t.Port != "" && !ports[t.Port] {
			fail(field+".port", ErrUnknownPort, "port %q is not declared", t.Port)
		}
		if declared {
			if !states[t.Source] {
				fail(field+".from", ErrUnknownState, "state %q is not declared", t.Source)
			}
			if !states[t.Target] {
				fail(field+".to", ErrUnknownState, "state %q is not declared", t.Target)
			}
		}
	}

	guards := make(map[string]bool)
	for i, g := range d.Guards {
		if guards[g.Name] {
			fail(fmt.Sprintf("guards[%d]", i), ErrDuplicateName, "duplicate guard %q", g.Name)
		}
		guards[g.Name] = true
	}

	data := make(map[string]bool)
	for i, dd := range d.Data {
		if data[dd.Name] {
			fail(fmt.Sprintf("data[%d]", i), ErrDuplicateName, "duplicate data %q", dd.Name)
		}
		data[dd.Name] = true
		for _, a := range dd.Access {
			if a == "*" || strings.Contains(a, ".") {
				continue
			}
			if !ports[a] {
				fail(fmt.Sprintf("data[%d].access", i), ErrUnknownAccessPort, "access port %q is not declared", a)
			}
		}
	}

	return append(errs, reachability(d)...)
}

// reachability warns about states unreachable from the initial state and
// reachable states that no transition leaves.
func reachability(d behavior.Descriptor) []ValidationError {
	next := make(map[string][]string)
	for _, t := range d.Transitions {
		next[t.Source] = append(next[t.Source], t.Target)
	}

	seen := map[string]bool{d.Initial: true}
	queue := []string{d.Initial}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for _, n := range next[s] {
			if !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}

	var out []ValidationError
	warn := func(code, format string, args ...any) {
		out = append(out, ValidationError{
			Field:    d.Type + ".states",
			Message:  fmt.Sprintf(format, args...),
			Code:     code,
			Severity: SeverityWarning,
		})
	}
	for _, s := range d.States {
		switch {
		case !seen[s]:
			warn(ErrUnreachableState, "state %q is unreachable from %q", s, d.Initial)
		case len(next[s]) == 0:
			warn(ErrDeadEndState, "state %q has no outgoing transition", s)
		}
	}
	return out
}

func validateGlue(p *Project) []ValidationError {
	var errs []ValidationError
	fail := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:    "glue." + field,
			Message:  fmt.Sprintf(format, args...),
			Code:     code,
			Severity: SeverityError,
		})
	}

	for _, r := range p.Glue.Ports() {
		c, ok := p.Component(r.Spec)
		if !ok {
			fail(r.String(), ErrGlueUnknownType, "unknown component type %s", r.Spec)
			continue
		}
		i := slices.IndexFunc(c.Descriptor.Ports, func(pd behavior.PortDecl) bool { return pd.ID == r.Port })
		if i < 0 {
			fail(r.String(), ErrGlueUnknownPort, "unknown port %s", r)
			continue
		}
		if kind, err := ir.ParsePortKind(c.Descriptor.Ports[i].Kind); err == nil && kind != ir.PortEnforceable {
			fail(r.String(), ErrGluePortKind, "%s port cannot synchronize", kind)
		}
	}

	for i, w := range p.Glue.Wires() {
		c, ok := p.Component(w.From.Spec)
		if !ok {
			fail(fmt.Sprintf("data[%d].from", i), ErrGlueUnknownType, "unknown component type %s", w.From.Spec)
			continue
		}
		if !slices.ContainsFunc(c.Descriptor.Data, func(dd behavior.DataDecl) bool { return dd.Name == w.From.Name }) {
			fail(fmt.Sprintf("data[%d].from", i), ErrWireUnknownData, "%s declares no data-out %q", w.From.Spec, w.From.Name)
		}
	}
	return errs
}
