package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/bip/internal/behavior"
	"github.com/roach88/bip/internal/ir"
)

// Component is a compiled component type together with the number of
// instances a runner should register for it.
type Component struct {
	Descriptor behavior.Descriptor
	Instances  int
}

// CompileComponent parses a CUE value into a Component.
//
// The value is the component struct itself, labeled with its type name:
//
//	component: Feeder: {
//		initial: "idle"
//		states: ["idle", "fed"]
//		ports: giveY: "enforceable"
//		transitions: [{port: "giveY", from: "idle", to: "fed"}]
//		data: y: {type: "int", access: ["giveY"], value: 42}
//	}
func CompileComponent(v cue.Value) (*Component, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	c := &Component{Instances: 1}
	d := &c.Descriptor

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		d.Type = labels[len(labels)-1].String()
	}

	initial, ok, err := lookupString(v, "initial")
	if err != nil {
		return nil, err
	}
	if !ok || initial == "" {
		return nil, &CompileError{Field: "initial", Message: "initial state is required", Pos: v.Pos()}
	}
	d.Initial = initial

	if sv := v.LookupPath(cue.ParsePath("states")); sv.Exists() {
		if d.States, err = stringList(sv, "states"); err != nil {
			return nil, err
		}
	}

	if iv := v.LookupPath(cue.ParsePath("instances")); iv.Exists() {
		n, err := iv.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if n < 1 {
			return nil, &CompileError{Field: "instances", Message: fmt.Sprintf("instances must be at least 1, got %d", n), Pos: iv.Pos()}
		}
		c.Instances = int(n)
	}

	if d.Ports, err = parsePorts(v); err != nil {
		return nil, err
	}
	if len(d.Ports) == 0 {
		return nil, &CompileError{Field: "ports", Message: "at least one port is required", Pos: v.Pos()}
	}
	if d.Transitions, err = parseTransitions(v); err != nil {
		return nil, err
	}
	if d.Guards, err = parseGuards(v); err != nil {
		return nil, err
	}
	if d.Data, err = parseData(v); err != nil {
		return nil, err
	}
	return c, nil
}

// parsePorts accepts either a kind string or a {kind, tag} struct per port.
func parsePorts(v cue.Value) ([]behavior.PortDecl, error) {
	pv := v.LookupPath(cue.ParsePath("ports"))
	if !pv.Exists() {
		return nil, nil
	}
	iter, err := pv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var ports []behavior.PortDecl
	for iter.Next() {
		p := behavior.PortDecl{ID: iter.Selector().Unquoted()}
		val := iter.Value()

		if kind, err := val.String(); err == nil {
			p.Kind = kind
		} else {
			if p.Kind, _, err = lookupString(val, "kind"); err != nil {
				return nil, err
			}
			if p.Tag, _, err = lookupString(val, "tag"); err != nil {
				return nil, err
			}
		}
		if p.Kind != "" {
			if _, err := ir.ParsePortKind(p.Kind); err != nil {
				return nil, &CompileError{Field: "ports." + p.ID, Message: err.Error(), Pos: val.Pos()}
			}
		}
		ports = append(ports, p)
	}
	return ports, nil
}

func parseTransitions(v cue.Value) ([]behavior.TransitionDecl, error) {
	tv := v.LookupPath(cue.ParsePath("transitions"))
	if !tv.Exists() {
		return nil, nil
	}
	iter, err := tv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []behavior.TransitionDecl
	for i := 0; iter.Next(); i++ {
		val := iter.Value()
		field := fmt.Sprintf("transitions[%d]", i)
		var t behavior.TransitionDecl

		if t.Port, _, err = lookupString(val, "port"); err != nil {
			return nil, err
		}
		var ok bool
		if t.Source, ok, err = lookupString(val, "from"); err != nil {
			return nil, err
		} else if !ok {
			return nil, &CompileError{Field: field + ".from", Message: "source state is required", Pos: val.Pos()}
		}
		if t.Target, ok, err = lookupString(val, "to"); err != nil {
			return nil, err
		} else if !ok {
			return nil, &CompileError{Field: field + ".to", Message: "target state is required", Pos: val.Pos()}
		}
		if t.Guard, _, err = lookupString(val, "guard"); err != nil {
			return nil, err
		}
		if t.Action, _, err = lookupString(val, "action"); err != nil {
			return nil, err
		}
		if dv := val.LookupPath(cue.ParsePath("data_in")); dv.Exists() {
			if t.DataIn, err = stringList(dv, field+".data_in"); err != nil {
				return nil, err
			}
		}
		if sv := val.LookupPath(cue.ParsePath("set")); sv.Exists() {
			set, err := toGo(sv)
			if err != nil {
				return nil, err
			}
			m, ok := set.(map[string]any)
			if !ok {
				return nil, &CompileError{Field: field + ".set", Message: "set must be a struct", Pos: sv.Pos()}
			}
			t.Set = m
		}
		out = append(out, t)
	}
	return out, nil
}

func parseGuards(v cue.Value) ([]behavior.GuardDecl, error) {
	gv := v.LookupPath(cue.ParsePath("guards"))
	if !gv.Exists() {
		return nil, nil
	}
	iter, err := gv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []behavior.GuardDecl
	for iter.Next() {
		g := behavior.GuardDecl{Name: iter.Selector().Unquoted()}
		if dv := iter.Value().LookupPath(cue.ParsePath("data_in")); dv.Exists() {
			if g.DataIn, err = stringList(dv, "guards."+g.Name+".data_in"); err != nil {
				return nil, err
			}
		}
		out = append(out, g)
	}
	return out, nil
}

func parseData(v cue.Value) ([]behavior.DataDecl, error) {
	dv := v.LookupPath(cue.ParsePath("data"))
	if !dv.Exists() {
		return nil, nil
	}
	iter, err := dv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []behavior.DataDecl
	for iter.Next() {
		val := iter.Value()
		d := behavior.DataDecl{Name: iter.Selector().Unquoted()}
		if d.Type, _, err = lookupString(val, "type"); err != nil {
			return nil, err
		}
		if av := val.LookupPath(cue.ParsePath("access")); av.Exists() {
			if d.Access, err = stringList(av, "data."+d.Name+".access"); err != nil {
				return nil, err
			}
		}
		if vv := val.LookupPath(cue.ParsePath("value")); vv.Exists() {
			if d.Value, err = toGo(vv); err != nil {
				return nil, err
			}
		}
		out = append(out, d)
	}
	return out, nil
}

// lookupString reads an optional string field.
func lookupString(v cue.Value, path string) (string, bool, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return "", false, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", false, formatCUEError(err)
	}
	return s, true, nil
}

func stringList(v cue.Value, field string) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "expected a list of strings", Pos: v.Pos()}
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// toGo converts a concrete CUE value into plain Go values. Integers become
// int so that component code sees the same types it would write itself.
func toGo(v cue.Value) (any, error) {
	switch v.IncompleteKind() {
	case cue.NullKind:
		return nil, nil
	case cue.BoolKind:
		b, err := v.Bool()
		return b, formatCUEError(err)
	case cue.IntKind:
		i, err := v.Int64()
		return int(i), formatCUEError(err)
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		return f, formatCUEError(err)
	case cue.StringKind:
		s, err := v.String()
		return s, formatCUEError(err)
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := []any{}
		for iter.Next() {
			x, err := toGo(iter.Value())
			if err != nil {
				return nil, err
			}
			out = append(out, x)
		}
		return out, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := make(map[string]any)
		for iter.Next() {
			x, err := toGo(iter.Value())
			if err != nil {
				return nil, err
			}
			out[iter.Selector().Unquoted()] = x
		}
		return out, nil
	default:
		return nil, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("unsupported value kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}
