package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/bip/internal/glue"
	"github.com/roach88/bip/internal/ir"
)

// CompileGlue parses the glue struct into a Set:
//
//	glue: {
//		synchron: [["A.sync", "B.sync"]]
//		requires: "Feeder.giveY": [["Eater.eat"]]
//		accepts: "Feeder.giveY": [["Eater.eat"]]
//		priority: xz: {weight: 5, ports: ["X.p", "Z.r"]}
//		prefer: [{high: "xz", low: "xy"}]
//		data: [{from: "Feeder.y", to: "Eater.y"}]
//	}
//
// Structural problems are reported as *CompileError; constraint problems
// come from glue.Builder as configuration errors.
func CompileGlue(v cue.Value) (*glue.Set, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	b := glue.NewBuilder()

	if sv := v.LookupPath(cue.ParsePath("synchron")); sv.Exists() {
		iter, err := sv.List()
		if err != nil {
			return nil, &CompileError{Field: "synchron", Message: "expected a list of port lists", Pos: sv.Pos()}
		}
		for i := 0; iter.Next(); i++ {
			refs, err := portRefList(iter.Value(), fmt.Sprintf("synchron[%d]", i))
			if err != nil {
				return nil, err
			}
			b.Synchron(refs...)
		}
	}

	if err := eachPortSet(v, "requires", func(p ir.PortRef, set []ir.PortRef) { b.Port(p).Requires(set...) }); err != nil {
		return nil, err
	}
	if err := eachPortSet(v, "accepts", func(p ir.PortRef, set []ir.PortRef) { b.Port(p).Accepts(set...) }); err != nil {
		return nil, err
	}

	if pv := v.LookupPath(cue.ParsePath("priority")); pv.Exists() {
		iter, err := pv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			name := iter.Selector().Unquoted()
			val := iter.Value()
			wv := val.LookupPath(cue.ParsePath("weight"))
			if !wv.Exists() {
				return nil, &CompileError{Field: "priority." + name, Message: "weight is required", Pos: val.Pos()}
			}
			w, err := wv.Int64()
			if err != nil {
				return nil, formatCUEError(err)
			}
			refs, err := portRefList(val.LookupPath(cue.ParsePath("ports")), "priority."+name+".ports")
			if err != nil {
				return nil, err
			}
			b.Priority(name, int(w), refs...)
		}
	}

	if pv := v.LookupPath(cue.ParsePath("prefer")); pv.Exists() {
		iter, err := pv.List()
		if err != nil {
			return nil, &CompileError{Field: "prefer", Message: "expected a list of {high, low}", Pos: pv.Pos()}
		}
		for i := 0; iter.Next(); i++ {
			val := iter.Value()
			high, okH, err := lookupString(val, "high")
			if err != nil {
				return nil, err
			}
			low, okL, err := lookupString(val, "low")
			if err != nil {
				return nil, err
			}
			if !okH || !okL {
				return nil, &CompileError{Field: fmt.Sprintf("prefer[%d]", i), Message: "high and low are required", Pos: val.Pos()}
			}
			b.Prefer(high, low)
		}
	}

	if dv := v.LookupPath(cue.ParsePath("data")); dv.Exists() {
		iter, err := dv.List()
		if err != nil {
			return nil, &CompileError{Field: "data", Message: "expected a list of {from, to}", Pos: dv.Pos()}
		}
		for i := 0; iter.Next(); i++ {
			val := iter.Value()
			field := fmt.Sprintf("data[%d]", i)
			from, err := dataRef(val, "from", field)
			if err != nil {
				return nil, err
			}
			to, err := dataRef(val, "to", field)
			if err != nil {
				return nil, err
			}
			b.Data(from).To(to)
		}
	}

	return b.Build()
}

// eachPortSet walks a "Spec.port": [[...], ...] struct, calling add once per
// listed set. An empty list entry is passed through as an empty set.
func eachPortSet(v cue.Value, field string, add func(ir.PortRef, []ir.PortRef)) error {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil
	}
	iter, err := fv.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		label := iter.Selector().Unquoted()
		port, err := ir.ParsePortRef(label)
		if err != nil {
			return &CompileError{Field: field + "." + label, Message: err.Error(), Pos: iter.Value().Pos()}
		}
		sets, err := iter.Value().List()
		if err != nil {
			return &CompileError{Field: field + "." + label, Message: "expected a list of port lists", Pos: iter.Value().Pos()}
		}
		for i := 0; sets.Next(); i++ {
			refs, err := portRefList(sets.Value(), fmt.Sprintf("%s.%s[%d]", field, label, i))
			if err != nil {
				return err
			}
			add(port, refs)
		}
	}
	return nil
}

func portRefList(v cue.Value, field string) ([]ir.PortRef, error) {
	if !v.Exists() {
		return nil, &CompileError{Field: field, Message: "port list is required"}
	}
	names, err := stringList(v, field)
	if err != nil {
		return nil, err
	}
	refs := make([]ir.PortRef, 0, len(names))
	for _, n := range names {
		r, err := ir.ParsePortRef(n)
		if err != nil {
			return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
		}
		refs = append(refs, r)
	}
	return refs, nil
}

func dataRef(v cue.Value, key, field string) (ir.DataRef, error) {
	s, ok, err := lookupString(v, key)
	if err != nil {
		return ir.DataRef{}, err
	}
	if !ok {
		return ir.DataRef{}, &CompileError{Field: field + "." + key, Message: key + " is required", Pos: v.Pos()}
	}
	r, err := ir.ParseDataRef(s)
	if err != nil {
		return ir.DataRef{}, &CompileError{Field: field + "." + key, Message: err.Error(), Pos: v.Pos()}
	}
	return r, nil
}
