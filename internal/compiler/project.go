package compiler

import (
	"errors"
	"fmt"
	"sort"

	"cuelang.org/go/cue"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/bip/internal/behavior"
	"github.com/roach88/bip/internal/glue"
)

// Project is a compiled spec directory: component types plus the glue that
// coordinates them.
type Project struct {
	Components []Component // sorted by type
	Glue       *glue.Set
}

// Component returns the compiled component type named typ.
func (p *Project) Component(typ string) (Component, bool) {
	for _, c := range p.Components {
		if c.Descriptor.Type == typ {
			return c, true
		}
	}
	return Component{}, false
}

// CompileProject compiles every component under "component" and the optional
// "glue" struct. All component errors are collected; a glue error is
// appended last. A missing glue struct yields an empty glue.
func CompileProject(v cue.Value) (*Project, []error) {
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var errs []error
	p := &Project{}

	cv := v.LookupPath(cue.ParsePath("component"))
	if cv.Exists() {
		iter, err := cv.Fields()
		if err != nil {
			return nil, []error{formatCUEError(err)}
		}
		for iter.Next() {
			c, err := CompileComponent(iter.Value())
			if err != nil {
				errs = append(errs, fmt.Errorf("component.%s: %w", iter.Selector().Unquoted(), err))
				continue
			}
			p.Components = append(p.Components, *c)
		}
	}
	sort.Slice(p.Components, func(i, j int) bool {
		return p.Components[i].Descriptor.Type < p.Components[j].Descriptor.Type
	})

	p.Glue = glue.Empty()
	if gv := v.LookupPath(cue.ParsePath("glue")); gv.Exists() {
		set, err := CompileGlue(gv)
		if err != nil {
			errs = append(errs, fmt.Errorf("glue: %w", err))
		} else {
			p.Glue = set
		}
	}

	if len(p.Components) == 0 && len(errs) == 0 {
		errs = append(errs, &CompileError{Field: "component", Message: "no components found", Pos: v.Pos()})
	}
	return p, errs
}

// Specs builds every component type with its bindings, then cross-checks
// the glue against them. Types without an entry in bind get empty bindings.
func (p *Project) Specs(bind map[string]behavior.Bindings) (map[string]*behavior.Spec, error) {
	specs := make(map[string]*behavior.Spec, len(p.Components))
	var errs []error
	for _, c := range p.Components {
		spec, err := c.Descriptor.Build(bind[c.Descriptor.Type])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		specs[c.Descriptor.Type] = spec
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := p.Glue.Validate(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// InstanceIDs names the instances of every component type: the type name
// in lower case when there is one instance, otherwise suffixed -1, -2, ...
func (p *Project) InstanceIDs() map[string][]string {
	lower := cases.Lower(language.Und)
	out := make(map[string][]string, len(p.Components))
	for _, c := range p.Components {
		base := lower.String(c.Descriptor.Type)
		if c.Instances <= 1 {
			out[c.Descriptor.Type] = []string{base}
			continue
		}
		for i := 1; i <= c.Instances; i++ {
			out[c.Descriptor.Type] = append(out[c.Descriptor.Type], fmt.Sprintf("%s-%d", base, i))
		}
	}
	return out
}
