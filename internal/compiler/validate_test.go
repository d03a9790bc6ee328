package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bip/internal/behavior"
	"github.com/roach88/bip/internal/glue"
	"github.com/roach88/bip/internal/ir"
)

func codes(findings []ValidationError) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.Code
	}
	return out
}

func project(d ...behavior.Descriptor) *Project {
	p := &Project{Glue: glue.Empty()}
	for _, x := range d {
		p.Components = append(p.Components, Component{Descriptor: x, Instances: 1})
	}
	return p
}

func TestValidateClean(t *testing.T) {
	p, errs := compileProject(t, feederEater)
	require.Empty(t, errs)

	findings := Validate(p)
	assert.False(t, HasErrors(findings))
	// Both components end in a state nothing leaves.
	assert.Equal(t, []string{ErrDeadEndState, ErrDeadEndState}, codes(findings))
}

func TestValidateComponentErrors(t *testing.T) {
	d := behavior.Descriptor{
		Type:    "Door",
		Initial: "closed",
		States:  []string{"closed", "open", "broken"},
		Ports: []behavior.PortDecl{
			{ID: "open", Kind: "enforceable"},
			{ID: "open", Kind: "enforceable"},
			{ID: "close", Kind: "rarely"},
		},
		Transitions: []behavior.TransitionDecl{
			{Port: "open", Source: "closed", Target: "open"},
			{Port: "close", Source: "open", Target: "closed"},
			{Port: "kick", Source: "open", Target: "ajar"},
		},
		Data: []behavior.DataDecl{
			{Name: "angle", Access: []string{"swing", "*", "Wall.lean"}},
		},
	}

	findings := Validate(project(d))
	assert.True(t, HasErrors(findings))
	assert.ElementsMatch(t, []string{
		ErrDuplicateName,
		ErrInvalidPortKind,
		ErrUnknownPort,
		ErrUnknownState,
		ErrUnknownAccessPort,
		ErrUnreachableState,
	}, codes(findings))
}

func TestValidateImpliedStates(t *testing.T) {
	d := behavior.Descriptor{
		Type:    "Loop",
		Initial: "a",
		Ports:   []behavior.PortDecl{{ID: "p"}},
		Transitions: []behavior.TransitionDecl{
			{Port: "p", Source: "a", Target: "b"},
			{Port: "p", Source: "b", Target: "a"},
		},
	}
	assert.Empty(t, Validate(project(d)))
}

func TestValidateGlueReferences(t *testing.T) {
	set, err := glue.NewBuilder().
		Synchron(ir.MustPortRef("A.p"), ir.MustPortRef("Ghost.p")).
		Synchron(ir.MustPortRef("A.q"), ir.MustPortRef("A.tick")).
		Data(ir.DataRef{Spec: "A", Name: "nothing"}).To(ir.DataRef{Spec: "A", Name: "x"}).
		Build()
	require.NoError(t, err)

	p := project(behavior.Descriptor{
		Type:    "A",
		Initial: "s",
		Ports: []behavior.PortDecl{
			{ID: "p", Kind: "enforceable"},
			{ID: "tick", Kind: "spontaneous"},
		},
		Transitions: []behavior.TransitionDecl{
			{Port: "p", Source: "s", Target: "s"},
			{Port: "tick", Source: "s", Target: "s"},
		},
	})
	p.Glue = set

	assert.ElementsMatch(t, []string{
		ErrGlueUnknownType,
		ErrGlueUnknownPort,
		ErrGluePortKind,
		ErrWireUnknownData,
	}, codes(Validate(p)))
}

func TestValidationErrorFormat(t *testing.T) {
	err := ValidationError{Field: "Door.initial", Message: "bad", Code: ErrUnknownState}
	assert.Equal(t, "[E101] Door.initial: bad", err.Error())
}
