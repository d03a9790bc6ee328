package ir

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePortRef(t *testing.T) {
	ref, err := ParsePortRef("org.bip.Feeder.giveY")
	require.NoError(t, err)
	assert.Equal(t, PortRef{Spec: "org.bip.Feeder", Port: "giveY"}, ref)
	assert.Equal(t, "org.bip.Feeder.giveY", ref.String())

	for _, bad := range []string{"", "noport", ".x", "A."} {
		_, err := ParsePortRef(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestParsePortKind(t *testing.T) {
	k, err := ParsePortKind(" Enforceable ")
	require.NoError(t, err)
	assert.Equal(t, PortEnforceable, k)

	_, err = ParsePortKind("sometimes")
	assert.Error(t, err)
}

func TestInteractionKeySorted(t *testing.T) {
	in := NewInteraction(2,
		ComponentPort{Component: "y", Spec: "Y", Port: "consume"},
		ComponentPort{Component: "x", Spec: "X", Port: "produce"},
	)

	assert.Equal(t, "x.produce,y.consume", in.Key())
	assert.Equal(t, []PortRef{{Spec: "X", Port: "produce"}, {Spec: "Y", Port: "consume"}}, in.Refs())
	assert.True(t, in.Involves("x"))
	assert.False(t, in.Involves("z"))
	assert.Equal(t, 2, in.Priority)
}

func TestReportLookups(t *testing.T) {
	r := Report{
		Component: "x",
		Offers:    []Offer{{Port: "produce"}},
		DataOut:   []string{"v"},
	}

	_, ok := r.Offer("produce")
	assert.True(t, ok)
	_, ok = r.Offer("consume")
	assert.False(t, ok)
	assert.True(t, r.ProvidesData("v"))
	assert.False(t, r.ProvidesData("w"))
}

func TestErrorTaxonomy(t *testing.T) {
	base := Errorf(ErrCodeAccessViolation, "port %s may not read %s", "Z.consume", "v")
	err := base.At("z", "consume")

	assert.True(t, IsAccessViolation(err))
	assert.True(t, IsRoundLocal(err))
	assert.False(t, IsConfiguration(err))
	assert.Equal(t, ErrCodeAccessViolation, CodeOf(err))
	assert.Contains(t, err.Error(), "component=z, port=consume")
	assert.Empty(t, base.Component, "At must not mutate the receiver")
}

func TestErrorTaxonomyJoined(t *testing.T) {
	joined := errors.Join(
		Errorf(ErrCodeConfiguration, "missing initial state"),
		Errorf(ErrCodeConfiguration, "no transitions"),
	)
	assert.True(t, IsConfiguration(joined))
	assert.False(t, IsRoundLocal(joined))
}
