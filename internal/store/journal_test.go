package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bip/internal/ir"
)

func testRun(id string) ir.RunRecord {
	return ir.RunRecord{
		ID:              id,
		GlueFingerprint: "abc",
		Components:      2,
		EngineVersion:   ir.EngineVersion,
		IRVersion:       ir.IRVersion,
	}
}

func TestWriteRun_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteRun(ctx, testRun("r1")))
	require.NoError(t, s.WriteRun(ctx, testRun("r1")))
	require.NoError(t, s.WriteRun(ctx, testRun("r2")))

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r1", runs[0].ID)
	assert.Equal(t, "r2", runs[1].ID)
}

func TestFinishRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteRun(ctx, testRun("r1")))
	require.NoError(t, s.FinishRun(ctx, "r1", 12))

	run, err := s.ReadRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(12), run.Rounds)
	assert.Equal(t, 2, run.Components)

	assert.Error(t, s.FinishRun(ctx, "ghost", 1))
}

func TestReadRun_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.ReadRun(context.Background(), "ghost")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestEvents_OrderedBySeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteRun(ctx, testRun("r1")))

	// Written out of order on purpose.
	for _, seq := range []int64{3, 1, 2} {
		require.NoError(t, s.WriteEvent(ctx, ir.StatusEvent{
			RunID: "r1",
			Seq:   seq,
			Round: 1,
			Phase: ir.PhaseFire,
			Kind:  ir.StatusInteractionFired,
		}))
	}
	require.NoError(t, s.WriteEvent(ctx, ir.StatusEvent{
		RunID:     "r1",
		Seq:       4,
		Round:     2,
		Phase:     ir.PhaseCollect,
		Kind:      ir.StatusExecutorTimeout,
		Component: "slow",
		Code:      ir.ErrCodeExecutorTimeout,
		Message:   "step not answered",
	}))

	events, err := s.ReadEvents(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, events, 4)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
	last := events[3]
	assert.Equal(t, ir.PhaseCollect, last.Phase)
	assert.Equal(t, ir.StatusExecutorTimeout, last.Kind)
	assert.Equal(t, ir.ErrCodeExecutorTimeout, last.Code)
	assert.Equal(t, "slow", last.Component)

	seq, err := s.LastSeq(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), seq)

	seq, err = s.LastSeq(ctx, "other")
	require.NoError(t, err)
	assert.Zero(t, seq)
}

func TestReadEvents_EmptyNotNil(t *testing.T) {
	s := openTestStore(t)
	events, err := s.ReadEvents(context.Background(), "ghost")
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestFirings_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteRun(ctx, testRun("r1")))

	in := ir.NewInteraction(3,
		ir.ComponentPort{Component: "y", Spec: "Eater", Port: "eat"},
		ir.ComponentPort{Component: "x", Spec: "Feeder", Port: "give"},
	)
	f := ir.NewFiringRecord("r1", 2, in)
	require.NoError(t, s.WriteFiring(ctx, f))
	require.NoError(t, s.WriteFiring(ctx, f))
	require.NoError(t, s.WriteFiring(ctx, ir.NewFiringRecord("r1", 1, in)))

	firings, err := s.ReadFirings(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, firings, 2)
	assert.Equal(t, int64(1), firings[0].Round)
	assert.Equal(t, f, firings[1])
	assert.Equal(t, []string{"x.give", "y.eat"}, firings[1].Ports)
	assert.NotEqual(t, firings[0].ID, firings[1].ID)
}
