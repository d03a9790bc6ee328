package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bip/internal/executor"
	"github.com/roach88/bip/internal/ir"
)

func fired(round int64, key string) TraceEvent {
	return TraceEvent{Round: round, Kind: string(ir.StatusInteractionFired), Phase: string(ir.PhaseFire), Interaction: key}
}

func sampleResult() *Result {
	r := NewResult()
	r.Trace = []TraceEvent{
		{Round: 0, Kind: string(ir.StatusRunStarted)},
		fired(1, "a.p,b.q"),
		{Round: 1, Kind: string(ir.StatusInteractionDiscarded), Interaction: "c.r", Code: string(ir.ErrCodeAccessViolation)},
		fired(2, "c.r"),
		fired(3, "a.p,b.q"),
	}
	r.State["a"] = executor.Snapshot{Component: "a", State: "busy", Values: map[string]any{"n": int64(3), "tags": []any{"x", 1}}}
	return r
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertFiredCount, Interaction: "a.p,b.q", Count: 2},
		{Type: AssertFiredCount, Interaction: "d.s", Count: 0},
		{Type: AssertNeverFired, Component: "d"},
		{Type: AssertNeverFired, Interaction: "a.p"},
		{Type: AssertFireOrder, Interactions: []string{"a.p,b.q", "c.r"}},
		{Type: AssertFireOrder, Interactions: []string{"c.r", "a.p,b.q"}},
		{Type: AssertFinalState, Component: "a", State: "busy", Values: map[string]any{"n": 3}},
		{Type: AssertFinalState, Component: "a", Values: map[string]any{"tags": []any{"x", 1}}},
		{Type: AssertEventCount, Kind: string(ir.StatusInteractionFired), Count: 3},
		{Type: AssertEventCount, Kind: string(ir.StatusInteractionDiscarded), Code: string(ir.ErrCodeAccessViolation), Count: 1},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Fail(t *testing.T) {
	tests := []struct {
		name string
		a    Assertion
		want string
	}{
		{"count", Assertion{Type: AssertFiredCount, Interaction: "c.r", Count: 2}, "fired 1 time(s)"},
		{"never by component", Assertion{Type: AssertNeverFired, Component: "b"}, "a.p,b.q fired"},
		{"never by key", Assertion{Type: AssertNeverFired, Interaction: "c.r"}, "c.r never fired"},
		{"order", Assertion{Type: AssertFireOrder, Interactions: []string{"c.r", "d.s"}}, "missing from d.s on"},
		{"unknown component", Assertion{Type: AssertFinalState, Component: "zz", State: "x"}, "no such component"},
		{"state", Assertion{Type: AssertFinalState, Component: "a", State: "idle"}, "state busy"},
		{"values", Assertion{Type: AssertFinalState, Component: "a", Values: map[string]any{"n": 4}}, "values map"},
		{"event count", Assertion{Type: AssertEventCount, Kind: string(ir.StatusFireFailed), Count: 1}, "Actual: 0"},
		{"unknown type", Assertion{Type: "bogus"}, `unknown assertion type "bogus"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.a})
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

func TestAssertionError_ListsFirings(t *testing.T) {
	err := &AssertionError{Type: AssertFiredCount, Expected: "x", Actual: "y", Trace: sampleResult().Trace}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: fired_count")
	assert.Contains(t, msg, "[round 1] a.p,b.q")
	assert.Contains(t, msg, "[round 2] c.r")
	assert.NotContains(t, msg, "run_started")
}

func TestInvolves(t *testing.T) {
	assert.True(t, involves("a.p,b.q", "b"))
	assert.True(t, involves("eater-1.eat,feeder.giveY", "eater-1"))
	assert.False(t, involves("eater-1.eat", "eater"))
	assert.False(t, involves("", "a"))
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
	assert.Equal(t, []string{"a.p,b.q", "c.r", "a.p,b.q"}, sampleResult().Fired())
}
