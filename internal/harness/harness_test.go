package harness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bip/internal/ir"
)

func runScenario(t *testing.T, path string) *Result {
	t.Helper()
	s, err := LoadScenario(path)
	require.NoError(t, err)
	result, err := Run(s)
	require.NoError(t, err)
	require.True(t, result.Pass, "assertion failures: %v", result.Errors)
	return result
}

func TestRun_Rendezvous(t *testing.T) {
	result := runScenario(t, "testdata/scenarios/rendezvous.yaml")

	assert.Equal(t, "test-run-default", result.RunID)
	assert.Equal(t, int64(2), result.Rounds)
	assert.Equal(t, []string{"a.sync,b.sync", "a.sync,b.sync"}, result.Fired())
	require.Len(t, result.Firings, 2)
	assert.Equal(t, int64(1), result.Firings[0].Round)
	assert.Equal(t, int64(2), result.Firings[1].Round)

	// Seq is dense and starts at one.
	for i, ev := range result.Trace {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
}

func TestRun_DataTransfer(t *testing.T) {
	result := runScenario(t, "testdata/scenarios/feeder.yaml")
	assert.Equal(t, []string{"eater.eat,feeder.giveY"}, result.Fired())

	// Data-in values are not kept after the transition.
	_, kept := result.State["eater"].Values["y"]
	assert.False(t, kept)
}

func TestRun_Inform(t *testing.T) {
	result := runScenario(t, "testdata/scenarios/doorbell.yaml")
	assert.Equal(t, []string{"door.open,guest.enter"}, result.Fired())
	assert.Zero(t, result.State["door"].Informs)
}

func TestRun_FailingAssertion(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/rendezvous.yaml")
	require.NoError(t, err)
	s.Assertions = []Assertion{{Type: AssertFiredCount, Interaction: "a.sync,b.sync", Count: 5}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "fired 2 time(s)")
}

func TestRun_UnknownInformTarget(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/doorbell.yaml")
	require.NoError(t, err)
	s.Informs[0].Component = "window"

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown component "window"`)
}

func TestRunContext_Canceled(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/rendezvous.yaml")
	require.NoError(t, err)
	s.Rounds = 1 << 30
	s.Assertions = []Assertion{{Type: AssertEventCount, Kind: string(ir.StatusRunStopped), Count: 1}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	result, err := RunContext(ctx, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "assertion failures: %v", result.Errors)
	assert.Less(t, result.Rounds, s.Rounds)
}

func TestRunSuite(t *testing.T) {
	res, err := RunSuite(context.Background(), "testdata/scenarios")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 4, res.Passed)
	assert.Empty(t, res.Failures)
}

func TestRunSuite_LoadFailureIsCounted(t *testing.T) {
	res, err := RunSuite(context.Background(), "testdata/invalid/typo.yaml", "testdata/scenarios/fork_priority.yaml")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Passed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "testdata/invalid/typo.yaml", res.Failures[0].Path)
	assert.Contains(t, res.Failures[0].Errors[0], "failed to load scenario")
}

func TestFindScenarios(t *testing.T) {
	files, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"testdata/scenarios/doorbell.yaml",
		"testdata/scenarios/feeder.yaml",
		"testdata/scenarios/fork_priority.yaml",
		"testdata/scenarios/rendezvous.yaml",
	}, files)

	_, err = FindScenarios("testdata/nowhere")
	var nf *ScenarioNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "testdata/nowhere", nf.Path)
}
