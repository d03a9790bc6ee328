package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/bip/internal/compiler"
	"github.com/roach88/bip/internal/engine"
	"github.com/roach88/bip/internal/store"
	"github.com/roach88/bip/internal/testutil"
)

// DefaultRoundTimeout bounds executor commands when a scenario sets none.
const DefaultRoundTimeout = time.Second

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Load and compile the CUE specs
// 3. Register every component instance and install the glue
// 4. Deliver informed events, then run the configured number of rounds
// 5. Read the trace back from the journal and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context. Canceling ctx ends the
// run early; assertions are still evaluated.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(store.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	project, errs := compiler.LoadProject(scenario.Specs...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to compile specs: %w", errs[0])
	}
	specs, err := project.Specs(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build specs: %w", err)
	}

	timeout := scenario.RoundTimeout
	if timeout == 0 {
		timeout = DefaultRoundTimeout
	}
	eng := engine.New(
		engine.WithStore(st),
		engine.WithRunIDGenerator(testutil.NewStaticRunID(scenario.RunID)),
		engine.WithMaxRounds(scenario.Rounds),
		engine.WithRoundTimeout(timeout),
		engine.WithIdleInterval(time.Millisecond),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), // Suppress logs in tests
	)
	defer eng.Close()

	ids := project.InstanceIDs()
	for _, c := range project.Components {
		typ := c.Descriptor.Type
		for _, id := range ids[typ] {
			if _, err := eng.Register(specs[typ], id, false); err != nil {
				return nil, fmt.Errorf("failed to register %s: %w", id, err)
			}
		}
	}
	if err := eng.SpecifyGlue(project.Glue); err != nil {
		return nil, fmt.Errorf("failed to install glue: %w", err)
	}
	if err := eng.Start(); err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}

	for i, step := range scenario.Informs {
		x, ok := eng.Executor(step.Component)
		if !ok {
			return nil, fmt.Errorf("informs[%d]: unknown component %q", i, step.Component)
		}
		if err := x.Inform(step.Port, step.Data); err != nil {
			return nil, fmt.Errorf("informs[%d]: %w", i, err)
		}
	}

	if err := eng.Execute(ctx); err != nil {
		return nil, fmt.Errorf("failed to execute: %w", err)
	}
	if err := eng.Wait(); err != nil {
		return nil, fmt.Errorf("run failed: %w", err)
	}

	result := NewResult()
	result.RunID = eng.RunID()
	result.Rounds = eng.Rounds()

	// Read back from the journal rather than from memory, so a scenario
	// also checks what was persisted. ctx may be done by now.
	ctx = context.WithoutCancel(ctx)
	events, err := st.ReadEvents(ctx, result.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	for _, ev := range events {
		result.Trace = append(result.Trace, traceEvent(ev))
	}
	if result.Firings, err = st.ReadFirings(ctx, result.RunID); err != nil {
		return nil, fmt.Errorf("failed to read firings: %w", err)
	}

	for _, id := range eng.Components() {
		x, _ := eng.Executor(id)
		snap, err := x.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot %s: %w", id, err)
		}
		result.State[id] = snap
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}
