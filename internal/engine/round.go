package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/bip/internal/broker"
	"github.com/roach88/bip/internal/executor"
	"github.com/roach88/bip/internal/glue"
	"github.com/roach88/bip/internal/ir"
)

// loop is the round loop of one run. It owns every state-changing command
// sent to executors until it returns.
func (e *Engine) loop(parent context.Context, execs []*executor.Executor, set *glue.Set, stopCh <-chan struct{}, done chan struct{}) {
	// Rounds in flight drain even when parent is canceled.
	ctx := context.WithoutCancel(parent)

	defer func() {
		e.mu.Lock()
		if e.state == stateRunning {
			e.state = stateStarted
		}
		e.mu.Unlock()
		close(done)
	}()

	r := &runner{
		engine: e,
		glue:   set,
		execs:  execs,
		byID:   make(map[string]*executor.Executor, len(execs)),
	}
	for _, x := range execs {
		r.byID[x.ID()] = x
	}
	r.broker = broker.New(set, r.source, e.logger)

	e.emit(ctx, 0, ir.StatusEvent{
		Kind:    ir.StatusRunStarted,
		Message: fmt.Sprintf("%d components", len(execs)),
	})

	var (
		round  int64
		reason string
	)
	for {
		switch {
		case e.stopping.Load():
			reason = "stop requested"
		case parent.Err() != nil:
			reason = parent.Err().Error()
		case e.maxRounds > 0 && round >= e.maxRounds:
			reason = "max rounds reached"
		}
		if reason != "" {
			break
		}

		round++
		fired := r.round(ctx, round)
		e.rounds.Store(round)
		if fired > 0 {
			continue
		}

		// Nothing fired: wait for a component to change on its own.
		timer := time.NewTimer(e.idleInterval)
		select {
		case <-stopCh:
		case <-parent.Done():
		case <-e.wake:
		case <-timer.C:
		}
		timer.Stop()
	}

	e.emit(ctx, round, ir.StatusEvent{Kind: ir.StatusRunStopped, Message: reason})
	if e.store != nil {
		if err := e.store.FinishRun(ctx, e.runID, round); err != nil {
			e.logger.Error("journal write failed", "run_id", e.runID, "error", err)
			e.mu.Lock()
			e.runErr = err
			e.mu.Unlock()
		}
	}
}

// runner holds what the rounds of one run share.
type runner struct {
	engine *Engine
	glue   *glue.Set
	broker *broker.Broker
	execs  []*executor.Executor
	byID   map[string]*executor.Executor
}

func (r *runner) source(component string) (broker.Source, bool) {
	x, ok := r.byID[component]
	if !ok {
		return nil, false
	}
	return x, true
}

// ready is a selected interaction whose data has been resolved.
type ready struct {
	in   ir.Interaction
	data broker.Resolution
}

// round runs one COLLECT, COMPUTE, RESOLVE-DATA, FIRE, AWAIT cycle and
// returns the number of interactions fired.
func (r *runner) round(ctx context.Context, n int64) int {
	e := r.engine
	ctx, span := e.tracer.Start(ctx, "bip.round", trace.WithAttributes(
		attribute.String("bip.run_id", e.runID),
		attribute.Int64("bip.round", n),
	))
	defer span.End()

	e.emit(ctx, n, ir.StatusEvent{Phase: ir.PhaseCollect, Kind: ir.StatusRoundStarted})

	reports := r.collect(ctx, n)
	byComponent := make(map[string]ir.Report, len(reports))
	for _, rep := range reports {
		byComponent[rep.Component] = rep
	}

	cands := Enumerate(r.glue, reports, e.maxSize)
	selected := Select(cands, e.searchBudget)
	for _, in := range selected {
		e.emit(ctx, n, ir.StatusEvent{
			Phase:       ir.PhaseCompute,
			Kind:        ir.StatusInteractionSelected,
			Interaction: in.Key(),
			Message:     fmt.Sprintf("priority %d", in.Priority),
		})
	}

	firing := r.resolve(ctx, n, span, selected, byComponent)
	fired := r.fire(ctx, n, span, firing, reports)

	span.SetAttributes(
		attribute.Int("bip.reports", len(reports)),
		attribute.Int("bip.candidates", len(cands)),
		attribute.Int("bip.selected", len(selected)),
		attribute.Int("bip.fired", fired),
	)
	e.emit(ctx, n, ir.StatusEvent{
		Phase:   ir.PhaseAwait,
		Kind:    ir.StatusRoundCompleted,
		Message: fmt.Sprintf("fired %d of %d selected", fired, len(selected)),
	})
	return fired
}

// collect sends Step to every executor concurrently and returns the reports
// that arrived within the round timeout, in component order. Executors that
// fail or time out are left out of this round only.
func (r *runner) collect(ctx context.Context, n int64) []ir.Report {
	e := r.engine
	type stepResult struct {
		rep ir.Report
		err error
	}
	results := make([]stepResult, len(r.execs))

	var g errgroup.Group
	for i, x := range r.execs {
		i, x := i, x
		g.Go(func() error {
			stepCtx, cancel := context.WithTimeout(ctx, e.roundTimeout)
			defer cancel()
			results[i].rep, results[i].err = x.Step(stepCtx)
			return nil
		})
	}
	_ = g.Wait()

	reports := make([]ir.Report, 0, len(results))
	for i, res := range results {
		id := r.execs[i].ID()
		if res.err != nil {
			kind := ir.StatusExecutorFailed
			if ir.IsExecutorTimeout(res.err) {
				kind = ir.StatusExecutorTimeout
			}
			e.emit(ctx, n, ir.StatusEvent{
				Phase:     ir.PhaseCollect,
				Kind:      kind,
				Component: id,
				Code:      ir.CodeOf(res.err),
				Message:   res.err.Error(),
			})
			continue
		}
		for _, fault := range res.rep.Faults {
			e.emit(ctx, n, ir.StatusEvent{
				Phase:     ir.PhaseCollect,
				Kind:      ir.StatusGuardFailed,
				Component: id,
				Port:      portOf(fault),
				Code:      ir.CodeOf(fault),
				Message:   fault.Error(),
			})
		}
		reports = append(reports, res.rep)
	}
	return reports
}

// resolve gathers the data of each selected interaction and re-checks
// guards that depend on it. A failure discards that interaction only.
func (r *runner) resolve(ctx context.Context, n int64, span trace.Span, selected []ir.Interaction, reports map[string]ir.Report) []ready {
	e := r.engine
	out := make([]ready, 0, len(selected))
	for _, in := range selected {
		rctx, cancel := context.WithTimeout(ctx, e.roundTimeout)
		data, err := r.broker.Resolve(rctx, in, reports)
		enabled := true
		if err == nil {
			enabled, err = r.checkDeferred(rctx, in, reports, data)
		}
		cancel()

		switch {
		case err != nil:
			span.RecordError(err)
			e.emit(ctx, n, ir.StatusEvent{
				Phase:       ir.PhaseResolve,
				Kind:        ir.StatusInteractionDiscarded,
				Interaction: in.Key(),
				Code:        ir.CodeOf(err),
				Message:     err.Error(),
			})
		case !enabled:
			e.emit(ctx, n, ir.StatusEvent{
				Phase:       ir.PhaseResolve,
				Kind:        ir.StatusInteractionDiscarded,
				Interaction: in.Key(),
				Message:     "guard disabled by resolved data",
			})
		default:
			out = append(out, ready{in: in, data: data})
		}
	}
	return out
}

// checkDeferred evaluates, with the resolved data, the guards of offers
// that were reported as deferred.
func (r *runner) checkDeferred(ctx context.Context, in ir.Interaction, reports map[string]ir.Report, data broker.Resolution) (bool, error) {
	for _, p := range in.Participants {
		offer, ok := reports[p.Component].Offer(p.Port)
		if !ok || !offer.Deferred {
			continue
		}
		enabled, err := r.byID[p.Component].CheckEnabledness(ctx, p.Port, data.For(p.Component))
		if err != nil {
			return false, err
		}
		if !enabled {
			return false, nil
		}
	}
	return true, nil
}

// fire commands every participant of every ready interaction concurrently
// and releases the other reporters with Skip. It returns after every
// command has been acknowledged or has failed.
func (r *runner) fire(ctx context.Context, n int64, span trace.Span, firing []ready, reports []ir.Report) int {
	e := r.engine
	participating := make(map[string]bool)
	acks := make([][]error, len(firing))

	var g errgroup.Group
	for i, rd := range firing {
		i, rd := i, rd
		acks[i] = make([]error, len(rd.in.Participants))
		for j, p := range rd.in.Participants {
			j, p := j, p
			participating[p.Component] = true
			x := r.byID[p.Component]
			g.Go(func() error {
				fctx, cancel := context.WithTimeout(ctx, e.roundTimeout)
				defer cancel()
				acks[i][j] = x.Execute(fctx, p.Port, rd.data.For(p.Component))
				return nil
			})
		}
	}
	for _, rep := range reports {
		if participating[rep.Component] {
			continue
		}
		x := r.byID[rep.Component]
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, e.roundTimeout)
			defer cancel()
			if err := x.Skip(sctx); err != nil {
				e.logger.Debug("skip not acknowledged", "component", x.ID(), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	fired := 0
	for i, rd := range firing {
		failed := false
		for j, err := range acks[i] {
			if err == nil {
				continue
			}
			failed = true
			p := rd.in.Participants[j]
			span.RecordError(err)
			e.emit(ctx, n, ir.StatusEvent{
				Phase:       ir.PhaseAwait,
				Kind:        ir.StatusFireFailed,
				Component:   p.Component,
				Port:        p.Port,
				Interaction: rd.in.Key(),
				Code:        ir.CodeOf(err),
				Message:     err.Error(),
			})
		}
		if failed {
			span.SetStatus(codes.Error, "fire failed")
			continue
		}
		fired++
		e.emit(ctx, n, ir.StatusEvent{
			Phase:       ir.PhaseFire,
			Kind:        ir.StatusInteractionFired,
			Interaction: rd.in.Key(),
		})
		if e.store != nil {
			if err := e.store.WriteFiring(ctx, ir.NewFiringRecord(e.runID, n, rd.in)); err != nil {
				e.logger.Error("journal write failed", "interaction", rd.in.Key(), "error", err)
			}
		}
	}
	return fired
}

// portOf extracts the port an error is located at, if any.
func portOf(err error) string {
	var ie *ir.Error
	if errors.As(err, &ie) {
		return ie.Port
	}
	return ""
}
