package executor

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/roach88/bip/internal/behavior"
	"github.com/roach88/bip/internal/ir"
)

// DefaultMaxInternalChain bounds how many internal transitions an executor
// takes in a row at one safe point.
const DefaultMaxInternalChain = 64

// Coordinator is the engine surface an executor binds to.
type Coordinator interface {
	// Notify tells the coordinator that component changed state outside a
	// round, so a new round may find work.
	Notify(component string)
}

// Snapshot is a consistent view of a component, taken between commands.
type Snapshot struct {
	Component string         `json:"component"`
	State     string         `json:"state"`
	Values    map[string]any `json:"values,omitempty"`
	Pending   bool           `json:"pending"`
	Informs   int            `json:"informs"`
	Queued    int            `json:"queued"` // commands behind this one
}

// Executor owns one component instance. All access to the component's
// Behavior happens on the executor goroutine, one command at a time.
//
// After Step returns a report, the behavior is frozen until Execute or Skip
// is received (or the next Step, which abandons the previous report).
// Informed events and data writes arriving meanwhile are held and applied at
// the next safe point.
type Executor struct {
	id       string
	handle   string
	spec     *behavior.Spec
	beh      *behavior.Behavior
	inbox    *inbox
	logger   *slog.Logger
	maxChain int

	mu          sync.Mutex
	coordinator Coordinator

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}

	// Owned by the executor goroutine.
	pending bool
	choices map[string][]int
	informs []command
	writes  []command
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithMaxInternalChain bounds consecutive internal transitions.
func WithMaxInternalChain(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxChain = n
		}
	}
}

// New creates an executor for component id running spec. The executor does
// nothing until Start.
func New(id string, spec *behavior.Spec, opts ...Option) *Executor {
	e := &Executor{
		id:       id,
		handle:   uuid.NewString(),
		spec:     spec,
		beh:      behavior.New(spec),
		inbox:    newInbox(),
		maxChain: DefaultMaxInternalChain,
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", id, "executor", e.handle)
	return e
}

// ID returns the component instance id.
func (e *Executor) ID() string { return e.id }

// Handle returns the unique handle of this executor.
func (e *Executor) Handle() string { return e.handle }

// Spec returns the component's behavior descriptor.
func (e *Executor) Spec() *behavior.Spec { return e.spec }

// Register binds the executor to a coordinator.
func (e *Executor) Register(c Coordinator) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.coordinator != nil && e.coordinator != c {
		return ir.Errorf(ir.ErrCodeLifecycle, "executor already registered").At(e.id, "")
	}
	e.coordinator = c
	return nil
}

// Deregister unbinds the executor from its coordinator.
func (e *Executor) Deregister() {
	e.mu.Lock()
	e.coordinator = nil
	e.mu.Unlock()
}

// Start launches the executor goroutine. Actions taken outside a commanded
// Execute (internal and spontaneous transitions) run with ctx. Calling Start
// again has no effect.
func (e *Executor) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		e.started.Store(true)
		go e.run(ctx)
	})
}

// Close stops the executor and waits for its goroutine to exit. Commands
// still queued are answered with an EngineLifecycleError.
func (e *Executor) Close() {
	e.closeOnce.Do(func() { close(e.closing) })
	// Never started: no goroutine will close done, and Start becomes a no-op.
	e.startOnce.Do(func() { close(e.done) })
	<-e.done
}

// Done is closed when the executor goroutine has exited.
func (e *Executor) Done() <-chan struct{} {
	return e.done
}

// Step reports the ports ready in the current state and freezes the
// behavior until Execute or Skip. If ctx expires first, an ExecutorTimeout
// is returned.
func (e *Executor) Step(ctx context.Context) (ir.Report, error) {
	r, err := e.call(ctx, command{kind: cmdStep})
	return r.report, err
}

// Execute fires the transition chosen for port in the last report. data
// holds the resolved data-in values.
func (e *Executor) Execute(ctx context.Context, port string, data map[string]any) error {
	_, err := e.call(ctx, command{kind: cmdExecute, port: port, data: data})
	return err
}

// Skip releases the last report without firing.
func (e *Executor) Skip(ctx context.Context) error {
	_, err := e.call(ctx, command{kind: cmdSkip})
	return err
}

// CheckEnabledness re-evaluates the guards of an offered port with resolved
// data. It is used for offers whose guards depend on other components' data.
func (e *Executor) CheckEnabledness(ctx context.Context, port string, data map[string]any) (bool, error) {
	r, err := e.call(ctx, command{kind: cmdCheck, port: port, data: data})
	return r.ok, err
}

// Inform signals a spontaneous event on port. It never blocks; the event is
// consumed at the next safe point where port has an enabled transition.
func (e *Executor) Inform(port string, data map[string]any) error {
	p, ok := e.spec.Port(port)
	if !ok {
		return ir.Errorf(ir.ErrCodeLifecycle, "inform on unknown port").At(e.id, port)
	}
	if p.Kind != ir.PortSpontaneous {
		return ir.Errorf(ir.ErrCodeLifecycle, "inform on %s port", p.Kind).At(e.id, port)
	}
	if !e.inbox.Put(command{kind: cmdInform, port: port, data: maps.Clone(data)}) {
		return ir.Errorf(ir.ErrCodeLifecycle, "executor closed").At(e.id, port)
	}
	return nil
}

// GetData reads data-out name on behalf of reader. via is the port through
// which this component takes part in the reader's interaction.
func (e *Executor) GetData(ctx context.Context, name string, reader ir.PortRef, via string) (any, error) {
	r, err := e.call(ctx, command{kind: cmdGetData, name: name, ref: reader, via: via})
	return r.value, err
}

// SetData writes a local value on behalf of writer (zero for the owner).
// While a report is pending the write waits for the next safe point.
func (e *Executor) SetData(ctx context.Context, name string, value any, writer ir.PortRef) error {
	_, err := e.call(ctx, command{kind: cmdSetData, name: name, value: value, ref: writer})
	return err
}

// Snapshot returns the component's current state and local values.
func (e *Executor) Snapshot(ctx context.Context) (Snapshot, error) {
	r, err := e.call(ctx, command{kind: cmdSnapshot})
	return r.snap, err
}

func (e *Executor) call(ctx context.Context, c command) (result, error) {
	if !e.started.Load() {
		return result{}, ir.Errorf(ir.ErrCodeLifecycle, "executor not started").At(e.id, c.port)
	}
	c.ctx = ctx
	c.reply = make(chan result, 1)
	if !e.inbox.Put(c) {
		return result{}, ir.Errorf(ir.ErrCodeLifecycle, "executor closed").At(e.id, c.port)
	}
	select {
	case r := <-c.reply:
		return r, r.err
	case <-ctx.Done():
		return result{}, ir.Errorf(ir.ErrCodeExecutorTimeout, "%s not answered", c.kind).At(e.id, c.port).Wrap(ctx.Err())
	case <-e.done:
		select {
		case r := <-c.reply:
			return r, r.err
		default:
			return result{}, ir.Errorf(ir.ErrCodeLifecycle, "executor closed").At(e.id, c.port)
		}
	}
}

func (e *Executor) run(ctx context.Context) {
	defer close(e.done)
	e.safePoint(ctx)
	for {
		for {
			select {
			case <-e.closing:
				e.shutdown()
				return
			default:
			}
			c, ok := e.inbox.TryTake()
			if !ok {
				break
			}
			e.dispatch(ctx, c)
		}

		select {
		case <-ctx.Done():
			e.shutdown()
			return
		case <-e.closing:
			e.shutdown()
			return
		case <-e.inbox.Wait():
		}
	}
}

func (e *Executor) shutdown() {
	closed := ir.Errorf(ir.ErrCodeLifecycle, "executor closed").At(e.id, "")
	for _, c := range append(e.inbox.Close(), e.writes...) {
		if c.reply != nil {
			c.reply <- result{err: closed}
		}
	}
	e.writes = nil
	e.logger.Debug("executor stopped", "state", e.beh.CurrentState(), "dropped_informs", len(e.informs))
}

func (e *Executor) dispatch(ctx context.Context, c command) {
	switch c.kind {
	case cmdStep:
		// A new step abandons any previous report.
		e.pending = false
		e.safePoint(ctx)
		rep := e.report()
		// A caller that gave up must not leave the behavior frozen.
		e.pending = c.ctx.Err() == nil
		c.reply <- result{report: rep}

	case cmdExecute:
		var err error
		if ctxErr := c.ctx.Err(); ctxErr != nil {
			// The caller already reported this fire as failed.
			err = ir.Errorf(ir.ErrCodeExecutorTimeout, "execute %s abandoned", c.port).At(e.id, c.port).Wrap(ctxErr)
		} else {
			err = e.execute(c.ctx, c.port, c.data)
		}
		e.pending = false
		e.safePoint(ctx)
		c.reply <- result{err: err}

	case cmdSkip:
		e.pending = false
		e.safePoint(ctx)
		c.reply <- result{}

	case cmdCheck:
		ok, err := e.check(c.port, c.data)
		c.reply <- result{ok: ok, err: err}

	case cmdGetData:
		v, err := e.beh.ReadData(c.name, c.ref, c.via)
		c.reply <- result{value: v, err: err}

	case cmdSetData:
		if e.pending {
			e.writes = append(e.writes, c)
			return
		}
		c.reply <- result{err: e.beh.WriteData(c.name, c.value, c.ref)}
		e.notify()

	case cmdInform:
		e.informs = append(e.informs, c)
		e.safePoint(ctx)

	case cmdSnapshot:
		c.reply <- result{snap: Snapshot{
			Component: e.id,
			State:     e.beh.CurrentState(),
			Values:    e.beh.Values(),
			Pending:   e.pending,
			Informs:   len(e.informs),
			Queued:    e.inbox.Len(),
		}}
	}
}

// report computes the offers of the current state. For each enforceable
// port the first transition (in declaration order) whose guard holds is
// chosen. When none holds but some transitions have guards that depend on
// other components' data, the port is offered as deferred.
func (e *Executor) report() ir.Report {
	state := e.beh.CurrentState()
	rep := ir.Report{
		Component: e.id,
		Spec:      e.spec.Type(),
		State:     state,
		DataOut:   e.spec.DataNames(),
	}
	e.choices = make(map[string][]int)

	for _, p := range e.beh.EnabledPorts() {
		if p.Kind != ir.PortEnforceable {
			continue
		}
		ready := -1
		var deferred []int
		for _, idx := range e.spec.TransitionsFrom(state, p.ID) {
			if e.spec.Deferred(idx) {
				deferred = append(deferred, idx)
				continue
			}
			ok, err := e.beh.EvaluateGuard(idx, nil)
			if err != nil {
				rep.Faults = append(rep.Faults, err)
				e.logger.Warn("guard evaluation failed", "port", p.ID, "error", err)
				continue
			}
			if ok {
				ready = idx
				break
			}
		}

		switch {
		case ready >= 0:
			e.choices[p.ID] = []int{ready}
			rep.Offers = append(rep.Offers, ir.Offer{Port: p.ID, DataIn: e.spec.Transition(ready).DataIn})
		case len(deferred) > 0:
			e.choices[p.ID] = deferred
			var need []string
			for _, idx := range deferred {
				for _, names := range [][]string{e.spec.Transition(idx).DataIn, e.spec.GuardData(idx)} {
					for _, d := range names {
						if !slices.Contains(need, d) {
							need = append(need, d)
						}
					}
				}
			}
			rep.Offers = append(rep.Offers, ir.Offer{Port: p.ID, DataIn: need, Deferred: true})
		}
	}

	e.logger.Debug("executor step", "state", state, "offers", len(rep.Offers))
	return rep
}

// pick returns the first offered transition for port whose guard holds with
// data, or -1.
func (e *Executor) pick(port string, data map[string]any) (int, error) {
	if !e.pending {
		return -1, ir.Errorf(ir.ErrCodeLifecycle, "no pending report").At(e.id, port)
	}
	idxs, ok := e.choices[port]
	if !ok {
		return -1, ir.Errorf(ir.ErrCodeFireFailed, "port was not offered").At(e.id, port)
	}
	var firstErr error
	for _, idx := range idxs {
		ok, err := e.beh.EvaluateGuard(idx, data)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return idx, nil
		}
	}
	return -1, firstErr
}

func (e *Executor) check(port string, data map[string]any) (bool, error) {
	idx, err := e.pick(port, data)
	if idx < 0 {
		return false, err
	}
	return true, nil
}

func (e *Executor) execute(ctx context.Context, port string, data map[string]any) error {
	idx, err := e.pick(port, data)
	if idx < 0 {
		if err == nil {
			err = ir.Errorf(ir.ErrCodeFireFailed, "no transition enabled").At(e.id, port)
		}
		return err
	}
	from := e.beh.CurrentState()
	if err := e.beh.Fire(ctx, idx, data); err != nil {
		e.logger.Warn("transition failed", "port", port, "state", from, "error", err)
		return err
	}
	e.logger.Debug("transition fired", "port", port, "from", from, "to", e.beh.CurrentState())
	return nil
}

// safePoint applies held writes, then takes internal transitions and
// consumes informed events until neither makes progress. It does nothing
// while a report is pending.
func (e *Executor) safePoint(ctx context.Context) {
	if e.pending {
		return
	}
	changed := false
	for _, w := range e.writes {
		w.reply <- result{err: e.beh.WriteData(w.name, w.value, w.ref)}
		changed = true
	}
	e.writes = nil

	if e.runInternal(ctx) {
		changed = true
	}
	for progress := true; progress; {
		progress = false
		for i, ev := range e.informs {
			fired, consumed := e.fireSpontaneous(ctx, ev)
			if !consumed {
				continue
			}
			e.informs = slices.Delete(e.informs, i, i+1)
			if fired {
				changed = true
				e.runInternal(ctx)
			}
			progress = true
			break
		}
	}
	if changed {
		e.notify()
	}
}

// runInternal takes enabled internal transitions, at most maxChain of them.
func (e *Executor) runInternal(ctx context.Context) bool {
	fired := false
	for n := 0; ; n++ {
		idx := -1
		for _, i := range e.spec.TransitionsFrom(e.beh.CurrentState(), "") {
			ok, err := e.beh.EvaluateGuard(i, nil)
			if err != nil {
				e.logger.Warn("guard evaluation failed", "port", "", "error", err)
				continue
			}
			if ok {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fired
		}
		if n >= e.maxChain {
			e.logger.Warn("internal transition chain limit reached", "limit", e.maxChain, "state", e.beh.CurrentState())
			return fired
		}
		if err := e.beh.Fire(ctx, idx, nil); err != nil {
			e.logger.Warn("internal transition failed", "error", err)
			return fired
		}
		fired = true
	}
}

// fireSpontaneous fires ev if its port is enabled. An event whose
// transition failed is consumed without firing.
func (e *Executor) fireSpontaneous(ctx context.Context, ev command) (fired, consumed bool) {
	for _, idx := range e.spec.TransitionsFrom(e.beh.CurrentState(), ev.port) {
		ok, err := e.beh.EvaluateGuard(idx, ev.data)
		if err != nil {
			e.logger.Warn("guard evaluation failed", "port", ev.port, "error", err)
			continue
		}
		if !ok {
			continue
		}
		if err := e.beh.Fire(ctx, idx, ev.data); err != nil {
			e.logger.Warn("spontaneous transition failed", "port", ev.port, "error", err)
			return false, true
		}
		e.logger.Debug("spontaneous transition fired", "port", ev.port, "to", e.beh.CurrentState())
		return true, true
	}
	return false, false
}

func (e *Executor) notify() {
	e.mu.Lock()
	c := e.coordinator
	e.mu.Unlock()
	if c != nil {
		c.Notify(e.id)
	}
}
