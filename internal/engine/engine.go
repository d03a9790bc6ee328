package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/bip/internal/behavior"
	"github.com/roach88/bip/internal/executor"
	"github.com/roach88/bip/internal/glue"
	"github.com/roach88/bip/internal/ir"
	"github.com/roach88/bip/internal/store"
)

const (
	// DefaultRoundTimeout bounds each executor command of a round.
	DefaultRoundTimeout = 5 * time.Second

	// DefaultIdleInterval is how long the loop waits after a round that
	// fired nothing, unless an executor notifies it first.
	DefaultIdleInterval = 50 * time.Millisecond

	// DefaultMaxInteractionSize bounds the number of ports in one
	// enumerated interaction.
	DefaultMaxInteractionSize = 8

	// DefaultSearchBudget bounds the selection search per conflict cluster.
	DefaultSearchBudget = 10000
)

const tracerName = "github.com/roach88/bip/internal/engine"

// Engine is the interaction coordinator.
//
// The host registers components, installs a glue set, starts the engine and
// enters the round loop with Execute. Each round runs COLLECT, COMPUTE,
// RESOLVE-DATA, FIRE and AWAIT; see round.go.
//
// Thread-safety model:
//   - Register, SpecifyGlue, Start, Execute, Stop, Close: safe from any
//     goroutine; misuse returns an EngineLifecycleError and leaves the
//     engine unchanged
//   - the round loop runs in one goroutine per run and is the only caller
//     of state-changing executor commands
//   - Notify: safe from any goroutine, never blocks
type Engine struct {
	mu        sync.Mutex
	state     lifecycle
	glue      *glue.Set
	executors map[string]*executor.Executor
	specs     map[string]*behavior.Spec // by component type

	// Per run. Written before the loop goroutine starts.
	runID    string
	stopping atomic.Bool
	stopRun  func()
	stopCh   chan struct{}
	loopDone chan struct{}
	runErr   error
	rounds   atomic.Int64

	wake chan struct{}

	emitMu      sync.Mutex
	subscribers []*subscriber

	// Context of executor goroutines, canceled by Close.
	execCtx    context.Context
	execCancel context.CancelFunc

	roundTimeout time.Duration
	idleInterval time.Duration
	maxRounds    int64
	searchBudget int
	maxSize      int
	store        *store.Store
	observers    []Observer
	tracer       trace.Tracer
	runIDs       RunIDGenerator
	clock        *Clock
	logger       *slog.Logger
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithRoundTimeout bounds every executor command issued in a round.
// Non-positive values keep DefaultRoundTimeout.
func WithRoundTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.roundTimeout = d
		}
	}
}

// WithIdleInterval sets the wait after a round that fired nothing.
func WithIdleInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.idleInterval = d
		}
	}
}

// WithMaxRounds makes the loop stop itself after n rounds. Zero means no
// limit.
func WithMaxRounds(n int64) EngineOption {
	return func(e *Engine) {
		e.maxRounds = n
	}
}

// WithSearchBudget sets the node budget of the selection search.
func WithSearchBudget(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.searchBudget = n
		}
	}
}

// WithMaxInteractionSize bounds the size of enumerated interactions.
func WithMaxInteractionSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxSize = n
		}
	}
}

// WithStore journals runs, status events and firings to s.
func WithStore(s *store.Store) EngineOption {
	return func(e *Engine) {
		e.store = s
	}
}

// WithObserver adds an observer of status events.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		e.observers = append(e.observers, o)
	}
}

// WithTracer sets the tracer used for round spans. The default is the
// global otel tracer provider.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithRunIDGenerator sets how run ids are produced.
func WithRunIDGenerator(g RunIDGenerator) EngineOption {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// WithClock sets the clock stamping event seqs.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the logger of the engine and its executors.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an idle engine.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		executors:    make(map[string]*executor.Executor),
		specs:        make(map[string]*behavior.Spec),
		wake:         make(chan struct{}, 1),
		roundTimeout: DefaultRoundTimeout,
		idleInterval: DefaultIdleInterval,
		searchBudget: DefaultSearchBudget,
		maxSize:      DefaultMaxInteractionSize,
		runIDs:       UUIDv7Generator{},
		clock:        NewClock(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	e.execCtx, e.execCancel = context.WithCancel(context.Background())
	return e
}

// Register creates the executor of a component instance and binds it to
// the engine. With autoStart the executor goroutine starts at once, so the
// component can take internal and informed transitions before the engine
// starts; otherwise Start launches it.
//
// Registration is refused while a run is in progress.
func (e *Engine) Register(spec *behavior.Spec, id string, autoStart bool) (*executor.Executor, error) {
	if spec == nil {
		return nil, ir.Errorf(ir.ErrCodeConfiguration, "component %s has no behavior", id)
	}
	if id == "" {
		return nil, ir.Errorf(ir.ErrCodeConfiguration, "component id cannot be empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == stateRunning || e.state == stateClosed {
		return nil, misuse("register", e.state)
	}
	if _, dup := e.executors[id]; dup {
		return nil, ir.Errorf(ir.ErrCodeConfiguration, "component %s already registered", id)
	}
	if prev, ok := e.specs[spec.Type()]; ok && prev != spec && prev.Fingerprint() != spec.Fingerprint() {
		return nil, ir.Errorf(ir.ErrCodeConfiguration, "component type %s registered with two different behaviors", spec.Type())
	}

	x := executor.New(id, spec, executor.WithLogger(e.logger))
	if err := x.Register(e); err != nil {
		return nil, err
	}
	e.executors[id] = x
	e.specs[spec.Type()] = spec
	if autoStart || e.state == stateStarted {
		x.Start(e.execCtx)
	}

	e.logger.Debug("component registered",
		"component", id,
		"type", spec.Type(),
		"handle", x.Handle(),
	)
	return x, nil
}

// Deregister removes a component instance and closes its executor.
func (e *Engine) Deregister(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == stateRunning || e.state == stateClosed {
		return misuse("deregister", e.state)
	}
	x, ok := e.executors[id]
	if !ok {
		return ir.Errorf(ir.ErrCodeLifecycle, "component %s is not registered", id)
	}
	delete(e.executors, id)
	x.Deregister()
	x.Close()

	typ := x.Spec().Type()
	for _, other := range e.executors {
		if other.Spec().Type() == typ {
			return nil
		}
	}
	delete(e.specs, typ)
	return nil
}

// SpecifyGlue installs the glue of the next run, replacing any previous
// one. It is refused while a run is in progress. Once the engine has
// started, the glue is validated against the registered components here
// and a ConfigurationError leaves the previous glue in place.
func (e *Engine) SpecifyGlue(set *glue.Set) error {
	if set == nil {
		return ir.Errorf(ir.ErrCodeConfiguration, "glue cannot be nil")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == stateRunning || e.state == stateClosed {
		return misuse("specify glue", e.state)
	}
	if e.state == stateStarted {
		if err := set.Validate(e.specs); err != nil {
			return err
		}
	}
	e.glue = set
	return nil
}

// Start validates the glue against the registered components and starts
// every executor. ConfigurationErrors are returned before anything starts.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateIdle {
		return misuse("start", e.state)
	}
	if e.glue == nil {
		return ir.Errorf(ir.ErrCodeLifecycle, "start: glue not specified")
	}
	if err := e.glue.Validate(e.specs); err != nil {
		return err
	}

	for _, x := range e.executors {
		x.Start(e.execCtx)
	}
	e.state = stateStarted
	e.logger.Info("engine started",
		"components", len(e.executors),
		"glue", e.glue.Fingerprint(),
	)
	return nil
}

// Execute enters the round loop in a new goroutine and returns at once.
// The loop runs until Stop, until ctx is canceled or until the configured
// number of rounds has run. A round in flight always completes, even when
// ctx is canceled.
func (e *Engine) Execute(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateStarted {
		return misuse("execute", e.state)
	}

	runID := e.runIDs.Generate()
	if e.store != nil {
		err := e.store.WriteRun(ctx, ir.RunRecord{
			ID:              runID,
			GlueFingerprint: e.glue.Fingerprint(),
			Components:      len(e.executors),
			EngineVersion:   ir.EngineVersion,
			IRVersion:       ir.IRVersion,
		})
		if err != nil {
			return fmt.Errorf("execute: %w", err)
		}
	}

	stopCh := make(chan struct{})
	e.runID = runID
	e.runErr = nil
	e.rounds.Store(0)
	e.stopping.Store(false)
	e.stopCh = stopCh
	e.stopRun = sync.OnceFunc(func() { close(stopCh) })
	e.loopDone = make(chan struct{})
	e.state = stateRunning

	go e.loop(ctx, e.sortedExecutors(), e.glue, stopCh, e.loopDone)
	return nil
}

// Stop asks the loop to halt and waits for it. The round in flight is
// completed through AWAIT; when Stop returns, no executor command will be
// issued by the loop. Stop on a started engine with no run is a no-op.
func (e *Engine) Stop() error {
	e.mu.Lock()
	switch e.state {
	case stateStarted:
		e.mu.Unlock()
		return nil
	case stateRunning:
	default:
		s := e.state
		e.mu.Unlock()
		return misuse("stop", s)
	}
	e.stopping.Store(true)
	e.stopRun()
	done := e.loopDone
	e.mu.Unlock()

	<-done
	return nil
}

// Wait blocks until the current run ends and returns its error.
func (e *Engine) Wait() error {
	e.mu.Lock()
	done := e.loopDone
	e.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runErr
}

// Done is closed when the current run ends. Before any run it is closed.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loopDone == nil {
		c := make(chan struct{})
		close(c)
		return c
	}
	return e.loopDone
}

// Run starts the engine if needed, executes one run and waits for it.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	idle := e.state == stateIdle
	e.mu.Unlock()
	if idle {
		if err := e.Start(); err != nil {
			return err
		}
	}
	if err := e.Execute(ctx); err != nil {
		return err
	}
	return e.Wait()
}

// Close stops any run, closes every executor and makes the engine
// unusable. Closing twice is a no-op.
func (e *Engine) Close() error {
	// Stop fails only when there is no run to stop.
	_ = e.Stop()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == stateClosed {
		return nil
	}
	for _, x := range e.executors {
		x.Deregister()
		x.Close()
	}
	e.execCancel()
	e.state = stateClosed
	e.logger.Info("engine closed")
	return nil
}

// Notify implements executor.Coordinator: a component changed state outside
// a round, so an idle loop should look again.
func (e *Engine) Notify(component string) {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Executor returns the executor of a registered component.
func (e *Engine) Executor(id string) (*executor.Executor, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	x, ok := e.executors[id]
	return x, ok
}

// Components returns the registered component ids, sorted.
func (e *Engine) Components() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.executors))
	for id := range e.executors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RunID returns the id of the current or last run.
func (e *Engine) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

// Rounds returns the number of rounds run by the current or last run.
func (e *Engine) Rounds() int64 {
	return e.rounds.Load()
}

// sortedExecutors must be called with mu held.
func (e *Engine) sortedExecutors() []*executor.Executor {
	out := make([]*executor.Executor, 0, len(e.executors))
	for _, x := range e.executors {
		out = append(out, x)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
