package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bip/internal/behavior"
	"github.com/roach88/bip/internal/ir"
)

type notifyRecorder struct {
	mu    sync.Mutex
	calls []string
	ch    chan string
}

func newNotifyRecorder() *notifyRecorder {
	return &notifyRecorder{ch: make(chan string, 16)}
}

func (r *notifyRecorder) Notify(component string) {
	r.mu.Lock()
	r.calls = append(r.calls, component)
	r.mu.Unlock()
	select {
	case r.ch <- component:
	default:
	}
}

// lampSpec: off --on--> on --off--> off; press is spontaneous and arms the
// lamp; an internal transition moves from "blink" back to "off".
func lampSpec() *behavior.Spec {
	return behavior.NewBuilder("Lamp").
		Initial("off").
		Port("on", ir.PortEnforceable).
		Port("off", ir.PortEnforceable).
		Port("press", ir.PortSpontaneous).
		Port("show", ir.PortEnforceable).
		Guard(behavior.Guard{Name: "armed", Eval: func(d map[string]any) (bool, error) {
			armed, _ := d["armed"].(bool)
			return armed, nil
		}}).
		Guard(behavior.Guard{Name: "bright", DataIn: []string{"level"}, Eval: func(d map[string]any) (bool, error) {
			level, _ := d["level"].(int)
			return level > 5, nil
		}}).
		Transition(behavior.Transition{Port: "on", Source: "off", Target: "on", Guard: "armed"}).
		Transition(behavior.Transition{Port: "off", Source: "on", Target: "off"}).
		Transition(behavior.Transition{Port: "press", Source: "off", Target: "off",
			Action: func(_ context.Context, d map[string]any) error {
				d["armed"] = true
				return nil
			}}).
		Transition(behavior.Transition{Port: "show", Source: "on", Target: "blink", Guard: "bright", DataIn: []string{"level"}}).
		Transition(behavior.Transition{Source: "blink", Target: "off"}).
		Data(behavior.DataOut{Name: "armed", Access: []ir.PortRef{{Port: "on"}}}).
		Value("armed", false).
		MustBuild()
}

func startExecutor(t *testing.T, id string, spec *behavior.Spec, opts ...Option) *Executor {
	t.Helper()
	e := New(id, spec, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	e.Start(ctx)
	t.Cleanup(func() {
		cancel()
		e.Close()
	})
	return e
}

func ctxT(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func offeredPorts(r ir.Report) []string {
	var out []string
	for _, o := range r.Offers {
		out = append(out, o.Port)
	}
	return out
}

func TestExecutor_StepExecute(t *testing.T) {
	e := startExecutor(t, "lamp", lampSpec())
	ctx := ctxT(t)

	rep, err := e.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, "lamp", rep.Component)
	assert.Equal(t, "Lamp", rep.Spec)
	assert.Equal(t, "off", rep.State)
	// Not armed, and spontaneous ports are never offered.
	assert.Empty(t, rep.Offers)
	assert.Equal(t, []string{"armed"}, rep.DataOut)
	require.NoError(t, e.Skip(ctx))

	require.NoError(t, e.SetData(ctx, "armed", true, ir.PortRef{}))

	rep, err = e.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"on"}, offeredPorts(rep))

	require.NoError(t, e.Execute(ctx, "on", nil))
	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "on", snap.State)
	assert.False(t, snap.Pending)
}

func TestExecutor_ExecuteWithoutReport(t *testing.T) {
	e := startExecutor(t, "lamp", lampSpec())
	ctx := ctxT(t)

	err := e.Execute(ctx, "on", nil)
	require.Error(t, err)
	assert.True(t, ir.IsLifecycle(err))

	_, err = e.Step(ctx)
	require.NoError(t, err)
	err = e.Execute(ctx, "off", nil)
	require.Error(t, err)
	assert.Equal(t, ir.ErrCodeFireFailed, ir.CodeOf(err))
}

func TestExecutor_NotStarted(t *testing.T) {
	e := New("lamp", lampSpec())
	_, err := e.Step(context.Background())
	assert.True(t, ir.IsLifecycle(err))
	e.Close()
}

func TestExecutor_InformHeldWhileReportPending(t *testing.T) {
	rec := newNotifyRecorder()
	e := startExecutor(t, "lamp", lampSpec())
	require.NoError(t, e.Register(rec))
	ctx := ctxT(t)

	_, err := e.Step(ctx)
	require.NoError(t, err)

	require.NoError(t, e.Inform("press", nil))

	// The report is pending: the event must not be consumed yet.
	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Pending)
	assert.Equal(t, 1, snap.Informs)
	assert.Equal(t, false, snap.Values["armed"])

	require.NoError(t, e.Skip(ctx))

	snap, err = e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Informs)
	assert.Equal(t, true, snap.Values["armed"])

	select {
	case c := <-rec.ch:
		assert.Equal(t, "lamp", c)
	case <-ctx.Done():
		t.Fatal("coordinator was not notified")
	}
}

func TestExecutor_InformWaitsForEnabledState(t *testing.T) {
	e := startExecutor(t, "lamp", lampSpec())
	ctx := ctxT(t)

	require.NoError(t, e.SetData(ctx, "armed", true, ir.PortRef{}))
	_, err := e.Step(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Execute(ctx, "on", nil))

	// press is not enabled in "on"; the event stays queued.
	require.NoError(t, e.SetData(ctx, "armed", false, ir.PortRef{}))
	require.NoError(t, e.Inform("press", nil))
	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Informs)

	_, err = e.Step(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Execute(ctx, "off", nil))

	snap, err = e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "off", snap.State)
	assert.Equal(t, 0, snap.Informs)
	assert.Equal(t, true, snap.Values["armed"])
}

func TestExecutor_InformRejectsNonSpontaneous(t *testing.T) {
	e := startExecutor(t, "lamp", lampSpec())
	assert.True(t, ir.IsLifecycle(e.Inform("on", nil)))
	assert.True(t, ir.IsLifecycle(e.Inform("ghost", nil)))
}

func TestExecutor_DeferredGuardAndInternalChain(t *testing.T) {
	e := startExecutor(t, "lamp", lampSpec())
	ctx := ctxT(t)

	require.NoError(t, e.SetData(ctx, "armed", true, ir.PortRef{}))
	_, err := e.Step(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Execute(ctx, "on", nil))

	rep, err := e.Step(ctx)
	require.NoError(t, err)
	require.Len(t, rep.Offers, 2)
	show, ok := rep.Offer("show")
	require.True(t, ok)
	assert.True(t, show.Deferred)
	assert.Equal(t, []string{"level"}, show.DataIn)

	ok, err = e.CheckEnabledness(ctx, "show", map[string]any{"level": 3})
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = e.CheckEnabledness(ctx, "show", map[string]any{"level": 9})
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, e.Execute(ctx, "show", map[string]any{"level": 9}))

	// blink -> off is internal and taken at the safe point after firing.
	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "off", snap.State)
}

func TestExecutor_InternalChainBounded(t *testing.T) {
	spec := behavior.NewBuilder("Spin").
		Initial("a").
		Port("p", ir.PortEnforceable).
		Transition(behavior.Transition{Port: "p", Source: "a", Target: "a"}).
		Transition(behavior.Transition{Source: "a", Target: "b"}).
		Transition(behavior.Transition{Source: "b", Target: "a"}).
		MustBuild()
	e := startExecutor(t, "spin", spec, WithMaxInternalChain(3))
	ctx := ctxT(t)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	// a->b->a->b, then the bound stops the chain.
	assert.Equal(t, "b", snap.State)
}

func TestExecutor_GetDataAccess(t *testing.T) {
	e := startExecutor(t, "lamp", lampSpec())
	ctx := ctxT(t)

	v, err := e.GetData(ctx, "armed", ir.MustPortRef("Switch.flip"), "on")
	require.NoError(t, err)
	assert.Equal(t, false, v)

	_, err = e.GetData(ctx, "armed", ir.MustPortRef("Switch.flip"), "off")
	assert.True(t, ir.IsAccessViolation(err))
}

func TestExecutor_SetDataHeldWhilePending(t *testing.T) {
	e := startExecutor(t, "lamp", lampSpec())
	ctx := ctxT(t)

	_, err := e.Step(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.SetData(ctx, "armed", true, ir.PortRef{}) }()

	select {
	case <-done:
		t.Fatal("write applied while a report was pending")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, e.Skip(ctx))
	require.NoError(t, <-done)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, true, snap.Values["armed"])
}

func TestExecutor_StepTimeout(t *testing.T) {
	block := make(chan struct{})
	spec := behavior.NewBuilder("Slow").
		Initial("s").
		Port("go", ir.PortEnforceable).
		Transition(behavior.Transition{Port: "go", Source: "s", Target: "s",
			Action: func(context.Context, map[string]any) error {
				<-block
				return nil
			}}).
		MustBuild()
	e := startExecutor(t, "slow", spec)
	defer close(block)
	ctx := ctxT(t)

	_, err := e.Step(ctx)
	require.NoError(t, err)

	fired := make(chan error, 1)
	go func() { fired <- e.Execute(ctx, "go", nil) }()

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = e.Step(short)
	require.Error(t, err)
	assert.True(t, ir.IsExecutorTimeout(err))
}

func TestExecutor_AbandonedExecuteDoesNotFire(t *testing.T) {
	e := startExecutor(t, "lamp", lampSpec())
	ctx := ctxT(t)

	require.NoError(t, e.SetData(ctx, "armed", true, ir.PortRef{}))
	rep, err := e.Step(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"on"}, offeredPorts(rep))

	gone, cancel := context.WithCancel(context.Background())
	cancel()
	err = e.Execute(gone, "on", nil)
	require.Error(t, err)
	assert.True(t, ir.IsExecutorTimeout(err))

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "off", snap.State)
	assert.False(t, snap.Pending)

	// The next round starts from the unchanged state.
	rep, err = e.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, "off", rep.State)
	require.NoError(t, e.Execute(ctx, "on", nil))
}

func TestExecutor_SnapshotCountsQueued(t *testing.T) {
	entered := make(chan struct{})
	block := make(chan struct{})
	spec := behavior.NewBuilder("Slow").
		Initial("s").
		Port("go", ir.PortEnforceable).
		Transition(behavior.Transition{Port: "go", Source: "s", Target: "s",
			Action: func(context.Context, map[string]any) error {
				close(entered)
				<-block
				return nil
			}}).
		MustBuild()
	e := startExecutor(t, "slow", spec)
	ctx := ctxT(t)

	_, err := e.Step(ctx)
	require.NoError(t, err)
	go func() { _ = e.Execute(ctx, "go", nil) }()
	<-entered

	snaps := make(chan Snapshot, 1)
	go func() {
		snap, _ := e.Snapshot(ctx)
		snaps <- snap
	}()
	require.Eventually(t, func() bool { return e.inbox.Len() == 1 }, time.Second, time.Millisecond)
	go func() { _, _ = e.Step(ctx) }()
	require.Eventually(t, func() bool { return e.inbox.Len() == 2 }, time.Second, time.Millisecond)

	close(block)
	select {
	case snap := <-snaps:
		assert.Equal(t, 1, snap.Queued)
	case <-ctx.Done():
		t.Fatal("snapshot not answered")
	}
}

func TestExecutor_CloseWithoutStart(t *testing.T) {
	e := New("lamp", lampSpec())
	e.Close()

	select {
	case <-e.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed")
	}
	assert.NotPanics(t, func() { e.Start(context.Background()) })
	_, err := e.Step(context.Background())
	assert.True(t, ir.IsLifecycle(err))
}

func TestExecutor_RegisterTwice(t *testing.T) {
	e := New("lamp", lampSpec())
	a, b := newNotifyRecorder(), newNotifyRecorder()
	require.NoError(t, e.Register(a))
	require.NoError(t, e.Register(a))
	assert.True(t, ir.IsLifecycle(e.Register(b)))
	e.Deregister()
	assert.NoError(t, e.Register(b))
}

func TestExecutor_CloseAnswersQueued(t *testing.T) {
	e := New("lamp", lampSpec())
	e.Start(context.Background())
	e.Close()

	_, err := e.Step(context.Background())
	require.Error(t, err)
	assert.True(t, ir.IsLifecycle(err))
	assert.True(t, ir.IsLifecycle(e.Inform("press", nil)))
}

func TestExecutor_Handle(t *testing.T) {
	a := New("x", lampSpec())
	b := New("x", lampSpec())
	assert.NotEqual(t, a.Handle(), b.Handle())
	assert.Len(t, a.Handle(), 36)
	assert.Equal(t, "x", a.ID())
}
