package behavior

import (
	"context"
	"fmt"
	"maps"

	"github.com/roach88/bip/internal/ir"
)

// Behavior is the runtime instance of a Spec. It holds the single mutable
// current state and the local data values of one component.
//
// Behavior is not safe for concurrent use. Exactly one executor owns it.
type Behavior struct {
	spec   *Spec
	state  string
	values map[string]any
}

// New creates a behavior in the spec's initial state.
func New(spec *Spec) *Behavior {
	return &Behavior{
		spec:   spec,
		state:  spec.initial,
		values: maps.Clone(spec.values),
	}
}

// Spec returns the immutable descriptor.
func (b *Behavior) Spec() *Spec { return b.spec }

// CurrentState returns the current state.
func (b *Behavior) CurrentState() string { return b.state }

// EnabledPorts returns the ports structurally enabled in the current state.
func (b *Behavior) EnabledPorts() []ir.Port {
	return b.spec.EnabledPorts(b.state)
}

// Values returns a copy of the local data values.
func (b *Behavior) Values() map[string]any {
	return maps.Clone(b.values)
}

// EvaluateGuard evaluates the guard of transition i. The snapshot is
// overlaid on the local values before evaluation. Unguarded transitions are
// always enabled. Any failure, including a panic in a guard function, is
// returned as a GuardEvaluationError and the caller treats the port as
// disabled.
func (b *Behavior) EvaluateGuard(i int, snapshot map[string]any) (ok bool, err error) {
	if i < 0 || i >= len(b.spec.transitions) {
		return false, ir.Errorf(ir.ErrCodeGuardEvaluation, "unknown transition %d", i).At(b.spec.typ, "")
	}
	t := b.spec.transitions[i]
	if t.guard == nil {
		return true, nil
	}

	data := b.overlay(snapshot)
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = ir.Errorf(ir.ErrCodeGuardEvaluation, "guard %q panicked: %v", t.Guard, r).At(b.spec.typ, t.Port)
		}
	}()

	ok, err = t.guard.eval(func(name string) (bool, error) {
		return b.spec.guards[name].Eval(data)
	})
	if err != nil {
		return false, ir.Errorf(ir.ErrCodeGuardEvaluation, "guard %q", t.Guard).At(b.spec.typ, t.Port).Wrap(err)
	}
	return ok, nil
}

// ReadData returns the value of data-out name for reader. via is the port the
// owner participates through in the reader's interaction; an access entry
// naming one of the owner's own ports matches via.
func (b *Behavior) ReadData(name string, reader ir.PortRef, via string) (any, error) {
	d, ok := b.spec.data[name]
	if !ok {
		return nil, ir.Errorf(ir.ErrCodeMissingProvider, "no data-out %q", name).At(b.spec.typ, via)
	}
	if !b.allowed(d, reader, via) {
		return nil, ir.Errorf(ir.ErrCodeAccessViolation, "%s may not read %s.%s", reader, b.spec.typ, name).At(b.spec.typ, via)
	}
	if d.Get != nil {
		return d.Get(), nil
	}
	return b.values[name], nil
}

// WriteData sets a local value. A zero writer is the owner itself; any other
// writer must be in the datum's access list.
func (b *Behavior) WriteData(name string, v any, writer ir.PortRef) error {
	if !writer.IsZero() && writer.Spec != b.spec.typ {
		d, ok := b.spec.data[name]
		if !ok || !b.allowed(d, writer, "") {
			return ir.Errorf(ir.ErrCodeAccessViolation, "%s may not write %s.%s", writer, b.spec.typ, name).At(b.spec.typ, "")
		}
	}
	if b.values == nil {
		b.values = make(map[string]any)
	}
	b.values[name] = v
	return nil
}

func (b *Behavior) allowed(d DataOut, reader ir.PortRef, via string) bool {
	if d.AnyPort {
		return true
	}
	for _, r := range d.Access {
		if r == reader {
			return true
		}
		if via != "" && r.Spec == b.spec.typ && r.Port == via {
			return true
		}
	}
	return false
}

// Fire takes transition i. The action runs first over a copy of the local
// values overlaid with data; only when it succeeds are its writes applied and
// the state moved to the target. A failing or panicking action leaves the
// behavior unchanged.
func (b *Behavior) Fire(ctx context.Context, i int, data map[string]any) (err error) {
	if i < 0 || i >= len(b.spec.transitions) {
		return ir.Errorf(ir.ErrCodeFireFailed, "unknown transition %d", i).At(b.spec.typ, "")
	}
	t := b.spec.transitions[i]
	if t.Source != b.state {
		return ir.Errorf(ir.ErrCodeFireFailed, "transition %s->%s not enabled in state %s", t.Source, t.Target, b.state).At(b.spec.typ, t.Port)
	}

	scratch := b.overlay(data)
	if t.Action != nil {
		defer func() {
			if r := recover(); r != nil {
				err = ir.Errorf(ir.ErrCodeFireFailed, "action panicked: %v", r).At(b.spec.typ, t.Port)
			}
		}()
		if aerr := t.Action(ctx, scratch); aerr != nil {
			return ir.Errorf(ir.ErrCodeFireFailed, "action failed").At(b.spec.typ, t.Port).Wrap(aerr)
		}
	}

	for k, v := range scratch {
		if _, in := data[k]; in {
			continue
		}
		b.values[k] = v
	}
	b.state = t.Target
	return nil
}

// overlay returns the local values with extra laid over them.
func (b *Behavior) overlay(extra map[string]any) map[string]any {
	out := make(map[string]any, len(b.values)+len(extra))
	maps.Copy(out, b.values)
	maps.Copy(out, extra)
	return out
}

// String renders the behavior for logs.
func (b *Behavior) String() string {
	return fmt.Sprintf("%s@%s", b.spec.typ, b.state)
}
