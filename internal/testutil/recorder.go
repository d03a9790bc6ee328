package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/bip/internal/ir"
)

// Recorder collects the status events of a run in emission order.
//
// Recorder satisfies engine.Observer without importing the engine, so engine
// tests can use it as well.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Recorder struct {
	mu     sync.Mutex
	events []ir.StatusEvent
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Observe records ev.
func (r *Recorder) Observe(_ context.Context, ev ir.StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of every recorded event.
func (r *Recorder) Events() []ir.StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ir.StatusEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Kind returns the recorded events of one kind.
func (r *Recorder) Kind(kind ir.StatusKind) []ir.StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ir.StatusEvent
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind ir.StatusKind) int {
	return len(r.Kind(kind))
}

// Fired returns the keys of fired interactions in firing order.
func (r *Recorder) Fired() []string {
	var out []string
	for _, ev := range r.Kind(ir.StatusInteractionFired) {
		out = append(out, ev.Interaction)
	}
	return out
}

// WaitFor blocks until at least n events of kind have been recorded or
// timeout passes. It reports whether the count was reached.
func (r *Recorder) WaitFor(kind ir.StatusKind, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if r.Count(kind) >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

// Reset forgets every recorded event.
//
// Used for test reuse across runs of one engine.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
