package harness

import (
	"github.com/roach88/bip/internal/executor"
	"github.com/roach88/bip/internal/ir"
)

// TraceEvent is one status event of a scenario run. Run ids are left out
// so traces compare equal across runs.
type TraceEvent struct {
	Round       int64  `json:"round"`
	Seq         int64  `json:"seq"`
	Phase       string `json:"phase,omitempty"`
	Kind        string `json:"kind"`
	Component   string `json:"component,omitempty"`
	Port        string `json:"port,omitempty"`
	Interaction string `json:"interaction,omitempty"`
	Code        string `json:"code,omitempty"`
	Message     string `json:"message,omitempty"`
}

func traceEvent(ev ir.StatusEvent) TraceEvent {
	return TraceEvent{
		Round:       ev.Round,
		Seq:         ev.Seq,
		Phase:       string(ev.Phase),
		Kind:        string(ev.Kind),
		Component:   ev.Component,
		Port:        ev.Port,
		Interaction: ev.Interaction,
		Code:        string(ev.Code),
		Message:     ev.Message,
	}
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// RunID is the id the run was journaled under.
	RunID string `json:"run_id"`

	// Rounds is the number of rounds that ran.
	Rounds int64 `json:"rounds"`

	// Trace contains every status event in seq order, read back from the
	// journal.
	Trace []TraceEvent `json:"trace"`

	// Firings are the journaled firing records, by round.
	Firings []ir.FiringRecord `json:"firings"`

	// State holds the final snapshot of every component, by instance id.
	State map[string]executor.Snapshot `json:"state,omitempty"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]executor.Snapshot),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Fired returns the keys of fired interactions in firing order.
func (r *Result) Fired() []string {
	var out []string
	for _, ev := range r.Trace {
		if ev.Kind == string(ir.StatusInteractionFired) {
			out = append(out, ev.Interaction)
		}
	}
	return out
}
