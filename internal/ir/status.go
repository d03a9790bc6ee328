package ir

// Phase is one step of the round state machine.
type Phase string

const (
	PhaseCollect Phase = "collect"
	PhaseCompute Phase = "compute"
	PhaseResolve Phase = "resolve"
	PhaseFire    Phase = "fire"
	PhaseAwait   Phase = "await"
)

// StatusKind identifies what a status event reports.
type StatusKind string

const (
	StatusRunStarted           StatusKind = "run_started"
	StatusRunStopped           StatusKind = "run_stopped"
	StatusRoundStarted         StatusKind = "round_started"
	StatusRoundCompleted       StatusKind = "round_completed"
	StatusExecutorTimeout      StatusKind = "executor_timeout"
	StatusExecutorFailed       StatusKind = "executor_failed"
	StatusGuardFailed          StatusKind = "guard_failed"
	StatusInteractionSelected  StatusKind = "interaction_selected"
	StatusInteractionDiscarded StatusKind = "interaction_discarded"
	StatusInteractionFired     StatusKind = "interaction_fired"
	StatusFireFailed           StatusKind = "fire_failed"
)

// StatusEvent is one observable record of engine progress. Round-time errors
// never unwind past the engine; they surface here instead.
type StatusEvent struct {
	RunID       string     `json:"run_id"`
	Round       int64      `json:"round"`
	Seq         int64      `json:"seq"` // per-run event order
	Phase       Phase      `json:"phase,omitempty"`
	Kind        StatusKind `json:"kind"`
	Component   string     `json:"component,omitempty"`
	Port        string     `json:"port,omitempty"`
	Interaction string     `json:"interaction,omitempty"` // Interaction.Key()
	Code        ErrorCode  `json:"code,omitempty"`
	Message     string     `json:"message,omitempty"`
}

// RunRecord describes one execution of the round loop.
type RunRecord struct {
	ID              string `json:"id"`
	GlueFingerprint string `json:"glue_fingerprint"`
	Components      int    `json:"components"`
	EngineVersion   string `json:"engine_version"`
	IRVersion       string `json:"ir_version"`
	Rounds          int64  `json:"rounds"`
}

// FiringRecord is one interaction fired in a round.
type FiringRecord struct {
	ID       string   `json:"id"` // InteractionID
	RunID    string   `json:"run_id"`
	Round    int64    `json:"round"`
	Ports    []string `json:"ports"` // sorted instance-level port ids
	Priority int      `json:"priority"`
}

// NewFiringRecord describes in as fired in round of run.
func NewFiringRecord(runID string, round int64, in Interaction) FiringRecord {
	return FiringRecord{
		ID:       InteractionID(runID, round, in),
		RunID:    runID,
		Round:    round,
		Ports:    in.PortIDs(),
		Priority: in.Priority,
	}
}
