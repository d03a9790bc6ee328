package engine

import (
	"fmt"

	"github.com/roach88/bip/internal/ir"
)

// lifecycle is the engine's coarse state. Transitions:
//
//	idle --Start--> started --Execute--> running --Stop/loop end--> started
//	any --Close--> closed
type lifecycle int

const (
	stateIdle lifecycle = iota
	stateStarted
	stateRunning
	stateClosed
)

func (s lifecycle) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateStarted:
		return "started"
	case stateRunning:
		return "running"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("lifecycle(%d)", int(s))
	}
}

// misuse reports an operation called in the wrong lifecycle state. The
// engine state is left unchanged by every caller of misuse.
func misuse(op string, s lifecycle) *ir.Error {
	return ir.Errorf(ir.ErrCodeLifecycle, "%s: engine is %s", op, s)
}
