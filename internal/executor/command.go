package executor

import (
	"context"

	"github.com/roach88/bip/internal/ir"
)

type commandKind int

const (
	cmdStep commandKind = iota + 1
	cmdExecute
	cmdSkip
	cmdCheck
	cmdGetData
	cmdSetData
	cmdInform
	cmdSnapshot
)

func (k commandKind) String() string {
	switch k {
	case cmdStep:
		return "step"
	case cmdExecute:
		return "execute"
	case cmdSkip:
		return "skip"
	case cmdCheck:
		return "check"
	case cmdGetData:
		return "get_data"
	case cmdSetData:
		return "set_data"
	case cmdInform:
		return "inform"
	case cmdSnapshot:
		return "snapshot"
	}
	return "unknown"
}

// command is one request to the executor goroutine. Inform commands have no
// reply channel.
type command struct {
	kind  commandKind
	ctx   context.Context
	port  string
	name  string
	value any
	data  map[string]any
	ref   ir.PortRef
	via   string
	reply chan result
}

type result struct {
	report ir.Report
	ok     bool
	value  any
	snap   Snapshot
	err    error
}
