// Package executor wraps a component instance as an independently scheduled
// agent.
//
// Each Executor runs one goroutine that owns the component's Behavior and
// serves commands from an inbox: Step, Execute, Skip, CheckEnabledness,
// GetData, SetData and Snapshot are request/response; Inform is fire and
// forget. Spontaneous events and internal transitions are processed only at
// safe points, never between a Step report and the engine's decision.
package executor
