// Package engine implements the interaction coordinator.
//
// ARCHITECTURE:
//
// Round Loop:
// Each run executes rounds in one goroutine. A round is five phases, each a
// barrier across all live executors:
// 1. COLLECT: Step is sent to every executor concurrently; reports that do
// not arrive within the round timeout are left out of this round only
// 2. COMPUTE: glue-valid interactions are enumerated per connected component
// of the interaction hypergraph, then a conflict-free, priority-maximal set
// is selected (Enumerate, Select)
// 3. RESOLVE-DATA: the broker gathers each interaction's data-in; a failure
// discards that interaction only
// 4. FIRE: Execute is sent to every participant concurrently; every other
// reporter receives Skip
// 5. AWAIT: the round ends when every command has been acknowledged or has
// failed
//
// Round-time errors never leave the loop. They are emitted as status events
// to the logger, the SQLite journal, observers and subscribers.
//
// Ownership:
// Each executor is the only writer of its component. While a run is in
// progress, the loop is the only sender of Step, Execute and Skip, and the
// set of registered components is frozen.
//
// Determinism:
// Reports are processed in component id order, candidates in key order, and
// ties are broken by sorted port-id sequence, so identical reports always
// yield the identical selection. Event order is fixed by the logical Clock,
// never by wall time.
package engine
