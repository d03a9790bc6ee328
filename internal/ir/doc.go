// Package ir provides the shared value types of the coordination runtime.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps ports, interactions,
// round reports and the error taxonomy in one foundational layer with no
// circular dependencies.
//
// Key design constraints:
//   - Glue speaks about component types (PortRef); rounds speak about
//     component instances (ComponentPort)
//   - Interactions are ephemeral: built and discarded every round
//   - Round ordering uses the engine's logical round counter, never wall time
//   - All JSON tags use snake_case
package ir
