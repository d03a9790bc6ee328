// Package behavior implements the per-component behavior model.
//
// A Spec is the immutable descriptor of one component type: its states,
// ports, transitions, guards and data-out declarations. Specs are produced by
// a validated Builder, either directly from Go code or from a declarative
// Descriptor plus Bindings (the path used when components are loaded from
// CUE). Every structural problem is reported at construction time as a
// ConfigurationError; nothing is validated lazily inside the engine.
//
// A Behavior pairs a Spec with the single mutable field of a component
// instance, its current state, and the instance's local data values. A
// Behavior is owned by exactly one executor and is never shared between
// goroutines.
package behavior
