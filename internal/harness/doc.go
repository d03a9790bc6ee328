// Package harness runs conformance scenarios against the real engine.
//
// A scenario names CUE spec files, a number of rounds, optional informed
// events, and assertions over the result:
//
//	name: rendezvous
//	description: A and B always fire together.
//	specs: [specs/rendezvous.cue]
//	rounds: 2
//	assertions:
//	  - type: fired_count
//	    interaction: "a.sync,b.sync"
//	    count: 2
//
// Each scenario runs in a fresh in-memory journal with a static run id, so
// the status trace of a scenario is byte-identical across runs and can be
// compared against a golden file with RunWithGolden.
//
// Informed events are delivered after the components start and before the
// first round. Components are registered one instance per type unless the
// spec asks for more; instance ids are the lower-cased type name, suffixed
// -1, -2, ... when a type has several instances.
package harness
