package testutil

// StaticRunID returns the same run id every time.
//
// Unlike engine.FixedGenerator, which hands out ids in sequence and panics
// when they run out, StaticRunID never runs out. Scenarios use it so every
// run of the same file journals under the same id.
//
// Thread-safety: StaticRunID is stateless and safe for concurrent use.
type StaticRunID struct {
	id string
}

// NewStaticRunID creates a generator for id.
//
// If id is empty, Generate() returns "test-run-default".
func NewStaticRunID(id string) *StaticRunID {
	if id == "" {
		id = "test-run-default"
	}
	return &StaticRunID{id: id}
}

// Generate returns the fixed run id.
//
// Implements engine.RunIDGenerator.
func (g *StaticRunID) Generate() string {
	return g.id
}
