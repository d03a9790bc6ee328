package ir

// Version constants for the wire records and engine.
const (
	// IRVersion is the schema version of journaled status events.
	IRVersion = "1"

	// EngineVersion is the coordination engine version.
	EngineVersion = "0.1.0"
)
