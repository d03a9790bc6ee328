// Package store provides the SQLite-backed round journal.
//
// The journal is append-only and holds three record kinds:
//   - Runs: one row per execution of the round loop
//   - Events: every status event, ordered by a per-run seq
//   - Firings: every interaction fired, keyed by its content-addressed id
//
// # Ordering
//
// Queries order by seq or round (logical clocks), never by timestamps, so a
// journal of a deterministic run reads back identically every time.
//
// Open(MemoryPath) gives a scratch journal that lives as long as the
// Store; replay and the conformance harness use it.
//
// Firing ids are computed by ir.InteractionID using RFC 8785 canonical JSON
// and SHA-256 with domain separation.
package store
