// Package glue implements the glue constraint set: which combinations of
// ports may fire together (requires and accepts) and which combinations are
// preferred (priority patterns).
//
// Glue is written against component types. A PortRef names a port of a type;
// at run time the engine assigns each reference of an interaction to a
// distinct component instance.
//
// A Set is built once by a Builder and never mutated. Replacing the glue of
// an engine installs a whole new Set between runs.
package glue
