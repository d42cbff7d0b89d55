// Package repo is the target repository: a persistent, versioned graph store
// of elements, models and relationships, backed by SQLite.
//
// The repository is also where all durable synchronization state lives.
// Provenance side-records (source_aspects) carry the (scope, kind,
// identifier, version, checksum) tuples change detection compares against, so
// the engine itself is stateless between runs.
//
// Writes are idempotent where the data model allows it: relationship inserts
// use ON CONFLICT DO NOTHING against the (class, source, target) uniqueness
// constraint, and element codes are unique over (spec, scope, value).
package repo
