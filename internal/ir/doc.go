// Package ir holds the intermediate representation of external source data.
//
// A Loader normalizes one external data source (a spreadsheet, a JSON
// document, a relational file) into Entities and Instances. The Model is the
// in-memory collection of all entities produced by one loader invocation; it
// is built once per run and immutable afterward.
//
// Instance identity and content are both derived, never assigned:
//
//   - Key:      entityKey + "-" + data[primaryKeyAttr], stable across runs
//   - Checksum: SHA-256 over the RFC 8785 canonical JSON of the data map
//
// The checksum together with the loader-supplied version token is the sole
// input to change detection downstream.
package ir
