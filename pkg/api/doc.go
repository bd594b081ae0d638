// Package api defines the core types of the AINB cell execution core.
//
// This package provides the data types shared by the execution engine,
// the sandbox layer, and the provider plane: cell snapshots, run
// outcomes, catalog refresh outcomes, the structured error taxonomy,
// and ID generation.
//
// The package has zero external dependencies (Go standard library only)
// and performs no I/O.
//
// Core types:
//   - [Cell]: Read-only snapshot of a notebook cell (id, kind, source)
//   - [RunOutcome]: Resolved result of a single cell run
//   - [CellUpdate]: State change delivered to the notebook layer
//   - [RefreshOutcome]: Summary of one model catalog refresh
//   - [CoreError]: Structured error with type, code, param, and message
package api
