// Package settings defines the versioned persisted-settings document
// (provider list, model catalog, refresh timestamp) and the Store
// interface its backends implement, plus sentinel errors and workspace
// context helpers shared across backends.
//
// Persisted documents written by earlier releases are migrated to the
// current schema once, at load, by [Normalize]. Core logic above this
// package only ever sees a fully-typed, current-version [Document].
package settings
