// Package auth provides pluggable authentication for the ainb server.
//
// Authentication uses a chain-of-responsibility pattern with three-outcome
// voting: each authenticator returns Yes (identity found), No (credentials
// invalid), or Abstain (can't handle). The chain's fallback decision applies
// when every authenticator abstains.
//
// Auth is implemented as HTTP middleware, keeping it decoupled from engine
// logic. The middleware also injects the caller's workspace into the request
// context so the settings store scopes persisted documents per workspace.
package auth
