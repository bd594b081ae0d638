// Package transport defines the middleware chain and shared plumbing
// for the ainb HTTP surface.
//
// The transport layer bridges external clients and the execution core.
// It decodes requests into the types defined in pkg/api, drives the run
// engine and the provider plane, and serializes outcomes back as JSON
// or as an SSE stream of cell updates.
//
// # Collaborator contract
//
// The Runner interface is the execution surface the HTTP layer drives;
// pkg/engine implements it. The notebook store, event fan-out, and
// provider plane are passed in as concrete collaborators by the server
// binary.
//
// # Middleware
//
// Middleware is plain func(http.Handler) http.Handler, composed with
// Chain. Built-in middleware provides request ID assignment
// (X-Request-ID), panic recovery, and structured request logging via
// log/slog; authentication and metrics middleware come from pkg/auth
// and pkg/observability and share the same shape.
//
// # Error mapping
//
// api.CoreError values map onto HTTP statuses in one place
// (HTTPStatusFromError), so every endpoint reports the same taxonomy:
// invalid requests and missing credentials are the caller's to fix
// (4xx), upstream provider failures surface as bad gateway, and an
// unavailable sandbox backend reports service unavailable.
package transport
