package settings

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no document has been persisted
// yet for the workspace. Callers start from DefaultDocument().
var ErrNotFound = errors.New("settings document not found")

// Store persists and retrieves the settings document. Implementations
// scope documents by the workspace carried in the context; with no
// workspace set, a single shared document is used.
//
// Load returns a current-version document: backends that persist raw
// bytes run Normalize before returning, so schema migration happens
// exactly once, at load. A MalformedPersistedState error from Load is
// accompanied by a usable default document.
type Store interface {
	Load(ctx context.Context) (Document, error)
	Save(ctx context.Context, doc Document) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// workspaceKey is a private type for the workspace context key,
// preventing collisions with other packages.
type workspaceKey struct{}

// SetWorkspace injects a workspace identifier into the context.
func SetWorkspace(ctx context.Context, workspace string) context.Context {
	return context.WithValue(ctx, workspaceKey{}, workspace)
}

// GetWorkspace extracts the workspace identifier from the context.
// Returns an empty string if no workspace is set (single-workspace mode).
func GetWorkspace(ctx context.Context) string {
	if v, ok := ctx.Value(workspaceKey{}).(string); ok {
		return v
	}
	return ""
}
