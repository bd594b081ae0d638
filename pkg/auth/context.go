package auth

import "context"

// identityCtxKey keys the authenticated identity in a request context.
type identityCtxKey struct{}

// SetIdentity attaches the authenticated caller to the context. The
// middleware does this once per request after the chain has voted;
// handlers read it back with IdentityFromContext.
func SetIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext returns the authenticated caller, or nil when the
// request never passed the middleware (bypassed endpoints, direct
// handler tests).
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityCtxKey{}).(*Identity)
	return id
}
