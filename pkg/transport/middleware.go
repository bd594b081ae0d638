package transport

import (
	"context"
	"net/http"
)

// Middleware wraps an http.Handler with cross-cutting behavior. The
// first middleware in a chain is the outermost wrapper: it runs first
// on the way in and last on the way out.
type Middleware func(http.Handler) http.Handler

// Chain folds middlewares into one. Chain(a, b, c) yields a(b(c(h))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type requestIDCtxKey struct{}

// ContextWithRequestID tags the context with the request's ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey{}, id)
}

// RequestIDFromContext returns the request ID, or "" when the request
// never passed the RequestID middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey{}).(string)
	return id
}
