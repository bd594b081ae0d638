package transport

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
)

// RequestID returns middleware that assigns a unique request ID to each
// request. If the client sent an X-Request-ID header, that value is
// kept; otherwise a new ID is generated. The ID is stored in the
// request context (RequestIDFromContext) and echoed on the response.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = generateRequestID()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(ContextWithRequestID(r.Context(), id)))
		})
	}
}

// generateRequestID creates a new unique request ID as a hex string.
func generateRequestID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
