package auth

import (
	"log/slog"
	"net/http"

	"github.com/grothkopp/ainb/pkg/observability"
	"github.com/grothkopp/ainb/pkg/settings"
)

// DefaultBypassEndpoints lists paths served without authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}

// Middleware enforces the chain's decision on every request outside the
// bypass list. Accepted requests carry the identity in their context,
// and the workspace when the identity names one; a nil limiter disables
// rate limiting.
func Middleware(chain *Chain, limiter RateLimiter, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			res := chain.Authenticate(r.Context(), r)
			if res.Decision == No {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", res.Err,
				)
				deny(w, http.StatusUnauthorized, "invalid_request", "authentication required")
				return
			}
			if res.Decision != Yes || res.Identity == nil {
				deny(w, http.StatusUnauthorized, "invalid_request", "authentication required")
				return
			}
			if res.Identity.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				deny(w, http.StatusInternalServerError, "server_error", "internal authentication error")
				return
			}

			slog.Debug("authentication succeeded",
				"subject", res.Identity.Subject,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)

			if limiter != nil {
				if err := limiter.Allow(r.Context(), res.Identity); err != nil {
					slog.Warn("rate limit exceeded",
						"subject", res.Identity.Subject,
						"tier", res.Identity.ServiceTier,
					)
					observability.RateLimitRejectedTotal.WithLabelValues(res.Identity.ServiceTier).Inc()
					deny(w, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
					return
				}
			}

			ctx := SetIdentity(r.Context(), res.Identity)
			if workspace := res.Identity.WorkspaceID(); workspace != "" {
				ctx = settings.SetWorkspace(ctx, workspace)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// deny writes an error response in the API's error envelope shape.
func deny(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":{"type":"` + errType + `","message":"` + message + `"}}`))
}
