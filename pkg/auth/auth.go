package auth

import (
	"context"
	"errors"
	"net/http"
)

// MetadataWorkspace is the Identity.Metadata key naming the workspace a
// caller belongs to. Settings persistence and rate limiting are scoped
// by it.
const MetadataWorkspace = "workspace"

// Decision is an authenticator's vote on a request.
type Decision int

const (
	// Yes accepts the request. The chain stops and the vote's identity
	// becomes the caller.
	Yes Decision = iota

	// No rejects the request. Credentials were present but invalid, so
	// the chain stops instead of trying weaker authenticators.
	No

	// Abstain passes: the credentials are not of a form this
	// authenticator understands. The chain moves on.
	Abstain
)

// Result is a single vote. Identity is set only on Yes, Err only on No.
type Result struct {
	Decision Decision
	Identity *Identity
	Err      error
}

// Identity is an authenticated caller.
type Identity struct {
	// Subject uniquely names the caller. Never empty on an accepted
	// request.
	Subject string

	// ServiceTier selects the caller's rate-limit budget.
	ServiceTier string

	// Scopes lists granted authorization scopes.
	Scopes []string

	// Metadata carries authenticator-specific attributes, keyed by the
	// Metadata* constants.
	Metadata map[string]string
}

// WorkspaceID returns the caller's workspace, or "" when the
// authenticator did not assign one.
func (id *Identity) WorkspaceID() string {
	if id == nil || id.Metadata == nil {
		return ""
	}
	return id.Metadata[MetadataWorkspace]
}

// Anonymous returns the identity used when requests are accepted
// without credentials.
func Anonymous() *Identity {
	return &Identity{Subject: "anonymous", ServiceTier: "default"}
}

// Authenticator inspects a request's credentials and votes.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// Chain runs authenticators in order until one votes Yes or No. When
// every authenticator abstains the Fallback decision applies: Yes
// admits the request as Anonymous, anything else rejects it.
type Chain struct {
	Authenticators []Authenticator
	Fallback       Decision
}

// Authenticate returns the first non-abstaining vote, or the fallback.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, a := range c.Authenticators {
		if res := a.Authenticate(ctx, r); res.Decision != Abstain {
			return res
		}
	}

	if c.Fallback == Yes {
		return Result{Decision: Yes, Identity: Anonymous()}
	}
	return Result{Decision: No, Err: ErrUnauthenticated}
}
