// Package apikey validates static API keys. Keys arrive either as a
// bearer token or in the X-API-Key header and are matched against the
// configured set by SHA-256 digest in constant time. Plaintext keys are
// not retained past construction.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/grothkopp/ainb/pkg/auth"
)

// headerAPIKey is the non-bearer transport for keys, for clients that
// cannot set an Authorization header.
const headerAPIKey = "X-API-Key"

// Key pairs a plaintext secret with the identity it authenticates.
// Used only at construction; the secret is digested immediately.
type Key struct {
	Secret   string
	Identity auth.Identity
}

type hashedKey struct {
	digest   [sha256.Size]byte
	identity auth.Identity
}

// Authenticator matches presented keys against a fixed set.
type Authenticator struct {
	keys []hashedKey
}

// New digests the configured keys and returns the authenticator.
func New(keys []Key) *Authenticator {
	a := &Authenticator{keys: make([]hashedKey, 0, len(keys))}
	for _, k := range keys {
		a.keys = append(a.keys, hashedKey{
			digest:   sha256.Sum256([]byte(k.Secret)),
			identity: k.Identity,
		})
	}
	return a
}

// Authenticate reads the key from the Authorization bearer token or the
// X-API-Key header. It abstains when neither is present, so other
// authenticators in the chain can claim the request; a presented but
// unknown key votes No.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	raw, found := presentedKey(r)
	if !found {
		return auth.Result{Decision: auth.Abstain}
	}
	if raw == "" {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	if id := a.lookup(raw); id != nil {
		return auth.Result{Decision: auth.Yes, Identity: id}
	}
	return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
}

// presentedKey extracts the key material from the request. The second
// return reports whether any key-bearing header was present at all.
func presentedKey(r *http.Request) (string, bool) {
	if v := r.Header.Get(headerAPIKey); v != "" {
		return v, true
	}
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(header, "Bearer "), true
}

// lookup scans the full key set without early exit. Returns a copy of
// the matched identity, or nil.
func (a *Authenticator) lookup(raw string) *auth.Identity {
	digest := sha256.Sum256([]byte(raw))

	var match *auth.Identity
	for i := range a.keys {
		if subtle.ConstantTimeCompare(digest[:], a.keys[i].digest[:]) == 1 {
			id := a.keys[i].identity
			match = &id
		}
	}
	return match
}
