// Package jwt authenticates OIDC bearer tokens. Signatures are
// verified against the issuer's published JWKS, with both RSA and
// ECDSA keys supported. Subject, workspace, and scopes are read from
// configurable claims.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/grothkopp/ainb/pkg/auth"
)

// Config holds the verification settings.
type Config struct {
	// Issuer is the expected iss claim. Empty disables the check.
	Issuer string

	// Audience is the expected aud claim. Empty disables the check.
	Audience string

	// JWKSURL locates the issuer's JSON Web Key Set.
	JWKSURL string

	// UserClaim names the claim mapped to Identity.Subject.
	// Default: "sub".
	UserClaim string

	// WorkspaceClaim names the claim mapped to the workspace metadata.
	// Default: "workspace".
	WorkspaceClaim string

	// ScopesClaim names the claim mapped to Identity.Scopes. The value
	// may be a space-separated string or a JSON array. Default: "scope".
	ScopesClaim string

	// CacheTTL bounds how long fetched JWKS keys are reused.
	// Default: 1 hour.
	CacheTTL time.Duration

	// HTTPClient fetches the JWKS. Default: http.DefaultClient.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.WorkspaceClaim == "" {
		c.WorkspaceClaim = auth.MetadataWorkspace
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// Authenticator validates JWT bearer tokens against a JWKS endpoint.
type Authenticator struct {
	cfg  Config
	keys *keySet
}

// New creates the authenticator. Keys are fetched lazily on the first
// request that needs them.
func New(cfg Config) *Authenticator {
	cfg.applyDefaults()
	return &Authenticator{
		cfg:  cfg,
		keys: newKeySet(cfg.JWKSURL, cfg.CacheTTL, cfg.HTTPClient),
	}
}

// Authenticate votes on the request's bearer token: Abstain when there
// is none, No when the token fails verification, Yes with the mapped
// identity otherwise.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.Result {
	header := r.Header.Get("Authorization")
	raw, isBearer := strings.CutPrefix(header, "Bearer ")
	if header == "" || !isBearer {
		return auth.Result{Decision: auth.Abstain}
	}
	if raw == "" {
		return auth.Result{Decision: auth.No, Err: errors.New("empty bearer token")}
	}

	identity, err := a.verify(ctx, raw)
	if err != nil {
		slog.Debug("JWT validation failed", "error", err)
		return auth.Result{Decision: auth.No, Err: fmt.Errorf("invalid JWT: %w", err)}
	}
	return auth.Result{Decision: auth.Yes, Identity: identity}
}

// verify checks the token's signature and registered claims, then maps
// the configured claims into an identity.
func (a *Authenticator) verify(ctx context.Context, raw string) (*auth.Identity, error) {
	token, err := jwtlib.Parse(raw, a.keyFor(ctx), a.parserOptions()...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("unusable claims")
	}

	subject := stringClaim(claims, a.cfg.UserClaim)
	if subject == "" {
		return nil, fmt.Errorf("missing %q claim", a.cfg.UserClaim)
	}

	identity := &auth.Identity{
		Subject:  subject,
		Scopes:   scopesClaim(claims, a.cfg.ScopesClaim),
		Metadata: make(map[string]string),
	}
	if workspace := stringClaim(claims, a.cfg.WorkspaceClaim); workspace != "" {
		identity.Metadata[auth.MetadataWorkspace] = workspace
	}
	return identity, nil
}

// keyFor resolves the verification key named by the token's kid header
// from the cached JWKS.
func (a *Authenticator) keyFor(ctx context.Context) jwtlib.Keyfunc {
	return func(token *jwtlib.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwtlib.SigningMethodRSA, *jwtlib.SigningMethodECDSA:
		default:
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing kid header")
		}

		key, err := a.keys.lookup(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("resolving key %q: %w", kid, err)
		}
		return key, nil
	}
}

func (a *Authenticator) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(a.cfg.Audience))
	}
	return opts
}

// stringClaim returns the named claim when it holds a string, else "".
func stringClaim(claims jwtlib.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}

// scopesClaim accepts either OAuth2's space-separated string form or a
// JSON array of strings.
func scopesClaim(claims jwtlib.MapClaims, name string) []string {
	switch v := claims[name].(type) {
	case string:
		if fields := strings.Fields(v); len(fields) > 0 {
			return fields
		}
	case []interface{}:
		var scopes []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				scopes = append(scopes, s)
			}
		}
		return scopes
	}
	return nil
}
