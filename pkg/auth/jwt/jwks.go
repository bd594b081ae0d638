package jwt

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// keySet caches the issuer's published verification keys by kid,
// refreshed at most once per TTL.
type keySet struct {
	url    string
	ttl    time.Duration
	client *http.Client

	mu        sync.RWMutex
	keys      map[string]crypto.PublicKey
	fetchedAt time.Time
}

func newKeySet(url string, ttl time.Duration, client *http.Client) *keySet {
	return &keySet{
		url:    url,
		ttl:    ttl,
		client: client,
		keys:   make(map[string]crypto.PublicKey),
	}
}

// lookup returns the key for kid, refreshing the set when the cache is
// stale or the kid is unknown.
func (s *keySet) lookup(ctx context.Context, kid string) (crypto.PublicKey, error) {
	s.mu.RLock()
	if key, ok := s.keys[kid]; ok && time.Since(s.fetchedAt) < s.ttl {
		s.mu.RUnlock()
		return key, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if key, ok := s.keys[kid]; ok && time.Since(s.fetchedAt) < s.ttl {
		return key, nil
	}

	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	key, ok := s.keys[kid]
	if !ok {
		return nil, fmt.Errorf("key %q not found in JWKS", kid)
	}
	return key, nil
}

// refresh replaces the cached keys with the endpoint's current set.
// Keys of unsupported types are skipped, not fatal. Write lock held.
func (s *keySet) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("creating JWKS request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("parsing JWKS: %w", err)
	}

	keys := make(map[string]crypto.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			slog.Warn("skipping JWKS key", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}

	s.keys = keys
	s.fetchedAt = time.Now()
	slog.Debug("JWKS cache refreshed", "keys", len(keys), "url", s.url)
	return nil
}

// jwk is a single JSON Web Key. RSA keys carry n and e, EC keys carry
// crv, x, and y; all values are base64url without padding.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

func (k jwk) publicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case "RSA":
		return k.rsaKey()
	case "EC":
		return k.ecdsaKey()
	default:
		return nil, fmt.Errorf("unsupported key type %q", k.Kty)
	}
}

func (k jwk) rsaKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}

	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() {
		return nil, errors.New("RSA exponent too large")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(n),
		E: int(exp.Int64()),
	}, nil
}

func (k jwk) ecdsaKey() (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch k.Crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("unsupported curve %q", k.Crv)
	}

	x, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil {
		return nil, fmt.Errorf("decoding x coordinate: %w", err)
	}
	y, err := base64.RawURLEncoding.DecodeString(k.Y)
	if err != nil {
		return nil, fmt.Errorf("decoding y coordinate: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}, nil
}
