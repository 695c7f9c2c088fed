// Package ipc implements the control plane of spec.md §4.8: a
// newline-JSON request/response protocol over a Unix domain socket,
// scoped auth tokens, and a thin client. Grounded on wingthing's
// internal/relay (JSON-over-socket request loop) and internal/auth
// (HKDF-derived signing material), adapted to a stateless signed-JWT
// token instead of wingthing's ECDH session keys.
package ipc

import (
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"github.com/wardeck/wardeck/internal/model"
)

// tokenClaims is the JWT claim set for an IPC auth token: standard
// registered claims (exp) plus the scopes it grants.
type tokenClaims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes"`
}

// Verifier issues and verifies scoped IPC auth tokens signed with an
// HMAC key derived from a configured secret.
type Verifier struct {
	signingKey []byte
}

// NewVerifier derives a 32-byte HMAC signing key from secret via
// HKDF-SHA256, mirroring wingthing's shared-key derivation style
// (fixed salt, domain-separating info string).
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("ipc: signing secret must not be empty")
	}
	salt := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), salt, []byte("wardeck-ipc-auth"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	return &Verifier{signingKey: key}, nil
}

// IssueToken signs a new token granting scopes, optionally expiring
// after ttl (nil means no expiry).
func (v *Verifier) IssueToken(scopes []model.IPCScope, ttl *time.Duration, now time.Time) (string, error) {
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(now)},
		Scopes:           scopeStrings(scopes),
	}
	if ttl != nil {
		exp := now.Add(*ttl)
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(v.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ErrInvalidToken is returned for any signature, expiry, or shape
// failure during verification; callers should not distinguish further
// (spec.md's canonical auth error messages are produced by the server,
// not this package).
var ErrInvalidToken = fmt.Errorf("invalid or expired token")

// Verify checks a token's signature and expiry and returns the scopes
// it grants.
func (v *Verifier) Verify(tokenString string, now time.Time) ([]model.IPCScope, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return parseScopes(claims.Scopes), nil
}

func scopeStrings(scopes []model.IPCScope) []string {
	out := make([]string, len(scopes))
	for i, s := range scopes {
		out[i] = string(s)
	}
	return out
}

func parseScopes(raw []string) []model.IPCScope {
	out := make([]model.IPCScope, len(raw))
	for i, s := range raw {
		out[i] = model.IPCScope(s)
	}
	return out
}

// ErrMissingToken and ErrUnknownToken are the two auth failure modes
// the server turns into canonical textual errors (spec.md §4.8 "Auth").
var (
	ErrMissingToken = fmt.Errorf("missing auth token")
	ErrUnknownToken = fmt.Errorf("unknown or expired auth token")
)

// Authenticator resolves a presented token string to the scopes it
// grants, checking statically configured tokens first and falling
// back to signed-JWT verification when a Verifier is configured. If
// no tokens and no Verifier are configured, the socket is trusted and
// every presented (or absent) token resolves to ScopeAll.
type Authenticator struct {
	tokens   []model.AuthToken
	verifier *Verifier
}

// NewAuthenticator builds an Authenticator over a statically
// configured token list and an optional signed-token Verifier.
func NewAuthenticator(tokens []model.AuthToken, verifier *Verifier) *Authenticator {
	return &Authenticator{tokens: tokens, verifier: verifier}
}

// Trusted reports whether no auth is configured at all, in which case
// every request passes regardless of token.
func (a *Authenticator) Trusted() bool {
	return len(a.tokens) == 0 && a.verifier == nil
}

// Authenticate resolves tokenString to the scopes it grants.
func (a *Authenticator) Authenticate(tokenString string, now time.Time) ([]model.IPCScope, error) {
	if a.Trusted() {
		return []model.IPCScope{model.ScopeAll}, nil
	}
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	for _, t := range a.tokens {
		if t.Token == tokenString {
			if t.Expired(now) {
				return nil, ErrUnknownToken
			}
			return t.Scopes, nil
		}
	}
	if a.verifier != nil {
		if scopes, err := a.verifier.Verify(tokenString, now); err == nil {
			return scopes, nil
		}
	}
	return nil, ErrUnknownToken
}
