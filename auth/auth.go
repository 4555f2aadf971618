/*
Package auth verifies and issues HS256 bearer tokens.

PURPOSE:
  The authorization gate in front of the leave engine. A token carries the
  principal's username (sub) and roles; the transport layer verifies it,
  enforces the role gate and passes the username to the engine explicitly.

CLAIMS:
  sub    - username, resolved to an employee by the store
  roles  - any of ADMIN, HR, MANAGER, EMPLOYEE
  iss    - must match the configured issuer
  exp    - required

SEE ALSO:
  - api/middleware.go: HTTP authentication and role gate
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is a capability granted to a principal.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleHR       Role = "HR"
	RoleManager  Role = "MANAGER"
	RoleEmployee Role = "EMPLOYEE"
)

var (
	// ErrTokenMissing is returned when no bearer token was presented.
	ErrTokenMissing = errors.New("token not found")

	// ErrTokenInvalid is returned for malformed, badly signed or mis-issued tokens.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenExpired is returned for expired tokens.
	ErrTokenExpired = errors.New("token expired")
)

// Principal is the authenticated caller.
type Principal struct {
	Username string
	Roles    []Role
}

// HasAnyRole reports whether p holds at least one of roles.
func (p Principal) HasAnyRole(roles ...Role) bool {
	for _, have := range p.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Claims is the token payload.
type Claims struct {
	Roles []Role `json:"roles"`
	jwt.RegisteredClaims
}

// =============================================================================
// VERIFIER
// =============================================================================

// Verifier validates tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewVerifier creates a Verifier.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Verify parses raw and returns its principal.
func (v *Verifier) Verify(raw string) (Principal, error) {
	if raw == "" {
		return Principal{}, ErrTokenMissing
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrTokenExpired
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid || claims.Subject == "" {
		return Principal{}, ErrTokenInvalid
	}

	return Principal{Username: claims.Subject, Roles: claims.Roles}, nil
}

// =============================================================================
// ISSUER
// =============================================================================

// Issuer mints tokens. Login is handled elsewhere; this serves tests and
// local development.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer.
func NewIssuer(secret, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs a token for username with roles.
func (i *Issuer) Issue(username string, roles ...Role) (string, error) {
	now := i.now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// =============================================================================
// CONTEXT
// =============================================================================

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
