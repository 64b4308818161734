package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is what the rest of the service knows about a caller.
type Identity struct {
	SubjectID    string
	IsPrivileged bool
}

// Claims carried by identity tokens. isAdmin keeps the shape of tokens
// issued by the user service.
type Claims struct {
	IsAdmin bool `json:"isAdmin"`
	jwt.RegisteredClaims
}

// Gate verifies HS256 identity tokens.
type Gate struct {
	secret []byte
	now    func() time.Time
}

func NewGate(secret string) *Gate {
	return &Gate{secret: []byte(secret), now: time.Now}
}

// Issue signs a token for subject. Token issuance belongs to the user
// service; this exists for local development and tests.
func (g *Gate) Issue(subject string, privileged bool, ttl time.Duration) (string, error) {
	now := g.now()
	claims := Claims{
		IsAdmin: privileged,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
}

// Verify resolves a raw token, with or without a "Bearer " prefix, into an
// Identity. Every failure wraps ErrUnauthenticated.
func (g *Gate) Verify(raw string) (*Identity, error) {
	tokenStr := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(tokenStr), "bearer ") {
		tokenStr = strings.TrimSpace(tokenStr[7:])
	}
	if tokenStr == "" {
		return nil, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}

	var claims Claims
	tok, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(g.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !tok.Valid {
		return nil, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub missing in claims", ErrUnauthenticated)
	}

	return &Identity{SubjectID: claims.Subject, IsPrivileged: claims.IsAdmin}, nil
}
