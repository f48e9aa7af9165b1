package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jwalitptl/admin-authz/internal/model"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidClaims = errors.New("invalid principal claims")
)

// Claims carries the principal of a request.
type Claims struct {
	UserID         int64  `json:"user_id"`
	Role           string `json:"role"`
	LinkedEntityID *int64 `json:"linked_entity_id,omitempty"`
	jwt.RegisteredClaims
}

// Verifier turns a bearer token into a principal.
type Verifier interface {
	Verify(token string) (model.Principal, error)
}

// TokenVerifier checks HS256 tokens signed with a shared secret.
type TokenVerifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

func NewTokenVerifier(secret, issuer string, leeway time.Duration) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer, leeway: leeway}
}

func (v *TokenVerifier) Verify(tokenString string) (model.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return model.Principal{}, ErrInvalidToken
	}
	return claims.Principal()
}

// Principal validates the claims. An unknown role is rejected here so it
// never reaches the evaluator.
func (c *Claims) Principal() (model.Principal, error) {
	if c.UserID <= 0 {
		return model.Principal{}, fmt.Errorf("%w: missing user_id", ErrInvalidClaims)
	}
	role, err := model.ParseRole(c.Role)
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
	return model.NewPrincipal(c.UserID, role, c.LinkedEntityID), nil
}

// Sign issues a token for p. Used by tests and local tooling.
func Sign(secret, issuer string, p model.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:         p.UserID,
		Role:           p.Role.String(),
		LinkedEntityID: p.LinkedEntityID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
