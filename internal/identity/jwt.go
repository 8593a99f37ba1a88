package identity

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier turns a bearer token into an Owner.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Owner, error)
}

// Claims is the subset of a Supabase access token we read.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier checks Supabase access tokens locally against the project's HS256 secret.
type JWTVerifier struct {
	secret   []byte
	audience string
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), audience: "authenticated"}
}

func (v *JWTVerifier) Verify(_ context.Context, tokenStr string) (*Owner, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}
	return &Owner{ID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}
