// Package identity resolves who is calling: bearer-token verification against Supabase Auth,
// the request-scoped Owner, and the GoTrue client behind the /auth routes.
package identity

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrUnauthenticated = errors.New("caller is not authenticated")
	ErrForbidden       = errors.New("caller may not act for this owner")
	ErrInvalidToken    = errors.New("invalid access token")
)

// Owner is a verified caller.
type Owner struct {
	ID    string
	Email string
	Role  string
}

type contextKey string

const ownerKey contextKey = "owner"

func WithOwner(ctx context.Context, o *Owner) context.Context {
	return context.WithValue(ctx, ownerKey, o)
}

func OwnerFromContext(ctx context.Context) *Owner {
	o, _ := ctx.Value(ownerKey).(*Owner)
	return o
}

// Policy decides which owner id a request acts for.
type Policy struct {
	// TrustClientOwner accepts an owner id supplied by the client when no token was presented.
	TrustClientOwner bool
}

// OwnerID returns the verified caller's id when there is one, otherwise claimed if the policy
// trusts the client. An empty result means the request is unauthenticated.
func (p Policy) OwnerID(ctx context.Context, claimed string) string {
	if o := OwnerFromContext(ctx); o != nil {
		return o.ID
	}
	if p.TrustClientOwner {
		return strings.TrimSpace(claimed)
	}
	return ""
}

// Authorize checks that the caller may read or write data belonging to owner.
func (p Policy) Authorize(ctx context.Context, owner string) error {
	if o := OwnerFromContext(ctx); o != nil {
		if o.ID != owner {
			return ErrForbidden
		}
		return nil
	}
	if !p.TrustClientOwner {
		return ErrUnauthenticated
	}
	return nil
}
