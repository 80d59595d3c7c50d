package accounts

import (
	"context"

	"github.com/goliatone/go-router"
	"github.com/prophet-studio/go-accounts/middleware/jwtware"
)

var userCtxKey = &contextKey{"user"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok && raw != nil
}

// WithClaimsContext sets the access token claims in the given context
func WithClaimsContext(r context.Context, claims jwtware.AuthClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the access token claims from the standard context
func GetClaims(ctx context.Context) (jwtware.AuthClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(jwtware.AuthClaims)
	return raw, ok && raw != nil
}

// GetRouterClaims extracts the claims stored by the jwt middleware
func GetRouterClaims(ctx router.Context, key string) (jwtware.AuthClaims, bool) {
	if key == "" {
		key = "user"
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	claims, ok := raw.(jwtware.AuthClaims)
	return claims, ok
}

// MemberOf reports whether the claims in ctx grant access to the organization
func MemberOf(ctx context.Context, orgID string) bool {
	claims, ok := GetClaims(ctx)
	if !ok {
		return false
	}
	return claims.IsSuperuser() || claims.BelongsTo(orgID)
}
