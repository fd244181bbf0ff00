package middleware

import (
	"context"

	"github.com/google/uuid"
)

type principalKey struct{}

// principal is what the auth middleware learned about the caller. Store scope is
// empty for customers and admins.
type principal struct {
	userID  string
	role    string
	storeID string
}

func principalFrom(ctx context.Context) principal {
	if ctx == nil {
		return principal{}
	}
	p, _ := ctx.Value(principalKey{}).(principal)
	return p
}

func withPrincipal(ctx context.Context, mutate func(*principal)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	p := principalFrom(ctx)
	mutate(&p)
	return context.WithValue(ctx, principalKey{}, p)
}

func UserIDFromContext(ctx context.Context) string { return principalFrom(ctx).userID }

// UserUUIDFromContext returns the authenticated user, or false for anonymous
// requests.
func UserUUIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(principalFrom(ctx).userID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func RoleFromContext(ctx context.Context) string { return principalFrom(ctx).role }

func StoreIDFromContext(ctx context.Context) string { return principalFrom(ctx).storeID }

func WithUserID(ctx context.Context, userID string) context.Context {
	return withPrincipal(ctx, func(p *principal) { p.userID = userID })
}

func WithRole(ctx context.Context, role string) context.Context {
	return withPrincipal(ctx, func(p *principal) { p.role = role })
}

func WithStoreID(ctx context.Context, storeID string) context.Context {
	return withPrincipal(ctx, func(p *principal) { p.storeID = storeID })
}
