// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets the values; services read them. Keeping this package free of
// net/http lets services depend only on context.Context.
//
// Usage in services (read values):
//
//	actor := requestcontext.Actor(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithActor(ctx, "registrar-1", domain.RoleRegistrar)
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	"terrier/pkg/domain"
)

type (
	actorKey       struct{}
	roleKey        struct{}
	rankKey        struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Actor retrieves the authenticated actor ref from the context.
// Returns the zero value if not set.
func Actor(ctx context.Context) domain.ActorRef {
	if actor, ok := ctx.Value(actorKey{}).(domain.ActorRef); ok {
		return actor
	}
	return ""
}

// Role retrieves the authenticated role from the context.
func Role(ctx context.Context) domain.Role {
	if role, ok := ctx.Value(roleKey{}).(domain.Role); ok {
		return role
	}
	return ""
}

// WithActor injects an actor ref and role into the context.
func WithActor(ctx context.Context, actor domain.ActorRef, role domain.Role) context.Context {
	ctx = context.WithValue(ctx, actorKey{}, actor)
	return context.WithValue(ctx, roleKey{}, role)
}

// RegistrarRank retrieves the registrar's rank claim, used by sequential
// approval ordering. Empty for non-registrar actors.
func RegistrarRank(ctx context.Context) string {
	if rank, ok := ctx.Value(rankKey{}).(string); ok {
		return rank
	}
	return ""
}

// WithRegistrarRank injects a registrar rank into the context.
func WithRegistrarRank(ctx context.Context, rank string) context.Context {
	return context.WithValue(ctx, rankKey{}, rank)
}

// RequestID retrieves the request correlation ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() for non-HTTP contexts (workers, CLI, tests that
// don't care about the clock).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for service unit
// tests that don't run the HTTP middleware chain.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
