package testutil

import (
	"context"
	"time"

	"terrier/pkg/domain"
	"terrier/pkg/requestcontext"
)

// ActorContext builds a context carrying an authenticated actor, simulating
// what the auth middleware does for real requests.
func ActorContext(actor string, role domain.Role) context.Context {
	return requestcontext.WithActor(context.Background(), domain.ActorRef(actor), role)
}

// RegistrarContext builds a context for a registrar with an optional rank
// claim, as sequential approval tests need.
func RegistrarContext(actor, rank string) context.Context {
	ctx := ActorContext(actor, domain.RoleRegistrar)
	if rank != "" {
		ctx = requestcontext.WithRegistrarRank(ctx, rank)
	}
	return ctx
}

// FrozenClock pins the request-scoped clock so assertions on timestamps are
// deterministic.
func FrozenClock(ctx context.Context, t time.Time) context.Context {
	return requestcontext.WithTime(ctx, t)
}
