package middleware

import (
	"context"

	"github.com/farmfresh/marketplace-backend/pkg/auth"
	"github.com/farmfresh/marketplace-backend/pkg/enums"
)

type contextKey string

const ctxActor contextKey = "actor"

// WithActor injects the authenticated caller into the context.
func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

// ActorFromContext returns the caller seeded by Auth, or the zero Actor.
func ActorFromContext(ctx context.Context) auth.Actor {
	if ctx == nil {
		return auth.Actor{}
	}
	if v, ok := ctx.Value(ctxActor).(auth.Actor); ok {
		return v
	}
	return auth.Actor{}
}

func UserIDFromContext(ctx context.Context) string {
	actor := ActorFromContext(ctx)
	if !actor.Valid() {
		return ""
	}
	return actor.UserID.String()
}

func RoleFromContext(ctx context.Context) enums.Role {
	return ActorFromContext(ctx).Role
}
