package actor

import (
	"context"

	"github.com/guillermoBallester/rowtrail/internal/core/domain"
)

type actorKey struct{}

// WithActor returns a context carrying the identity behind subsequent
// intercepted executions.
func WithActor(ctx context.Context, a domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// FromContext extracts an actor previously attached with WithActor.
func FromContext(ctx context.Context) (domain.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(domain.Actor)
	return a, ok
}

// ContextProvider resolves the actor from the request context. This is
// the provider to use when a middleware stashes the authenticated user
// into the context per request.
type ContextProvider struct{}

func (ContextProvider) Current(ctx context.Context) (domain.Actor, bool) {
	return FromContext(ctx)
}

// StaticProvider always reports the same actor, for services that run
// under a single fixed identity.
type StaticProvider struct {
	Actor domain.Actor
}

func (p StaticProvider) Current(context.Context) (domain.Actor, bool) {
	return p.Actor, true
}
