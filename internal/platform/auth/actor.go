package auth

import "context"

// Role is the closed set of caller roles the access policy understands.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleHubAdmin       Role = "hub_admin"
	RoleFranchiseAdmin Role = "franchise_admin"
	RoleOther          Role = "other"
)

// Actor identifies the authenticated caller for access decisions.
type Actor struct {
	UserID   string
	Role     Role
	TenantID int
}

type contextKey string

const actorKey contextKey = "actor"

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext extracts the actor; the zero Actor (empty role) is
// returned for unauthenticated contexts and resolves to an empty scope.
func ActorFromContext(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey).(Actor)
	return a
}
