package shared

import (
	"context"

	"github.com/google/uuid"
)

// Role enumerates the maintenance roles resolved by the authentication gateway.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleSupervisor   Role = "supervisor"
	RoleForeman      Role = "foreman"
	RoleTeamMember   Role = "team_member"
	RoleVerifier     Role = "verifier"
	RoleStoreManager Role = "store_manager"
	RolePurchaser    Role = "purchaser"
)

// KnownRole reports whether r is part of the closed role vocabulary.
func KnownRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleSupervisor, RoleForeman, RoleTeamMember, RoleVerifier, RoleStoreManager, RolePurchaser:
		return true
	default:
		return false
	}
}

// Actor identifies the authenticated user performing an operation.
// Identity and role arrive already resolved at the request boundary.
type Actor struct {
	ID   uuid.UUID
	Name string
	Role Role
}

type actorContextKey struct{}

// ContextWithActor stores the actor on the request context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the actor stored by the gateway middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
