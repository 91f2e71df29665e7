package rbac

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tana-fms/tana-fms/internal/shared"
)

// Header names populated by the authentication gateway in front of this service.
const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorName = "X-Actor-Name"
	HeaderActorRole = "X-Actor-Role"
)

// Middleware wires actor resolution and authorization for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// ResolveActor reads the gateway headers and stores the actor on the context.
// Requests without a valid actor are rejected before reaching a handler.
func (m Middleware) ResolveActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get(HeaderActorID))
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		role := shared.Role(r.Header.Get(HeaderActorRole))
		if !shared.KnownRole(role) {
			if m.Logger != nil {
				m.Logger.Warn("unknown actor role", slog.String("role", string(role)))
			}
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		actor := shared.Actor{ID: id, Name: r.Header.Get(HeaderActorName), Role: role}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// Require ensures the current actor may perform the action.
func (m Middleware) Require(action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if !Allowed(actor.Role, action) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
