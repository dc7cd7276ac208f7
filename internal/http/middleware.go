package http

import (
	"context"
	"net/http"

	"nexamarket/internal/models"
)

type ctxKey int

const actorKey ctxKey = 0

// Actor identity is resolved by the upstream auth gateway and forwarded in
// headers; this core trusts them.
func ActorFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-User-Id")
		if id == "" {
			writeError(w, http.StatusUnauthorized, "missing user id")
			return
		}
		actor := models.Actor{
			ID:      id,
			Name:    r.Header.Get("X-User-Name"),
			Email:   r.Header.Get("X-User-Email"),
			Picture: r.Header.Get("X-User-Picture"),
			Role:    models.Role(r.Header.Get("X-User-Role")),
		}
		if actor.Role == "" {
			actor.Role = models.RoleUser
		}
		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !actorFrom(r).IsAdmin() {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func actorFrom(r *http.Request) models.Actor {
	actor, _ := r.Context().Value(actorKey).(models.Actor)
	return actor
}
