package api

import (
	"net/http"
	"strconv"

	"github.com/krama-desa/iuran/pkg/httputil"
	"github.com/krama-desa/iuran/pkg/rbac"
)

// Identity headers set by the authenticating gateway in front of the API
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
	HeaderActorName = "X-Actor-Name"
)

// ActorMiddleware builds the rbac.Actor for the request from the gateway
// identity headers. Requests without a usable identity get a 401.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idHeader := r.Header.Get(HeaderActorID)
		if idHeader == "" {
			httputil.WriteErrorResponse(w, http.StatusUnauthorized, httputil.ErrorResponse{
				Error: "missing " + HeaderActorID + " header",
				Code:  codeUnauthenticated,
			})
			return
		}
		id, err := strconv.ParseInt(idHeader, 10, 64)
		if err != nil || id <= 0 {
			httputil.WriteErrorResponse(w, http.StatusUnauthorized, httputil.ErrorResponse{
				Error: "invalid " + HeaderActorID + " header",
				Code:  codeUnauthenticated,
			})
			return
		}
		role, err := rbac.ParseRole(r.Header.Get(HeaderActorRole))
		if err != nil {
			httputil.WriteErrorResponse(w, http.StatusUnauthorized, httputil.ErrorResponse{
				Error: err.Error(),
				Code:  codeUnauthenticated,
			})
			return
		}

		actor := rbac.Actor{UserID: id, Name: r.Header.Get(HeaderActorName), Role: role}
		next.ServeHTTP(w, r.WithContext(rbac.WithActor(r.Context(), actor)))
	})
}

// actorFrom returns the actor stored by ActorMiddleware
func actorFrom(r *http.Request) rbac.Actor {
	actor, _ := rbac.ActorFromContext(r.Context())
	return actor
}
