package api

import (
	"net/http"
	"strings"

	"github.com/astroulette/backend/internal/auth"
	"github.com/astroulette/backend/internal/store"
)

const accessTokenCookie = "access_token"

// JWTAuthMiddleware accepts the access token from the access_token cookie or
// an Authorization bearer header and puts the user on the request context.
func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""
		if c, err := r.Cookie(accessTokenCookie); err == nil {
			tokenString = c.Value
		}
		if authHeader := r.Header.Get("Authorization"); tokenString == "" && authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}
		if tokenString == "" {
			h.writeError(w, auth.ErrAuthInvalid)
			return
		}

		user, err := h.auth.Authenticate(r.Context(), tokenString)
		if err != nil {
			h.writeError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
	})
}

func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := auth.UserFrom(r.Context())
		if user == nil || user.Role != store.RoleAdmin {
			writeJSON(w, http.StatusForbidden, errorBody{Detail: "admin privileges required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
