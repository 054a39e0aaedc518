package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"tasktrack.dev/internal/auth"
	"tasktrack.dev/internal/obs"
)

const authHeader = "Authorization"

// withAuth resolves the bearer token into a Principal. Handlers behind it can
// rely on auth.PrincipalFromContext.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.auth.Authenticate(r.Context(), r.Header.Get(authHeader))
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrMissingCredential):
				writeAuthError(w, r, http.StatusUnauthorized, "missing bearer token")
			case errors.Is(err, auth.ErrInvalidCredential):
				msg := "invalid or expired token"
				if a.devMode {
					msg += ": " + err.Error()
				}
				writeAuthError(w, r, http.StatusUnauthorized, msg)
			default:
				a.internalError(w, r, err)
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

// RequireRole admits only principals holding role.
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				writeAuthError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}
			if p.Role != role {
				obs.RecordAuthEvent("authorize", "forbidden")
				writeAuthError(w, r, http.StatusForbidden, "forbidden: "+strings.ToLower(string(role))+" only")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// principal returns the caller or writes 401. Only reachable without a
// principal if a route was registered outside withAuth.
func principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, r, http.StatusUnauthorized, "unauthorized")
	}
	return p, ok
}
