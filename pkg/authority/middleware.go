package authority

import (
	"net/http"

	"github.com/tidemark-dev/authority/pkg/contextkeys"
)

// PermissionMiddleware provides HTTP middleware gates backed by an
// authorization engine. The authenticated principal is taken from the
// request context (see pkg/middleware.PrincipalMiddleware).
type PermissionMiddleware struct {
	engine *Engine
}

// NewPermissionMiddleware creates a middleware factory over the engine.
func NewPermissionMiddleware(engine *Engine) *PermissionMiddleware {
	return &PermissionMiddleware{engine: engine}
}

// RequirePermission creates middleware that requires a specific permission
func (pm *PermissionMiddleware) RequirePermission(perm Permission) func(http.Handler) http.Handler {
	return pm.gate(func(r *http.Request, principal string) (bool, error) {
		return pm.engine.HasPermission(r.Context(), principal, perm)
	})
}

// RequireAnyPermission creates middleware that passes when the principal
// holds at least one of the permissions
func (pm *PermissionMiddleware) RequireAnyPermission(perms ...Permission) func(http.Handler) http.Handler {
	return pm.gate(func(r *http.Request, principal string) (bool, error) {
		return pm.engine.HasAnyPermission(r.Context(), principal, perms...)
	})
}

// RequireAllPermissions creates middleware that passes only when the
// principal holds every one of the permissions
func (pm *PermissionMiddleware) RequireAllPermissions(perms ...Permission) func(http.Handler) http.Handler {
	return pm.gate(func(r *http.Request, principal string) (bool, error) {
		return pm.engine.HasAllPermissions(r.Context(), principal, perms...)
	})
}

func (pm *PermissionMiddleware) gate(check func(*http.Request, string) (bool, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := contextkeys.GetPrincipal(r.Context())
			if principal == "" {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			allowed, err := check(r, principal)
			if err != nil {
				// A store failure is unavailability, not a denial.
				http.Error(w, "Permission check failed", http.StatusServiceUnavailable)
				return
			}
			if !allowed {
				http.Error(w, "Insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
