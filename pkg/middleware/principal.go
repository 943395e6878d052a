package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/tidemark-dev/authority/pkg/contextkeys"
)

// PrincipalHeader carries the identity established by the upstream
// authentication layer. This service trusts the header; it sits behind
// the gateway that sets it.
const PrincipalHeader = "X-Authenticated-Principal"

// PrincipalMiddleware extracts the authenticated principal from the
// request headers and stores it in the request context. When required
// is true, requests without a principal are rejected with 401.
func PrincipalMiddleware(required bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := strings.TrimSpace(r.Header.Get(PrincipalHeader))
			if principal == "" && required {
				writeJSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if principal != "" {
				r = r.WithContext(contextkeys.WithPrincipal(r.Context(), principal))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
