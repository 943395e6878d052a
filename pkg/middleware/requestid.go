package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tidemark-dev/authority/pkg/contextkeys"
)

// RequestIDHeader propagates a correlation ID across services.
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware ensures every request carries a request ID,
// generating one when the incoming request has none, and echoes it on
// the response.
func RequestIDMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			w.Header().Set(RequestIDHeader, requestID)
			r = r.WithContext(contextkeys.WithRequestID(r.Context(), requestID))
			next.ServeHTTP(w, r)
		})
	}
}
