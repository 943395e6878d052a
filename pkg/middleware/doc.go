// Package middleware provides HTTP middleware for request identity and
// correlation.
//
// # Middleware Components
//
// PrincipalMiddleware: trusted-header identity extraction
//
//	router.Use(middleware.PrincipalMiddleware(true))
//	// Reads X-Authenticated-Principal, adds principal to request context
//
// RequestIDMiddleware: request correlation
//
//	router.Use(middleware.RequestIDMiddleware())
//	// Propagates or generates X-Request-ID
//
// Authorization gates (RequirePermission and friends) live in
// pkg/authority next to the engine they consult.
//
// # Related Packages
//
//   - pkg/contextkeys: context key definitions
//   - pkg/authority: permission checking
package middleware
