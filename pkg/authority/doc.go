// Package authority implements role-based authorization for the content
// platform: a fixed role catalog, per-principal role assignments, and a
// decision engine that answers permission checks.
//
// # Overview
//
// Every principal holds at most one role assignment. Roles come from a
// closed, validated catalog; each role carries a set of directly granted
// permissions, a numeric level, and a list of roles it manages. The
// effective permissions of a role are the transitive closure of its own
// permissions and those of every role reachable through the manages
// relation.
//
// # Architecture
//
// The package consists of five key components:
//
//  1. RoleCatalog: the static role table with its manages hierarchy
//  2. Store: a principal-keyed assignment collection (Postgres or in-memory)
//  3. Cache: best-effort TTL memoization of resolved assignments
//  4. Engine: the decision surface (resolution, checks, mutations)
//  5. Migrator: idempotent bulk bootstrap from the legacy allow-list
//
// # Resolution
//
// The engine resolves a principal's assignment through the cache, then
// the store, then a legacy allow-list fallback that synthesizes a
// maximal-role assignment for principals grandfathered in from the old
// static configuration. Expiry is lazy: an expired row reads as absent
// but stays in the store until an explicit revoke.
//
// Resolution is read-only. Persisting a legacy fallback assignment
// happens through an explicit Bootstrap call (or the Migrator, which
// runs Bootstrap across the whole allow-list), never as a hidden side
// effect of a read. WithLegacyAutoPersist restores the old
// write-through behavior for deployments that depend on it.
//
// # Usage
//
//	store := authority.NewPostgresStore(db)
//	engine := authority.NewEngine(store,
//		authority.WithCache(authority.NewMemoryCache(authority.DefaultCacheTTL, 0)),
//		authority.WithLegacyAdmins(legacy),
//	)
//
//	ok, err := engine.HasPermission(ctx, "editor@example.com", authority.PermArticlesWrite)
//
// Store failures surface as errors, never as denials: a caller can
// distinguish "no" from "unavailable".
//
// # Related Packages
//
//   - pkg/observability: structured logging, metrics, health checks
//   - pkg/audit: audit trail for assignment mutations
//   - pkg/middleware: principal extraction for the HTTP layer
package authority
