package authority

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tidemark-dev/authority/pkg/audit"
	"github.com/tidemark-dev/authority/pkg/observability"
)

// Engine is the authorization decision surface. It resolves the role
// assignment for a principal through a cache, the role store and a
// legacy allow-list fallback, in that order, and answers permission
// checks against the role catalog.
//
// The engine is fully correct with a nil cache; the cache is a latency
// optimization, never a source of truth. Store failures are propagated
// to the caller, never collapsed into a denial and never cached.
type Engine struct {
	catalog *RoleCatalog
	store   Store
	cache   Cache
	legacy  *LegacyAdmins

	now     func() time.Time
	log     *observability.Logger
	metrics *observability.Metrics
	auditor audit.Logger

	// autoPersistLegacy restores the behavior where a legacy-fallback
	// resolution writes the synthesized assignment through to the store.
	// Off by default: resolution is read-only and persistence happens
	// through an explicit Bootstrap call.
	autoPersistLegacy bool

	mu       sync.RWMutex
	checkers map[string]ResourceChecker
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCatalog replaces the built-in role catalog.
func WithCatalog(catalog *RoleCatalog) EngineOption {
	return func(e *Engine) { e.catalog = catalog }
}

// WithCache attaches an assignment cache.
func WithCache(cache Cache) EngineOption {
	return func(e *Engine) { e.cache = cache }
}

// WithLegacyAdmins attaches the legacy allow-list consulted when a
// principal has no stored assignment.
func WithLegacyAdmins(legacy *LegacyAdmins) EngineOption {
	return func(e *Engine) { e.legacy = legacy }
}

// WithClock overrides the engine's time source. Used by tests to drive
// expiry without sleeping.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithLogger attaches a structured logger.
func WithLogger(log *observability.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// WithMetrics attaches decision and resolution metrics.
func WithMetrics(metrics *observability.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = metrics }
}

// WithAuditLogger attaches an audit sink for assignment mutations and
// denied accesses.
func WithAuditLogger(auditor audit.Logger) EngineOption {
	return func(e *Engine) { e.auditor = auditor }
}

// WithLegacyAutoPersist makes ResolveAssignment persist the assignment
// it synthesizes from the legacy allow-list, instead of leaving
// persistence to an explicit Bootstrap call.
func WithLegacyAutoPersist() EngineOption {
	return func(e *Engine) { e.autoPersistLegacy = true }
}

// NewEngine creates an authorization engine over the given store.
func NewEngine(store Store, opts ...EngineOption) *Engine {
	e := &Engine{
		catalog:  DefaultCatalog(),
		store:    store,
		now:      time.Now,
		log:      observability.NewLogger(observability.InfoLevel, io.Discard),
		checkers: make(map[string]ResourceChecker),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the role catalog the engine decides against.
func (e *Engine) Catalog() *RoleCatalog { return e.catalog }

// ResolveAssignment returns the currently valid assignment for a
// principal, or (nil, nil) when none exists. Resolution order is cache,
// store, legacy allow-list. Expired or inactive rows are treated as
// absent without being removed from the store.
func (e *Engine) ResolveAssignment(ctx context.Context, principal string) (*Assignment, error) {
	now := e.now()

	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, principal); ok {
			if e.metrics != nil {
				e.metrics.CacheHitsTotal.Inc()
			}
			if cached.Valid(now) {
				e.observeResolution("cache")
				return cached, nil
			}
			// The cached copy went invalid mid-TTL (expiry passed).
			// Drop it and fall through to the store.
			e.cache.Invalidate(ctx, principal)
		} else if e.metrics != nil {
			e.metrics.CacheMissesTotal.Inc()
		}
	}

	stored, err := e.store.Read(ctx, principal)
	if err != nil {
		if e.metrics != nil {
			e.metrics.ObserveStoreError("read")
		}
		return nil, fmt.Errorf("resolving assignment for %q: %w", principal, err)
	}
	if stored != nil {
		if !stored.Valid(now) {
			// Expired or deactivated rows read as absent but stay in
			// the store until an explicit revoke. Not cached, so the
			// row becomes visible again the instant it is reactivated.
			e.observeResolution("none")
			return nil, nil
		}
		if e.cache != nil {
			e.cache.Set(ctx, principal, *stored)
		}
		e.observeResolution("store")
		return stored, nil
	}

	if e.legacy != nil && e.legacy.Contains(principal) {
		assignment := e.synthesizeLegacy(principal, now)
		if e.autoPersistLegacy {
			if err := e.store.Write(ctx, *assignment); err != nil {
				if e.metrics != nil {
					e.metrics.ObserveStoreError("write")
				}
				return nil, fmt.Errorf("persisting legacy assignment for %q: %w", principal, err)
			}
		}
		if e.cache != nil {
			e.cache.Set(ctx, principal, *assignment)
		}
		e.observeResolution("legacy")
		e.log.WithPrincipal(principal).Debug("assignment resolved from legacy allow-list")
		return assignment, nil
	}

	e.observeResolution("none")
	return nil, nil
}

// synthesizeLegacy builds the maximal-role assignment granted to
// principals on the legacy allow-list.
func (e *Engine) synthesizeLegacy(principal string, now time.Time) *Assignment {
	return &Assignment{
		Principal:  principal,
		Role:       e.catalog.MaximalRole(),
		AssignedBy: SystemMigrationActor,
		AssignedAt: now,
		IsActive:   true,
	}
}

// Bootstrap persists the legacy allow-list assignment for a principal
// if, and only if, the principal has no stored assignment. It returns
// the assignment in effect and whether this call created it.
func (e *Engine) Bootstrap(ctx context.Context, principal string) (*Assignment, bool, error) {
	stored, err := e.store.Read(ctx, principal)
	if err != nil {
		if e.metrics != nil {
			e.metrics.ObserveStoreError("read")
		}
		return nil, false, fmt.Errorf("bootstrapping %q: %w", principal, err)
	}
	if stored != nil {
		return stored, false, nil
	}
	if e.legacy == nil || !e.legacy.Contains(principal) {
		return nil, false, nil
	}

	assignment := e.synthesizeLegacy(principal, e.now())
	if err := e.store.Write(ctx, *assignment); err != nil {
		if e.metrics != nil {
			e.metrics.ObserveStoreError("write")
		}
		return nil, false, fmt.Errorf("bootstrapping %q: %w", principal, err)
	}
	if e.cache != nil {
		e.cache.Set(ctx, principal, *assignment)
	}
	if e.metrics != nil {
		e.metrics.ObserveAssignmentChange("bootstrap")
	}
	e.auditEvent(ctx, audit.NewEvent(audit.EventTypeLegacyBootstrap, SystemMigrationActor, principal).
		WithRole(string(assignment.Role)).
		WithMessage("assignment bootstrapped from legacy allow-list"))
	return assignment, true, nil
}

// HasPermission reports whether the principal's resolved role grants the
// permission, directly or through the manages hierarchy.
func (e *Engine) HasPermission(ctx context.Context, principal string, perm Permission) (bool, error) {
	assignment, err := e.ResolveAssignment(ctx, principal)
	if err != nil {
		return false, err
	}
	allowed := assignment != nil && e.catalog.RoleHasPermission(assignment.Role, perm)
	if e.metrics != nil {
		e.metrics.ObserveDecision(string(perm), allowed)
	}
	return allowed, nil
}

// HasAnyPermission reports whether the principal holds at least one of
// the permissions. It short-circuits on the first grant.
func (e *Engine) HasAnyPermission(ctx context.Context, principal string, perms ...Permission) (bool, error) {
	for _, perm := range perms {
		ok, err := e.HasPermission(ctx, principal, perm)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAllPermissions reports whether the principal holds every one of the
// permissions. It short-circuits on the first denial. An empty list
// vacuously passes.
func (e *Engine) HasAllPermissions(ctx context.Context, principal string, perms ...Permission) (bool, error) {
	for _, perm := range perms {
		ok, err := e.HasPermission(ctx, principal, perm)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// CanPerformAction evaluates a permission check with optional resource
// and client context. The base permission check is ANDed with the
// assignment's restrictions and, when a resource context is supplied,
// with the registered checker for that resource type. A resource type
// with no registered checker allows.
func (e *Engine) CanPerformAction(ctx context.Context, principal string, req ActionRequest) (bool, error) {
	assignment, err := e.ResolveAssignment(ctx, principal)
	if err != nil {
		return false, err
	}

	allowed := assignment != nil && e.catalog.RoleHasPermission(assignment.Role, req.Permission)
	if allowed && assignment.Restrictions != nil {
		allowed = assignment.Restrictions.Satisfied(req.ClientIP, e.now())
	}
	if allowed && req.Resource != "" {
		if checker := e.resourceChecker(req.Resource); checker != nil {
			allowed, err = checker(principal, req.ResourceID)
			if err != nil {
				return false, fmt.Errorf("resource checker for %q: %w", req.Resource, err)
			}
		}
	}

	if e.metrics != nil {
		e.metrics.ObserveDecision(string(req.Permission), allowed)
	}
	if !allowed {
		e.auditEvent(ctx, audit.NewEvent(audit.EventTypeAccessDenied, principal, principal).
			WithStatus(audit.EventStatusDenied).
			WithMessage(fmt.Sprintf("denied %s on %s", req.Permission, req.Resource)))
	}
	return allowed, nil
}

// RegisterResourceChecker installs the predicate consulted by
// CanPerformAction for the given resource type, replacing any previous
// one.
func (e *Engine) RegisterResourceChecker(resource string, checker ResourceChecker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkers[resource] = checker
}

func (e *Engine) resourceChecker(resource string) ResourceChecker {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.checkers[resource]
}

// AssignOption customizes an AssignRole call.
type AssignOption func(*Assignment)

// WithExpiry makes the assignment expire at the given instant.
func WithExpiry(expiresAt time.Time) AssignOption {
	return func(a *Assignment) { a.ExpiresAt = &expiresAt }
}

// WithRestrictions attaches usage restrictions to the assignment.
func WithRestrictions(r Restrictions) AssignOption {
	return func(a *Assignment) { a.Restrictions = &r }
}

// AssignRole grants a role to a principal, replacing any existing
// assignment. The role must exist in the catalog, and if the assigner
// has a resolved role of their own it must outrank the role being
// granted. Assigners with no assignment of their own (seed and system
// actors) bypass the management check.
func (e *Engine) AssignRole(ctx context.Context, principal string, role Role, assignedBy string, opts ...AssignOption) (*Assignment, error) {
	if !e.catalog.IsValidRole(role) {
		return nil, fmt.Errorf("assigning role %q: %w", role, ErrInvalidRole)
	}
	if err := e.checkAssigner(ctx, assignedBy, role); err != nil {
		e.auditEvent(ctx, audit.NewEvent(audit.EventTypeRoleAssign, assignedBy, principal).
			WithRole(string(role)).
			WithStatus(audit.EventStatusDenied).
			WithMessage(err.Error()))
		return nil, err
	}

	assignment := Assignment{
		Principal:  principal,
		Role:       role,
		AssignedBy: assignedBy,
		AssignedAt: e.now(),
		IsActive:   true,
	}
	for _, opt := range opts {
		opt(&assignment)
	}

	if err := e.store.Write(ctx, assignment); err != nil {
		if e.metrics != nil {
			e.metrics.ObserveStoreError("write")
		}
		return nil, fmt.Errorf("assigning role to %q: %w", principal, err)
	}
	if e.cache != nil {
		e.cache.Invalidate(ctx, principal)
	}
	if e.metrics != nil {
		e.metrics.ObserveAssignmentChange("assign")
	}
	e.log.WithPrincipal(principal).WithField("role", string(role)).Info("role assigned")
	e.auditEvent(ctx, audit.NewEvent(audit.EventTypeRoleAssign, assignedBy, principal).
		WithRole(string(role)))
	return &assignment, nil
}

// UpdateRole merges a partial update onto an existing assignment. A role
// change is re-validated against the catalog and against the updater's
// management reach. Returns ErrNotFound when the principal has no
// assignment; an update never resurrects a revoked principal.
func (e *Engine) UpdateRole(ctx context.Context, principal string, patch AssignmentPatch, updatedBy string) error {
	if patch.Role != nil {
		if !e.catalog.IsValidRole(*patch.Role) {
			return fmt.Errorf("updating role to %q: %w", *patch.Role, ErrInvalidRole)
		}
		if err := e.checkAssigner(ctx, updatedBy, *patch.Role); err != nil {
			return err
		}
	}

	if err := e.store.Update(ctx, principal, patch); err != nil {
		if e.metrics != nil && !errors.Is(err, ErrNotFound) {
			e.metrics.ObserveStoreError("update")
		}
		return fmt.Errorf("updating assignment for %q: %w", principal, err)
	}
	if e.cache != nil {
		e.cache.Invalidate(ctx, principal)
	}
	if e.metrics != nil {
		e.metrics.ObserveAssignmentChange("update")
	}
	event := audit.NewEvent(audit.EventTypeRoleUpdate, updatedBy, principal)
	if patch.Role != nil {
		event = event.WithRole(string(*patch.Role))
	}
	e.auditEvent(ctx, event)
	return nil
}

// RevokeRole deletes the principal's assignment and invalidates its
// cache entry. Revoking a principal with no assignment succeeds
// silently.
func (e *Engine) RevokeRole(ctx context.Context, principal string, revokedBy string) error {
	if err := e.store.Delete(ctx, principal); err != nil {
		if e.metrics != nil {
			e.metrics.ObserveStoreError("delete")
		}
		return fmt.Errorf("revoking assignment for %q: %w", principal, err)
	}
	if e.cache != nil {
		e.cache.Invalidate(ctx, principal)
	}
	if e.metrics != nil {
		e.metrics.ObserveAssignmentChange("revoke")
	}
	e.log.WithPrincipal(principal).Info("role revoked")
	e.auditEvent(ctx, audit.NewEvent(audit.EventTypeRoleRevoke, revokedBy, principal))
	return nil
}

// CanManageRole reports whether a manager role outranks a target role.
// Exposed for management tooling; delegates to the catalog.
func (e *Engine) CanManageRole(managerRole, targetRole Role) bool {
	return e.catalog.CanManage(managerRole, targetRole)
}

// EffectivePermissions returns the full transitive permission set of the
// principal's resolved role, or an empty slice when the principal has no
// valid assignment.
func (e *Engine) EffectivePermissions(ctx context.Context, principal string) ([]Permission, error) {
	assignment, err := e.ResolveAssignment(ctx, principal)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return []Permission{}, nil
	}
	return e.catalog.EffectivePermissions(assignment.Role), nil
}

// checkAssigner rejects a grant the assigner's own role cannot manage.
// Named assigners with no resolved assignment bypass the check; they are
// seed or system actors, not interactive users. An empty assigner is
// rejected outright: anonymity is not a privilege.
func (e *Engine) checkAssigner(ctx context.Context, assignedBy string, role Role) error {
	if assignedBy == SystemMigrationActor {
		return nil
	}
	if assignedBy == "" {
		return fmt.Errorf("anonymous assigner cannot grant %q: %w", role, ErrCannotManage)
	}
	assignerAssignment, err := e.ResolveAssignment(ctx, assignedBy)
	if err != nil {
		return fmt.Errorf("resolving assigner %q: %w", assignedBy, err)
	}
	if assignerAssignment == nil {
		return nil
	}
	if !e.catalog.CanManage(assignerAssignment.Role, role) {
		return fmt.Errorf("assigner %q with role %q cannot grant %q: %w",
			assignedBy, assignerAssignment.Role, role, ErrCannotManage)
	}
	return nil
}

// auditEvent delivers an event to the audit sink, if one is configured.
// Audit failures are logged and swallowed; they never fail the
// triggering operation.
func (e *Engine) auditEvent(ctx context.Context, event *audit.Event) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.Log(ctx, event); err != nil {
		e.log.WithError(err).Warn("audit event dropped")
	}
}

func (e *Engine) observeResolution(source string) {
	if e.metrics != nil {
		e.metrics.ObserveResolution(source)
	}
}
