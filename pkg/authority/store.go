package authority

import (
	"context"
	"errors"
)

// Sentinel errors for the authority package. Store failures are wrapped
// and propagated as-is so callers can retry; they are never collapsed
// into a denial.
var (
	// ErrNotFound is returned by Store.Update when the principal has no
	// assignment. A partial update must not resurrect a deleted row.
	ErrNotFound = errors.New("authority: assignment not found")

	// ErrInvalidRole rejects a role identifier that is absent from the
	// catalog. It is a validation failure, distinct from a denial.
	ErrInvalidRole = errors.New("authority: role not in catalog")

	// ErrCannotManage rejects an assignment when the assigner's own role
	// does not outrank the role being granted.
	ErrCannotManage = errors.New("authority: assigner cannot manage role")
)

// Store abstracts the principal-keyed assignment collection. One
// document exists per principal; every method acts on exactly one
// principal atomically from the caller's point of view.
//
// Read returns (nil, nil) when the principal has no assignment. The
// engine filters results by current validity itself rather than
// trusting the store to evaluate lazy conditions like expiry.
type Store interface {
	// Read returns the assignment for a principal, or (nil, nil) if
	// none exists.
	Read(ctx context.Context, principal string) (*Assignment, error)

	// Write upserts the assignment, replacing any existing document for
	// the same principal in full.
	Write(ctx context.Context, assignment Assignment) error

	// Update merges the patch onto the existing assignment. It returns
	// ErrNotFound when the principal has no assignment.
	Update(ctx context.Context, principal string, patch AssignmentPatch) error

	// Delete removes the assignment. Deleting an absent principal is a
	// no-op, not an error.
	Delete(ctx context.Context, principal string) error

	// ListAll returns every stored assignment.
	ListAll(ctx context.Context) ([]Assignment, error)

	// ListByRole returns every stored assignment for the given role.
	ListByRole(ctx context.Context, role Role) ([]Assignment, error)
}

// applyPatch merges a patch onto an assignment. Shared by store
// implementations so merge semantics stay identical across backends.
func applyPatch(a *Assignment, patch AssignmentPatch) {
	if patch.Role != nil {
		a.Role = *patch.Role
	}
	if patch.IsActive != nil {
		a.IsActive = *patch.IsActive
	}
	if patch.ClearExpiresAt {
		a.ExpiresAt = nil
	} else if patch.ExpiresAt != nil {
		t := *patch.ExpiresAt
		a.ExpiresAt = &t
	}
	if patch.Restrictions != nil {
		r := *patch.Restrictions
		a.Restrictions = &r
	}
}
