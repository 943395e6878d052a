package authority

import (
	"time"
)

// Permission is an atomic capability tag (e.g. "articles:write").
// The catalog of permissions is closed: it is defined here and is not
// extensible at runtime.
type Permission string

const (
	PermArticlesRead    Permission = "articles:read"
	PermArticlesWrite   Permission = "articles:write"
	PermArticlesDelete  Permission = "articles:delete"
	PermArticlesPublish Permission = "articles:publish"

	PermEventsRead   Permission = "events:read"
	PermEventsWrite  Permission = "events:write"
	PermEventsDelete Permission = "events:delete"

	PermNewslettersRead  Permission = "newsletters:read"
	PermNewslettersWrite Permission = "newsletters:write"
	PermNewslettersSend  Permission = "newsletters:send"

	PermCommentsRead     Permission = "comments:read"
	PermCommentsModerate Permission = "comments:moderate"

	PermUsersRead   Permission = "users:read"
	PermUsersManage Permission = "users:manage"

	PermRolesRead   Permission = "roles:read"
	PermRolesManage Permission = "roles:manage"

	PermSettingsRead   Permission = "settings:read"
	PermSettingsManage Permission = "settings:manage"

	PermMediaUpload Permission = "media:upload"
	PermMediaDelete Permission = "media:delete"
)

// AllPermissions returns every permission in the catalog.
func AllPermissions() []Permission {
	return []Permission{
		PermArticlesRead,
		PermArticlesWrite,
		PermArticlesDelete,
		PermArticlesPublish,
		PermEventsRead,
		PermEventsWrite,
		PermEventsDelete,
		PermNewslettersRead,
		PermNewslettersWrite,
		PermNewslettersSend,
		PermCommentsRead,
		PermCommentsModerate,
		PermUsersRead,
		PermUsersManage,
		PermRolesRead,
		PermRolesManage,
		PermSettingsRead,
		PermSettingsManage,
		PermMediaUpload,
		PermMediaDelete,
	}
}

// Role is a role identifier in the catalog.
type Role string

// Built-in role identifiers.
const (
	RoleSuperAdmin     Role = "SUPER_ADMIN"
	RoleAdmin          Role = "ADMIN"
	RoleContentManager Role = "CONTENT_MANAGER"
	RoleEditor         Role = "EDITOR"
	RoleReadonly       Role = "READONLY"
)

// RoleDefinition describes a role: its directly granted permissions,
// its position in the level ordering, and the roles it manages.
type RoleDefinition struct {
	Role        Role         `json:"role"`
	DisplayName string       `json:"display_name"`
	Description string       `json:"description"`
	Level       int          `json:"level"`
	Badge       string       `json:"badge,omitempty"`
	Permissions []Permission `json:"permissions"`
	Manages     []Role       `json:"manages,omitempty"`
}

// Assignment binds a role to a principal. One assignment exists per
// principal; the store keys on the principal string.
type Assignment struct {
	Principal    string        `json:"principal"`
	Role         Role          `json:"role"`
	AssignedBy   string        `json:"assigned_by"`
	AssignedAt   time.Time     `json:"assigned_at"`
	IsActive     bool          `json:"is_active"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"`
	Restrictions *Restrictions `json:"restrictions,omitempty"`
}

// Valid reports whether the assignment is currently valid at the given
// instant. Expiry is evaluated lazily at read time; an expired row stays
// in the store until an explicit revoke.
func (a *Assignment) Valid(now time.Time) bool {
	if a == nil || !a.IsActive {
		return false
	}
	if a.ExpiresAt != nil && !now.Before(*a.ExpiresAt) {
		return false
	}
	return true
}

// AssignmentPatch carries a partial update for an assignment. Nil fields
// are left unchanged. ClearExpiresAt removes an existing expiry; it wins
// over ExpiresAt when both are set.
type AssignmentPatch struct {
	Role           *Role         `json:"role,omitempty"`
	IsActive       *bool         `json:"is_active,omitempty"`
	ExpiresAt      *time.Time    `json:"expires_at,omitempty"`
	ClearExpiresAt bool          `json:"clear_expires_at,omitempty"`
	Restrictions   *Restrictions `json:"restrictions,omitempty"`
}

// Restrictions narrows when an assignment may be exercised. The fields
// are persisted with the assignment and evaluated by CanPerformAction.
type Restrictions struct {
	IPAllowlist []string          `json:"ip_whitelist,omitempty"`
	Time        *TimeRestrictions `json:"time_restrictions,omitempty"`
}

// TimeRestrictions limits an assignment to a daily hour window and a set
// of weekdays.
type TimeRestrictions struct {
	AllowedHours HourRange      `json:"allowed_hours"`
	AllowedDays  []time.Weekday `json:"allowed_days,omitempty"`
}

// HourRange is a half-open [Start, End) range of hours in the day.
type HourRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ActionRequest describes a permission check with optional resource
// context. Resource and ResourceID select a registered resource checker;
// ClientIP feeds restriction evaluation when the resolved assignment
// carries an IP allow-list.
type ActionRequest struct {
	Permission Permission `json:"permission"`
	Resource   string     `json:"resource,omitempty"`
	ResourceID string     `json:"resource_id,omitempty"`
	ClientIP   string     `json:"client_ip,omitempty"`
}

// ResourceChecker is a per-resource-type predicate consulted by
// CanPerformAction after the base permission check passes. Registering
// no checker for a resource type means "allow".
type ResourceChecker func(principal, resourceID string) (bool, error)

// SystemMigrationActor is recorded as AssignedBy on assignments
// synthesized from the legacy allow-list.
const SystemMigrationActor = "system_migration"
