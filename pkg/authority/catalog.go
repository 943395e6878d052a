package authority

import (
	"fmt"
	"sort"
)

// RoleCatalog is the static, immutable table of role definitions and the
// manages-hierarchy between them. It is built once at startup; its
// methods never mutate it and are safe for concurrent use.
type RoleCatalog struct {
	defs map[Role]RoleDefinition
}

// NewRoleCatalog builds a catalog from the given definitions and
// validates it: every referenced role must exist, levels must be
// strictly distinct, a manager's level must be strictly greater than
// every role it manages, and the manages relation must be acyclic.
func NewRoleCatalog(defs []RoleDefinition) (*RoleCatalog, error) {
	c := &RoleCatalog{defs: make(map[Role]RoleDefinition, len(defs))}
	for _, def := range defs {
		if _, dup := c.defs[def.Role]; dup {
			return nil, fmt.Errorf("duplicate role definition: %s", def.Role)
		}
		c.defs[def.Role] = def
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *RoleCatalog) validate() error {
	levels := make(map[int]Role, len(c.defs))
	for role, def := range c.defs {
		if prev, taken := levels[def.Level]; taken {
			return fmt.Errorf("roles %s and %s share level %d", prev, role, def.Level)
		}
		levels[def.Level] = role

		for _, managed := range def.Manages {
			target, ok := c.defs[managed]
			if !ok {
				return fmt.Errorf("role %s manages unknown role %s", role, managed)
			}
			if def.Level <= target.Level {
				return fmt.Errorf("role %s (level %d) cannot manage %s (level %d)",
					role, def.Level, managed, target.Level)
			}
		}
	}

	// The strict level ordering above already rules out cycles, but walk
	// the hierarchy anyway so a broken catalog fails loudly here rather
	// than during permission expansion.
	for role := range c.defs {
		if err := c.checkCycle(role, make(map[Role]bool)); err != nil {
			return err
		}
	}
	return nil
}

func (c *RoleCatalog) checkCycle(role Role, path map[Role]bool) error {
	if path[role] {
		return fmt.Errorf("hierarchy cycle through role %s", role)
	}
	path[role] = true
	for _, managed := range c.defs[role].Manages {
		if err := c.checkCycle(managed, path); err != nil {
			return err
		}
	}
	delete(path, role)
	return nil
}

// Definition returns the definition for a role.
func (c *RoleCatalog) Definition(role Role) (RoleDefinition, bool) {
	def, ok := c.defs[role]
	return def, ok
}

// IsValidRole reports whether the role exists in the catalog.
func (c *RoleCatalog) IsValidRole(role Role) bool {
	_, ok := c.defs[role]
	return ok
}

// DirectPermissions returns the permissions granted directly to a role,
// without hierarchy expansion. The result is a copy.
func (c *RoleCatalog) DirectPermissions(role Role) []Permission {
	def, ok := c.defs[role]
	if !ok {
		return nil
	}
	perms := make([]Permission, len(def.Permissions))
	copy(perms, def.Permissions)
	return perms
}

// EffectivePermissions returns the transitive-closure permission set of
// a role: its direct permissions unioned with the effective permissions
// of every role reachable through the manages hierarchy. The result is
// sorted and deduplicated.
func (c *RoleCatalog) EffectivePermissions(role Role) []Permission {
	if _, ok := c.defs[role]; !ok {
		return nil
	}

	seen := make(map[Permission]bool)
	visited := make(map[Role]bool)
	c.collectPermissions(role, seen, visited)

	perms := make([]Permission, 0, len(seen))
	for p := range seen {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

func (c *RoleCatalog) collectPermissions(role Role, seen map[Permission]bool, visited map[Role]bool) {
	if visited[role] {
		return
	}
	visited[role] = true

	def, ok := c.defs[role]
	if !ok {
		return
	}
	for _, p := range def.Permissions {
		seen[p] = true
	}
	for _, managed := range def.Manages {
		c.collectPermissions(managed, seen, visited)
	}
}

// RoleHasPermission reports whether the permission is in the role's
// effective permission set.
func (c *RoleCatalog) RoleHasPermission(role Role, perm Permission) bool {
	seen := make(map[Permission]bool)
	visited := make(map[Role]bool)
	c.collectPermissions(role, seen, visited)
	return seen[perm]
}

// CanManage reports whether managerRole may manage targetRole. The
// relation is a strict level comparison, so it is irreflexive by
// construction.
func (c *RoleCatalog) CanManage(managerRole, targetRole Role) bool {
	manager, ok := c.defs[managerRole]
	if !ok {
		return false
	}
	target, ok := c.defs[targetRole]
	if !ok {
		return false
	}
	return manager.Level > target.Level
}

// Roles returns every definition in the catalog, ordered by descending
// level.
func (c *RoleCatalog) Roles() []RoleDefinition {
	defs := make([]RoleDefinition, 0, len(c.defs))
	for _, def := range c.defs {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Level > defs[j].Level })
	return defs
}

// MaximalRole returns the highest-level role in the catalog. Legacy
// allow-list principals are synthesized with this role.
func (c *RoleCatalog) MaximalRole() Role {
	var top Role
	level := -1
	for role, def := range c.defs {
		if def.Level > level {
			top = role
			level = def.Level
		}
	}
	return top
}

// BuiltInDefinitions returns the fixed role set for the application.
func BuiltInDefinitions() []RoleDefinition {
	return []RoleDefinition{
		{
			Role:        RoleSuperAdmin,
			DisplayName: "Super Administrator",
			Description: "Unrestricted access, including role management",
			Level:       100,
			Badge:       "crown",
			Permissions: AllPermissions(),
			Manages:     []Role{RoleAdmin},
		},
		{
			Role:        RoleAdmin,
			DisplayName: "Administrator",
			Description: "User and site administration",
			Level:       80,
			Badge:       "shield",
			Permissions: []Permission{
				PermUsersRead,
				PermUsersManage,
				PermRolesRead,
				PermSettingsRead,
				PermSettingsManage,
				PermMediaDelete,
			},
			Manages: []Role{RoleContentManager},
		},
		{
			Role:        RoleContentManager,
			DisplayName: "Content Manager",
			Description: "Full control over published content",
			Level:       60,
			Badge:       "pen",
			Permissions: []Permission{
				PermArticlesWrite,
				PermArticlesDelete,
				PermArticlesPublish,
				PermEventsWrite,
				PermEventsDelete,
				PermNewslettersWrite,
				PermNewslettersSend,
				PermCommentsModerate,
				PermMediaUpload,
			},
			Manages: []Role{RoleEditor},
		},
		{
			Role:        RoleEditor,
			DisplayName: "Editor",
			Description: "Draft and edit content",
			Level:       40,
			Badge:       "pencil",
			Permissions: []Permission{
				PermArticlesWrite,
				PermEventsWrite,
				PermNewslettersWrite,
				PermMediaUpload,
			},
			Manages: []Role{RoleReadonly},
		},
		{
			Role:        RoleReadonly,
			DisplayName: "Read Only",
			Description: "Read-only access to site content",
			Level:       20,
			Badge:       "eye",
			Permissions: []Permission{
				PermArticlesRead,
				PermEventsRead,
				PermNewslettersRead,
				PermCommentsRead,
			},
		},
	}
}

// DefaultCatalog returns the catalog for the built-in role set.
func DefaultCatalog() *RoleCatalog {
	c, err := NewRoleCatalog(BuiltInDefinitions())
	if err != nil {
		// Built-in definitions are fixed at compile time; a validation
		// failure here is a programming error.
		panic(err)
	}
	return c
}
