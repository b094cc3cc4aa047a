package rbac

import (
	"github.com/trezcool/tos/core"
)

var ErrNoGrant = core.NewForbiddenError("permission denied")

type (
	// Actor is the authenticated principal a permission is checked for.
	Actor struct {
		ID       string
		AgencyID string
		TenantID string
		Roles    []string
	}

	// Resource locates an object in the agency > tenant > user hierarchy.
	Resource struct {
		AgencyID string
		TenantID string
		OwnerIDs []string
	}

	// Visibility is the filter list queries apply for an Actor.
	// Only the field matching Scope is meaningful.
	Visibility struct {
		Scope    Scope
		AgencyID string
		TenantID string
		UserID   string
	}
)

func (a Actor) IsPlatformAdmin() bool {
	return HasRolePrefix(a.Roles, RolePlatform)
}

// Scope returns the widest scope any of the actor's roles grants for perm.
func (a Actor) Scope(perm Permission) (Scope, bool) {
	widest := ScopeNone
	for _, role := range a.Roles {
		if g, ok := roleGrants[role]; ok {
			if s := g[perm]; s > widest {
				widest = s
			}
		}
	}
	return widest, widest != ScopeNone
}

// Can reports whether the actor holds perm on res.
func (a Actor) Can(perm Permission, res Resource) bool {
	scope, ok := a.Scope(perm)
	if !ok {
		return false
	}
	return scope.matches(a, res)
}

func (s Scope) matches(a Actor, res Resource) bool {
	switch s {
	case ScopeGlobal:
		return true
	case ScopeAgency:
		return a.AgencyID != "" && a.AgencyID == res.AgencyID
	case ScopeTenant:
		return a.AgencyID != "" && a.AgencyID == res.AgencyID &&
			a.TenantID != "" && a.TenantID == res.TenantID
	case ScopeOwn:
		return a.ID != "" && core.ContainsString(res.OwnerIDs, a.ID)
	default:
		return false
	}
}

// Visibility returns the filter to apply to a list query for perm.
func (a Actor) Visibility(perm Permission) (Visibility, error) {
	scope, ok := a.Scope(perm)
	if !ok {
		return Visibility{}, ErrNoGrant
	}
	vis := Visibility{Scope: scope}
	switch scope {
	case ScopeAgency:
		if a.AgencyID == "" {
			return Visibility{}, ErrNoGrant
		}
		vis.AgencyID = a.AgencyID
	case ScopeTenant:
		if a.AgencyID == "" || a.TenantID == "" {
			return Visibility{}, ErrNoGrant
		}
		vis.AgencyID = a.AgencyID
		vis.TenantID = a.TenantID
	case ScopeOwn:
		vis.UserID = a.ID
	}
	return vis, nil
}

// Allows reports whether res passes the visibility filter. In-memory repositories use it.
func (v Visibility) Allows(res Resource) bool {
	switch v.Scope {
	case ScopeGlobal:
		return true
	case ScopeAgency:
		return v.AgencyID != "" && v.AgencyID == res.AgencyID
	case ScopeTenant:
		return v.AgencyID != "" && v.AgencyID == res.AgencyID &&
			v.TenantID != "" && v.TenantID == res.TenantID
	case ScopeOwn:
		return v.UserID != "" && core.ContainsString(res.OwnerIDs, v.UserID)
	default:
		return false
	}
}

// CanAssignRoles reports whether the actor may grant every role of roles.
func (a Actor) CanAssignRoles(roles []string) bool {
	if MaxRolePriority(roles) > MaxRolePriority(a.Roles) {
		return false
	}
	for _, role := range roles {
		if !IsRole(role) {
			return false
		}
		if role == RolePlatformAdmin && !a.IsPlatformAdmin() {
			return false
		}
	}
	return true
}

// Can is a shorthand for actor.Can.
func Can(actor Actor, perm Permission, res Resource) bool {
	return actor.Can(perm, res)
}
