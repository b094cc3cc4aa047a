package rbac

import "strings"

// Roles
const (
	// Platform
	RolePlatform      = "platform:"
	RolePlatformAdmin = "platform:admin"

	// Agency
	RoleAgency      = "agency:"
	RoleAgencyOwner = "agency:owner"
	RoleAgencyAdmin = "agency:admin"

	// Tenant
	RoleTenant      = "tenant:"
	RoleTenantAdmin = "tenant:admin"

	RoleFacilitator = "facilitator:"
	RoleCoach       = "coach:"
	RoleMentor      = "mentor:"
	RoleLearner     = "learner:"
)

var (
	PlatformRoles = []string{RolePlatformAdmin}
	AgencyRoles   = []string{RoleAgencyOwner, RoleAgencyAdmin}
	TenantRoles   = []string{RoleTenantAdmin, RoleFacilitator, RoleCoach, RoleMentor, RoleLearner}
	AllRoles      = getAllRoles()

	rolePriorities = map[string]int{
		RolePlatformAdmin: 50,

		// Agency staff: 49 - 31
		RoleAgencyOwner: 40,
		RoleAgencyAdmin: 35,

		// Tenant: 30 - 1
		RoleTenantAdmin: 30,
		RoleFacilitator: 25,
		RoleCoach:       20,
		RoleMentor:      18,
		RoleLearner:     10,
	}

	Roles = []Role{
		{Name: "Learner", Value: RoleLearner},
		{Name: "Mentor", Value: RoleMentor},
		{Name: "Coach", Value: RoleCoach},
		{Name: "Facilitator", Value: RoleFacilitator},
		{Name: "Tenant Admin", Value: RoleTenantAdmin},
		{Name: "Agency Admin", Value: RoleAgencyAdmin},
		{Name: "Agency Owner", Value: RoleAgencyOwner},
		{Name: "Platform Admin", Value: RolePlatformAdmin},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func getAllRoles() []string {
	all := make([]string, 0, 8)
	all = append(all, PlatformRoles...)
	all = append(all, AgencyRoles...)
	all = append(all, TenantRoles...)
	return all
}

// IsRole reports whether role is a known role.
func IsRole(role string) bool {
	_, ok := rolePriorities[role]
	return ok
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

// HasRolePrefix reports whether any of roles starts with prefix.
func HasRolePrefix(roles []string, prefix string) bool {
	for _, role := range roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}
