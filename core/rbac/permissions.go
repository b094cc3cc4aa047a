package rbac

// Permission names an action on a kind of resource.
type Permission string

const (
	UsersRead          Permission = "users:read"
	UsersWrite         Permission = "users:write"
	AgenciesRead       Permission = "agencies:read"
	AgenciesWrite      Permission = "agencies:write"
	TenantsRead        Permission = "tenants:read"
	TenantsWrite       Permission = "tenants:write"
	ProgramsRead       Permission = "programs:read"
	ProgramsWrite      Permission = "programs:write"
	EnrollmentsRead    Permission = "enrollments:read"
	EnrollmentsWrite   Permission = "enrollments:write"
	ProgressWrite      Permission = "progress:write"
	AssessmentsRead    Permission = "assessments:read"
	AssessmentsWrite   Permission = "assessments:write"
	AssessmentsRespond Permission = "assessments:respond"
	ReportsRead        Permission = "reports:read"
	ReportsWrite       Permission = "reports:write"
	CoachingRead       Permission = "coaching:read"
	CoachingWrite      Permission = "coaching:write"
	FilesRead          Permission = "files:read"
	FilesWrite         Permission = "files:write"
)

var allPermissions = []Permission{
	UsersRead, UsersWrite,
	AgenciesRead, AgenciesWrite,
	TenantsRead, TenantsWrite,
	ProgramsRead, ProgramsWrite,
	EnrollmentsRead, EnrollmentsWrite, ProgressWrite,
	AssessmentsRead, AssessmentsWrite, AssessmentsRespond,
	ReportsRead, ReportsWrite,
	CoachingRead, CoachingWrite,
	FilesRead, FilesWrite,
}

// Scope is how far a grant reaches; wider scopes include narrower ones.
type Scope int

const (
	ScopeNone Scope = iota
	ScopeOwn
	ScopeTenant
	ScopeAgency
	ScopeGlobal
)

func (s Scope) String() string {
	switch s {
	case ScopeOwn:
		return "own"
	case ScopeTenant:
		return "tenant"
	case ScopeAgency:
		return "agency"
	case ScopeGlobal:
		return "global"
	default:
		return "none"
	}
}

type grants map[Permission]Scope

func grantAll(scope Scope, except ...Permission) grants {
	g := make(grants, len(allPermissions))
	for _, p := range allPermissions {
		g[p] = scope
	}
	for _, p := range except {
		delete(g, p)
	}
	return g
}

var roleGrants = map[string]grants{
	RolePlatformAdmin: grantAll(ScopeGlobal),
	RoleAgencyOwner:   grantAll(ScopeAgency),
	RoleAgencyAdmin:   grantAll(ScopeAgency, AgenciesWrite),
	RoleTenantAdmin:   grantAll(ScopeTenant, AgenciesRead, AgenciesWrite, TenantsWrite),
	RoleFacilitator: {
		UsersRead:          ScopeTenant,
		ProgramsRead:       ScopeTenant,
		ProgramsWrite:      ScopeTenant,
		EnrollmentsRead:    ScopeTenant,
		EnrollmentsWrite:   ScopeTenant,
		ProgressWrite:      ScopeTenant,
		AssessmentsRead:    ScopeTenant,
		AssessmentsWrite:   ScopeTenant,
		AssessmentsRespond: ScopeOwn,
		ReportsRead:        ScopeTenant,
		ReportsWrite:       ScopeTenant,
		CoachingRead:       ScopeTenant,
		FilesRead:          ScopeTenant,
		FilesWrite:         ScopeOwn,
	},
	RoleCoach: {
		UsersRead:          ScopeTenant,
		ProgramsRead:       ScopeTenant,
		EnrollmentsRead:    ScopeOwn,
		AssessmentsRead:    ScopeOwn,
		AssessmentsRespond: ScopeOwn,
		ReportsRead:        ScopeOwn,
		CoachingRead:       ScopeOwn,
		CoachingWrite:      ScopeOwn,
		FilesRead:          ScopeOwn,
		FilesWrite:         ScopeOwn,
	},
	RoleLearner: {
		UsersRead:          ScopeOwn,
		ProgramsRead:       ScopeTenant,
		EnrollmentsRead:    ScopeOwn,
		ProgressWrite:      ScopeOwn,
		AssessmentsRead:    ScopeOwn,
		AssessmentsRespond: ScopeOwn,
		ReportsRead:        ScopeOwn,
		CoachingRead:       ScopeOwn,
		FilesRead:          ScopeOwn,
		FilesWrite:         ScopeOwn,
	},
}

func init() {
	roleGrants[RoleMentor] = roleGrants[RoleCoach]
}
