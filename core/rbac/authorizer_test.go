package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActor_Scope(t *testing.T) {
	tests := []struct {
		name      string
		roles     []string
		perm      Permission
		wantScope Scope
		wantOk    bool
	}{
		{name: "no roles", perm: UsersRead, wantScope: ScopeNone},
		{name: "unknown role", roles: []string{"lol:"}, perm: UsersRead, wantScope: ScopeNone},
		{name: "platform admin", roles: []string{RolePlatformAdmin}, perm: AgenciesWrite, wantScope: ScopeGlobal, wantOk: true},
		{name: "agency owner writes agencies", roles: []string{RoleAgencyOwner}, perm: AgenciesWrite, wantScope: ScopeAgency, wantOk: true},
		{name: "agency admin cannot write agencies", roles: []string{RoleAgencyAdmin}, perm: AgenciesWrite, wantScope: ScopeNone},
		{name: "tenant admin reads tenants", roles: []string{RoleTenantAdmin}, perm: TenantsRead, wantScope: ScopeTenant, wantOk: true},
		{name: "tenant admin cannot write tenants", roles: []string{RoleTenantAdmin}, perm: TenantsWrite, wantScope: ScopeNone},
		{name: "learner own enrollments", roles: []string{RoleLearner}, perm: EnrollmentsRead, wantScope: ScopeOwn, wantOk: true},
		{name: "mentor writes coaching", roles: []string{RoleMentor}, perm: CoachingWrite, wantScope: ScopeOwn, wantOk: true},
		{
			name: "widest role wins", roles: []string{RoleLearner, RoleFacilitator}, perm: EnrollmentsRead,
			wantScope: ScopeTenant, wantOk: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope, ok := Actor{ID: "u1", Roles: tt.roles}.Scope(tt.perm)
			assert.Equal(t, tt.wantScope, scope)
			assert.Equal(t, tt.wantOk, ok)
		})
	}
}

func TestActor_Can(t *testing.T) {
	res := Resource{AgencyID: "a1", TenantID: "t1", OwnerIDs: []string{"owner"}}

	tests := []struct {
		name  string
		actor Actor
		perm  Permission
		res   Resource
		want  bool
	}{
		{name: "global", actor: Actor{ID: "x", Roles: []string{RolePlatformAdmin}}, perm: ProgramsWrite, res: res, want: true},
		{name: "agency same", actor: Actor{ID: "x", AgencyID: "a1", Roles: []string{RoleAgencyAdmin}}, perm: ProgramsWrite, res: res, want: true},
		{name: "agency other", actor: Actor{ID: "x", AgencyID: "a2", Roles: []string{RoleAgencyAdmin}}, perm: ProgramsWrite, res: res},
		{name: "agency empty", actor: Actor{ID: "x", Roles: []string{RoleAgencyAdmin}}, perm: ProgramsWrite, res: Resource{}},
		{
			name: "tenant same", actor: Actor{ID: "x", AgencyID: "a1", TenantID: "t1", Roles: []string{RoleFacilitator}},
			perm: ProgramsWrite, res: res, want: true,
		},
		{
			name: "tenant other", actor: Actor{ID: "x", AgencyID: "a1", TenantID: "t2", Roles: []string{RoleFacilitator}},
			perm: ProgramsWrite, res: res,
		},
		{
			name: "tenant of agency-level resource", actor: Actor{ID: "x", AgencyID: "a1", TenantID: "t1", Roles: []string{RoleFacilitator}},
			perm: ProgramsRead, res: Resource{AgencyID: "a1"},
		},
		{
			name: "tenant empty on both sides", actor: Actor{ID: "x", AgencyID: "a1", Roles: []string{RoleTenantAdmin}},
			perm: UsersRead, res: Resource{AgencyID: "a1"},
		},
		{
			name: "own owner", actor: Actor{ID: "owner", AgencyID: "a1", TenantID: "t1", Roles: []string{RoleLearner}},
			perm: EnrollmentsRead, res: res, want: true,
		},
		{
			name: "own stranger", actor: Actor{ID: "someone", AgencyID: "a1", TenantID: "t1", Roles: []string{RoleLearner}},
			perm: EnrollmentsRead, res: res,
		},
		{
			name: "no grant", actor: Actor{ID: "owner", AgencyID: "a1", TenantID: "t1", Roles: []string{RoleLearner}},
			perm: ProgramsWrite, res: res,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Can(tt.actor, tt.perm, tt.res))
		})
	}
}

func TestActor_Visibility(t *testing.T) {
	tests := []struct {
		name    string
		actor   Actor
		perm    Permission
		want    Visibility
		wantErr error
	}{
		{name: "no grant", actor: Actor{ID: "u", Roles: []string{RoleLearner}}, perm: UsersWrite, wantErr: ErrNoGrant},
		{name: "global", actor: Actor{ID: "u", Roles: []string{RolePlatformAdmin}}, perm: UsersRead, want: Visibility{Scope: ScopeGlobal}},
		{
			name: "agency", actor: Actor{ID: "u", AgencyID: "a", Roles: []string{RoleAgencyOwner}}, perm: UsersRead,
			want: Visibility{Scope: ScopeAgency, AgencyID: "a"},
		},
		{name: "agency without agency", actor: Actor{ID: "u", Roles: []string{RoleAgencyOwner}}, perm: UsersRead, wantErr: ErrNoGrant},
		{
			name: "tenant", actor: Actor{ID: "u", AgencyID: "a", TenantID: "t", Roles: []string{RoleTenantAdmin}}, perm: UsersRead,
			want: Visibility{Scope: ScopeTenant, AgencyID: "a", TenantID: "t"},
		},
		{
			name: "tenant without tenant", actor: Actor{ID: "u", AgencyID: "a", Roles: []string{RoleTenantAdmin}}, perm: UsersRead,
			wantErr: ErrNoGrant,
		},
		{
			name: "own", actor: Actor{ID: "u", AgencyID: "a", TenantID: "t", Roles: []string{RoleLearner}}, perm: UsersRead,
			want: Visibility{Scope: ScopeOwn, UserID: "u"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vis, err := tt.actor.Visibility(tt.perm)
			assert.Equal(t, tt.wantErr, err)
			assert.Equal(t, tt.want, vis)
		})
	}
}

func TestVisibility_Allows(t *testing.T) {
	res := Resource{AgencyID: "a", TenantID: "t", OwnerIDs: []string{"u"}}

	assert.True(t, Visibility{Scope: ScopeGlobal}.Allows(Resource{}))
	assert.True(t, Visibility{Scope: ScopeAgency, AgencyID: "a"}.Allows(res))
	assert.False(t, Visibility{Scope: ScopeAgency, AgencyID: "b"}.Allows(res))
	assert.True(t, Visibility{Scope: ScopeTenant, AgencyID: "a", TenantID: "t"}.Allows(res))
	assert.False(t, Visibility{Scope: ScopeTenant, AgencyID: "a", TenantID: "t"}.Allows(Resource{AgencyID: "a"}))
	assert.True(t, Visibility{Scope: ScopeOwn, UserID: "u"}.Allows(res))
	assert.False(t, Visibility{Scope: ScopeOwn, UserID: "v"}.Allows(res))
	assert.False(t, Visibility{}.Allows(res))
}

func TestActor_CanAssignRoles(t *testing.T) {
	platform := Actor{ID: "p", Roles: []string{RolePlatformAdmin}}
	owner := Actor{ID: "o", AgencyID: "a", Roles: []string{RoleAgencyOwner}}
	tenantAdmin := Actor{ID: "t", AgencyID: "a", TenantID: "t", Roles: []string{RoleTenantAdmin}}

	assert.True(t, platform.CanAssignRoles([]string{RolePlatformAdmin}))
	assert.True(t, owner.CanAssignRoles([]string{RoleAgencyOwner, RoleLearner}))
	assert.False(t, owner.CanAssignRoles([]string{RolePlatformAdmin}))
	assert.True(t, tenantAdmin.CanAssignRoles([]string{RoleCoach, RoleLearner}))
	assert.False(t, tenantAdmin.CanAssignRoles([]string{RoleAgencyAdmin}))
	assert.False(t, tenantAdmin.CanAssignRoles([]string{"lol:"}))
	assert.True(t, tenantAdmin.CanAssignRoles(nil))
}

func TestMaxRolePriority(t *testing.T) {
	assert.Equal(t, 0, MaxRolePriority(nil))
	assert.Equal(t, 10, MaxRolePriority([]string{RoleLearner}))
	assert.Equal(t, 40, MaxRolePriority([]string{RoleLearner, RoleAgencyOwner, RoleCoach}))
	assert.Equal(t, 0, MaxRolePriority([]string{"lol:"}))
}
