package inmemdb

import (
	"context"

	"github.com/trezcool/tos/core/rbac"
	"github.com/trezcool/tos/core/tenant"
)

type tenantRepository struct {
	db *DB
}

var _ tenant.Repository = (*tenantRepository)(nil)

func NewTenantRepository(db *DB) tenant.Repository {
	return &tenantRepository{db: db}
}

func agencyVisible(vis rbac.Visibility, a tenant.Agency) bool {
	switch vis.Scope {
	case rbac.ScopeGlobal:
		return true
	case rbac.ScopeAgency, rbac.ScopeTenant:
		return a.ID == vis.AgencyID
	default:
		return false
	}
}

func (repo *tenantRepository) AgencySlugExists(_ context.Context, slug, excludedID string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, a := range repo.db.agencies {
		if a.Slug == slug && a.ID != excludedID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *tenantRepository) CreateAgency(_ context.Context, agency tenant.Agency) (tenant.Agency, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	agency.ID = newID()
	repo.db.agencies[agency.ID] = &agency
	return agency, nil
}

func (repo *tenantRepository) QueryAgencies(_ context.Context, vis rbac.Visibility, filter *tenant.QueryFilter) ([]tenant.Agency, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	agencies := make([]tenant.Agency, 0, len(repo.db.agencies))
	for _, a := range repo.db.agencies {
		if !agencyVisible(vis, *a) {
			continue
		}
		if filter != nil {
			if filter.Search != "" && !(containsFold(a.Name, filter.Search) || containsFold(a.Slug, filter.Search)) {
				continue
			}
			if filter.IsActive != nil && a.IsActive != *filter.IsActive {
				continue
			}
		}
		agencies = append(agencies, *a)
	}
	sortByOrderings(len(agencies), func(i, j int) { agencies[i], agencies[j] = agencies[j], agencies[i] }, nil, nil,
		func(i, j int) int { return cmpStrings(agencies[i].Name, agencies[j].Name) })
	return agencies, nil
}

func (repo *tenantRepository) GetAgency(_ context.Context, id string) (tenant.Agency, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if a, ok := repo.db.agencies[id]; ok {
		return *a, nil
	}
	return tenant.Agency{}, tenant.ErrAgencyNotFound
}

func (repo *tenantRepository) UpdateAgency(_ context.Context, agency tenant.Agency) (tenant.Agency, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.agencies[agency.ID]; !ok {
		return tenant.Agency{}, tenant.ErrAgencyNotFound
	}
	repo.db.agencies[agency.ID] = &agency
	return agency, nil
}

func (repo *tenantRepository) TenantSlugExists(_ context.Context, agencyID, slug, excludedID string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, t := range repo.db.tenants {
		if t.AgencyID == agencyID && t.Slug == slug && t.ID != excludedID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *tenantRepository) CreateTenant(_ context.Context, tnt tenant.Tenant) (tenant.Tenant, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	tnt.ID = newID()
	repo.db.tenants[tnt.ID] = &tnt
	return tnt, nil
}

func (repo *tenantRepository) QueryTenants(_ context.Context, vis rbac.Visibility, filter *tenant.QueryFilter) ([]tenant.Tenant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tenants := make([]tenant.Tenant, 0, len(repo.db.tenants))
	for _, t := range repo.db.tenants {
		if vis.Scope == rbac.ScopeOwn || !vis.Allows(t.Resource()) {
			continue
		}
		if filter != nil {
			if filter.Search != "" && !(containsFold(t.Name, filter.Search) || containsFold(t.Slug, filter.Search)) {
				continue
			}
			if filter.AgencyID != "" && t.AgencyID != filter.AgencyID {
				continue
			}
			if filter.IsActive != nil && t.IsActive != *filter.IsActive {
				continue
			}
		}
		tenants = append(tenants, *t)
	}
	sortByOrderings(len(tenants), func(i, j int) { tenants[i], tenants[j] = tenants[j], tenants[i] }, nil, nil,
		func(i, j int) int { return cmpStrings(tenants[i].Name, tenants[j].Name) })
	return tenants, nil
}

func (repo *tenantRepository) GetTenant(_ context.Context, id string) (tenant.Tenant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.tenants[id]; ok {
		return *t, nil
	}
	return tenant.Tenant{}, tenant.ErrTenantNotFound
}

func (repo *tenantRepository) UpdateTenant(_ context.Context, tnt tenant.Tenant) (tenant.Tenant, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.tenants[tnt.ID]; !ok {
		return tenant.Tenant{}, tenant.ErrTenantNotFound
	}
	repo.db.tenants[tnt.ID] = &tnt
	return tnt, nil
}
