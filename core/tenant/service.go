package tenant

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/rbac"
)

var (
	// errors
	ErrAgencyNotFound   = core.NewNotFoundError("agency not found")
	ErrTenantNotFound   = core.NewNotFoundError("tenant not found")
	ErrAgencySlugExists = errors.New("an agency with this slug already exists")
	ErrTenantSlugExists = errors.New("a tenant with this slug already exists in this agency")
	ErrInactive         = core.NewForbiddenError("account deactivated")
)

type (
	Repository interface {
		AgencySlugExists(ctx context.Context, slug, excludedID string) (bool, error)
		CreateAgency(ctx context.Context, agency Agency) (Agency, error)
		QueryAgencies(ctx context.Context, vis rbac.Visibility, filter *QueryFilter) ([]Agency, error)
		GetAgency(ctx context.Context, id string) (Agency, error)
		UpdateAgency(ctx context.Context, agency Agency) (Agency, error)

		TenantSlugExists(ctx context.Context, agencyID, slug, excludedID string) (bool, error)
		CreateTenant(ctx context.Context, tnt Tenant) (Tenant, error)
		QueryTenants(ctx context.Context, vis rbac.Visibility, filter *QueryFilter) ([]Tenant, error)
		GetTenant(ctx context.Context, id string) (Tenant, error)
		UpdateTenant(ctx context.Context, tnt Tenant) (Tenant, error)
	}

	Service interface {
		CreateAgency(ctx context.Context, actor rbac.Actor, na NewAgency) (Agency, error)
		QueryAgencies(ctx context.Context, actor rbac.Actor, filter *QueryFilter) ([]Agency, error)
		GetAgency(ctx context.Context, actor rbac.Actor, id string) (Agency, error)
		UpdateAgency(ctx context.Context, actor rbac.Actor, id string, ua UpdateAgency) (Agency, error)

		CreateTenant(ctx context.Context, actor rbac.Actor, nt NewTenant) (Tenant, error)
		QueryTenants(ctx context.Context, actor rbac.Actor, filter *QueryFilter) ([]Tenant, error)
		GetTenant(ctx context.Context, actor rbac.Actor, id string) (Tenant, error)
		// GetTenantByID returns the tenant without checking permissions.
		GetTenantByID(ctx context.Context, id string) (Tenant, error)
		UpdateTenant(ctx context.Context, actor rbac.Actor, id string, ut UpdateTenant) (Tenant, error)

		// CheckActive returns ErrInactive if the agency or the tenant (when given) is deactivated.
		CheckActive(ctx context.Context, agencyID, tenantID string) error
	}

	service struct {
		repo  Repository
		clock clockwork.Clock
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, clock clockwork.Clock) Service {
	return &service{repo: repo, clock: clock}
}

func (svc *service) checkAgencySlug(ctx context.Context, slug, excludedID string) error {
	exists, err := svc.repo.AgencySlugExists(ctx, slug, excludedID)
	if err != nil {
		return pkgerrors.Wrap(err, "checking agency slug")
	}
	if exists {
		return core.NewValidationError(ErrAgencySlugExists, core.FieldError{Field: "slug", Error: ErrAgencySlugExists.Error()})
	}
	return nil
}

func (svc *service) checkTenantSlug(ctx context.Context, agencyID, slug, excludedID string) error {
	exists, err := svc.repo.TenantSlugExists(ctx, agencyID, slug, excludedID)
	if err != nil {
		return pkgerrors.Wrap(err, "checking tenant slug")
	}
	if exists {
		return core.NewValidationError(ErrTenantSlugExists, core.FieldError{Field: "slug", Error: ErrTenantSlugExists.Error()})
	}
	return nil
}

func (svc *service) CreateAgency(ctx context.Context, actor rbac.Actor, na NewAgency) (Agency, error) {
	// agencies are created by the platform only
	if !actor.Can(rbac.AgenciesWrite, rbac.Resource{}) {
		return Agency{}, rbac.ErrNoGrant
	}
	if err := svc.checkAgencySlug(ctx, na.Slug, ""); err != nil {
		return Agency{}, err
	}

	now := svc.clock.Now().UTC()
	return svc.repo.CreateAgency(ctx, Agency{
		Name:      na.Name,
		Slug:      na.Slug,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *service) QueryAgencies(ctx context.Context, actor rbac.Actor, filter *QueryFilter) ([]Agency, error) {
	vis, err := actor.Visibility(rbac.AgenciesRead)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryAgencies(ctx, vis, filter)
}

func (svc *service) GetAgency(ctx context.Context, actor rbac.Actor, id string) (Agency, error) {
	agency, err := svc.repo.GetAgency(ctx, id)
	if err != nil {
		return Agency{}, err
	}
	if !actor.Can(rbac.AgenciesRead, agency.Resource()) {
		return Agency{}, ErrAgencyNotFound
	}
	return agency, nil
}

func (svc *service) UpdateAgency(ctx context.Context, actor rbac.Actor, id string, ua UpdateAgency) (Agency, error) {
	agency, err := svc.GetAgency(ctx, actor, id)
	if err != nil {
		return Agency{}, err
	}
	if !actor.Can(rbac.AgenciesWrite, agency.Resource()) {
		return Agency{}, rbac.ErrNoGrant
	}
	// an agency cannot deactivate itself
	if ua.IsActive != nil && !actor.IsPlatformAdmin() {
		return Agency{}, rbac.ErrNoGrant
	}

	if ua.Name != "" {
		agency.Name = ua.Name
	}
	if ua.Slug != "" && ua.Slug != agency.Slug {
		if err = svc.checkAgencySlug(ctx, ua.Slug, agency.ID); err != nil {
			return Agency{}, err
		}
		agency.Slug = ua.Slug
	}
	if ua.IsActive != nil {
		agency.IsActive = *ua.IsActive
	}
	agency.UpdatedAt = svc.clock.Now().UTC()
	return svc.repo.UpdateAgency(ctx, agency)
}

func (svc *service) CreateTenant(ctx context.Context, actor rbac.Actor, nt NewTenant) (Tenant, error) {
	if nt.AgencyID == "" {
		nt.AgencyID = actor.AgencyID
	}
	if !actor.Can(rbac.TenantsWrite, rbac.Resource{AgencyID: nt.AgencyID}) {
		return Tenant{}, rbac.ErrNoGrant
	}
	if _, err := svc.repo.GetAgency(ctx, nt.AgencyID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return Tenant{}, core.NewValidationError(nil, core.FieldError{Field: "agency_id", Error: ErrAgencyNotFound.Error()})
		}
		return Tenant{}, pkgerrors.Wrap(err, "getting agency")
	}
	if err := svc.checkTenantSlug(ctx, nt.AgencyID, nt.Slug, ""); err != nil {
		return Tenant{}, err
	}

	now := svc.clock.Now().UTC()
	return svc.repo.CreateTenant(ctx, Tenant{
		AgencyID:  nt.AgencyID,
		Name:      nt.Name,
		Slug:      nt.Slug,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *service) QueryTenants(ctx context.Context, actor rbac.Actor, filter *QueryFilter) ([]Tenant, error) {
	vis, err := actor.Visibility(rbac.TenantsRead)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryTenants(ctx, vis, filter)
}

func (svc *service) GetTenant(ctx context.Context, actor rbac.Actor, id string) (Tenant, error) {
	tnt, err := svc.repo.GetTenant(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	if !actor.Can(rbac.TenantsRead, tnt.Resource()) {
		return Tenant{}, ErrTenantNotFound
	}
	return tnt, nil
}

func (svc *service) GetTenantByID(ctx context.Context, id string) (Tenant, error) {
	return svc.repo.GetTenant(ctx, id)
}

func (svc *service) UpdateTenant(ctx context.Context, actor rbac.Actor, id string, ut UpdateTenant) (Tenant, error) {
	tnt, err := svc.GetTenant(ctx, actor, id)
	if err != nil {
		return Tenant{}, err
	}
	if !actor.Can(rbac.TenantsWrite, tnt.Resource()) {
		return Tenant{}, rbac.ErrNoGrant
	}

	if ut.Name != "" {
		tnt.Name = ut.Name
	}
	if ut.Slug != "" && ut.Slug != tnt.Slug {
		if err = svc.checkTenantSlug(ctx, tnt.AgencyID, ut.Slug, tnt.ID); err != nil {
			return Tenant{}, err
		}
		tnt.Slug = ut.Slug
	}
	if ut.IsActive != nil {
		tnt.IsActive = *ut.IsActive
	}
	tnt.UpdatedAt = svc.clock.Now().UTC()
	return svc.repo.UpdateTenant(ctx, tnt)
}

func (svc *service) CheckActive(ctx context.Context, agencyID, tenantID string) error {
	if agencyID != "" {
		agency, err := svc.repo.GetAgency(ctx, agencyID)
		if err != nil {
			return pkgerrors.Wrap(err, "getting agency")
		}
		if !agency.IsActive {
			return ErrInactive
		}
	}
	if tenantID != "" {
		tnt, err := svc.repo.GetTenant(ctx, tenantID)
		if err != nil {
			return pkgerrors.Wrap(err, "getting tenant")
		}
		if !tnt.IsActive {
			return ErrInactive
		}
	}
	return nil
}
