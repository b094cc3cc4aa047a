package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/tos/core/rbac"
	"github.com/trezcool/tos/core/tenant"
)

type agencyRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Slug      string    `db:"slug"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r agencyRow) agency() tenant.Agency {
	return tenant.Agency{
		ID:        r.ID,
		Name:      r.Name,
		Slug:      r.Slug,
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type tenantRow struct {
	ID        string    `db:"id"`
	AgencyID  string    `db:"agency_id"`
	Name      string    `db:"name"`
	Slug      string    `db:"slug"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r tenantRow) tenant() tenant.Tenant {
	return tenant.Tenant{
		ID:        r.ID,
		AgencyID:  r.AgencyID,
		Name:      r.Name,
		Slug:      r.Slug,
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

const (
	agencyColumns = "id, name, slug, is_active, created_at, updated_at"
	tenantColumns = "id, agency_id, name, slug, is_active, created_at, updated_at"
)

type tenantRepository struct {
	db *sqlx.DB
}

var _ tenant.Repository = (*tenantRepository)(nil)

func NewTenantRepository(db *sqlx.DB) tenant.Repository {
	return &tenantRepository{db: db}
}

func (repo *tenantRepository) AgencySlugExists(ctx context.Context, slug, excludedID string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM agencies WHERE slug = $1 AND id::text <> $2)", slug, excludedID)
	return exists, errors.Wrap(err, "checking agency slug")
}

func (repo *tenantRepository) CreateAgency(ctx context.Context, agency tenant.Agency) (tenant.Agency, error) {
	agency.ID = newID()
	_, err := repo.db.NamedExecContext(ctx,
		"INSERT INTO agencies ("+agencyColumns+") VALUES (:id, :name, :slug, :is_active, :created_at, :updated_at)",
		agencyRow{
			ID:        agency.ID,
			Name:      agency.Name,
			Slug:      agency.Slug,
			IsActive:  agency.IsActive,
			CreatedAt: agency.CreatedAt.UTC(),
			UpdatedAt: agency.UpdatedAt.UTC(),
		})
	if err != nil {
		if isUniqueViolation(err) {
			return tenant.Agency{}, tenant.ErrAgencySlugExists
		}
		return tenant.Agency{}, errors.Wrap(err, "inserting agency")
	}
	return agency, nil
}

func (repo *tenantRepository) QueryAgencies(ctx context.Context, vis rbac.Visibility, filter *tenant.QueryFilter) ([]tenant.Agency, error) {
	var q query
	q.visible(vis, "id", "")
	if filter != nil {
		if filter.Search != "" {
			val := likePattern(filter.Search)
			q.where("(name ILIKE ? OR slug ILIKE ?)", val, val)
		}
		if filter.IsActive != nil {
			q.where("is_active = ?", *filter.IsActive)
		}
	}

	var rows []agencyRow
	if err := q.selectRows(ctx, repo.db, &rows, "SELECT "+agencyColumns+" FROM agencies", "name ASC"); err != nil {
		return nil, errors.Wrap(err, "querying agencies")
	}
	agencies := make([]tenant.Agency, 0, len(rows))
	for _, r := range rows {
		agencies = append(agencies, r.agency())
	}
	return agencies, nil
}

func (repo *tenantRepository) GetAgency(ctx context.Context, id string) (tenant.Agency, error) {
	if !validID(id) {
		return tenant.Agency{}, tenant.ErrAgencyNotFound
	}
	var row agencyRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+agencyColumns+" FROM agencies WHERE id = $1", id); err != nil {
		return tenant.Agency{}, trapNoRowsErr(err, tenant.ErrAgencyNotFound, "getting agency")
	}
	return row.agency(), nil
}

func (repo *tenantRepository) UpdateAgency(ctx context.Context, agency tenant.Agency) (tenant.Agency, error) {
	res, err := repo.db.ExecContext(ctx,
		"UPDATE agencies SET name = $2, slug = $3, is_active = $4, updated_at = $5 WHERE id = $1",
		agency.ID, agency.Name, agency.Slug, agency.IsActive, agency.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return tenant.Agency{}, tenant.ErrAgencySlugExists
		}
		return tenant.Agency{}, errors.Wrap(err, "updating agency")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tenant.Agency{}, tenant.ErrAgencyNotFound
	}
	return agency, nil
}

func (repo *tenantRepository) TenantSlugExists(ctx context.Context, agencyID, slug, excludedID string) (bool, error) {
	if !validID(agencyID) {
		return false, nil
	}
	var exists bool
	err := repo.db.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM tenants WHERE agency_id = $1 AND slug = $2 AND id::text <> $3)",
		agencyID, slug, excludedID)
	return exists, errors.Wrap(err, "checking tenant slug")
}

func (repo *tenantRepository) CreateTenant(ctx context.Context, tnt tenant.Tenant) (tenant.Tenant, error) {
	tnt.ID = newID()
	_, err := repo.db.NamedExecContext(ctx,
		"INSERT INTO tenants ("+tenantColumns+") VALUES (:id, :agency_id, :name, :slug, :is_active, :created_at, :updated_at)",
		tenantRow{
			ID:        tnt.ID,
			AgencyID:  tnt.AgencyID,
			Name:      tnt.Name,
			Slug:      tnt.Slug,
			IsActive:  tnt.IsActive,
			CreatedAt: tnt.CreatedAt.UTC(),
			UpdatedAt: tnt.UpdatedAt.UTC(),
		})
	if err != nil {
		if isUniqueViolation(err) {
			return tenant.Tenant{}, tenant.ErrTenantSlugExists
		}
		return tenant.Tenant{}, errors.Wrap(err, "inserting tenant")
	}
	return tnt, nil
}

func (repo *tenantRepository) QueryTenants(ctx context.Context, vis rbac.Visibility, filter *tenant.QueryFilter) ([]tenant.Tenant, error) {
	var q query
	q.visible(vis, "agency_id", "id")
	if filter != nil {
		if filter.Search != "" {
			val := likePattern(filter.Search)
			q.where("(name ILIKE ? OR slug ILIKE ?)", val, val)
		}
		if filter.AgencyID != "" {
			if !validID(filter.AgencyID) {
				return []tenant.Tenant{}, nil
			}
			q.where("agency_id = ?", filter.AgencyID)
		}
		if filter.IsActive != nil {
			q.where("is_active = ?", *filter.IsActive)
		}
	}

	var rows []tenantRow
	if err := q.selectRows(ctx, repo.db, &rows, "SELECT "+tenantColumns+" FROM tenants", "name ASC"); err != nil {
		return nil, errors.Wrap(err, "querying tenants")
	}
	tenants := make([]tenant.Tenant, 0, len(rows))
	for _, r := range rows {
		tenants = append(tenants, r.tenant())
	}
	return tenants, nil
}

func (repo *tenantRepository) GetTenant(ctx context.Context, id string) (tenant.Tenant, error) {
	if !validID(id) {
		return tenant.Tenant{}, tenant.ErrTenantNotFound
	}
	var row tenantRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+tenantColumns+" FROM tenants WHERE id = $1", id); err != nil {
		return tenant.Tenant{}, trapNoRowsErr(err, tenant.ErrTenantNotFound, "getting tenant")
	}
	return row.tenant(), nil
}

func (repo *tenantRepository) UpdateTenant(ctx context.Context, tnt tenant.Tenant) (tenant.Tenant, error) {
	res, err := repo.db.ExecContext(ctx,
		"UPDATE tenants SET name = $2, slug = $3, is_active = $4, updated_at = $5 WHERE id = $1",
		tnt.ID, tnt.Name, tnt.Slug, tnt.IsActive, tnt.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return tenant.Tenant{}, tenant.ErrTenantSlugExists
		}
		return tenant.Tenant{}, errors.Wrap(err, "updating tenant")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tenant.Tenant{}, tenant.ErrTenantNotFound
	}
	return tnt, nil
}
