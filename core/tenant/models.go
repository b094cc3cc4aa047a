package tenant

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/rbac"
)

type Agency struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

func (a Agency) Resource() rbac.Resource {
	return rbac.Resource{AgencyID: a.ID}
}

type Tenant struct {
	ID        string    `json:"id"`
	AgencyID  string    `json:"agency_id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

func (t Tenant) Resource() rbac.Resource {
	return rbac.Resource{AgencyID: t.AgencyID, TenantID: t.ID}
}

type NewAgency struct {
	Name string `json:"name" validate:"required,max=200"`
	Slug string `json:"slug" validate:"required,max=63,slug"`
}

func (na *NewAgency) Validate(validate *validator.Validate) error {
	na.Name = core.CleanString(na.Name)
	na.Slug = core.CleanString(na.Slug, true /* lower */)
	return validate.Struct(na)
}

type UpdateAgency struct {
	Name     string `json:"name" validate:"omitempty,max=200"`
	Slug     string `json:"slug" validate:"omitempty,max=63,slug"`
	IsActive *bool  `json:"is_active"`
}

func (ua *UpdateAgency) Validate(validate *validator.Validate) error {
	ua.Name = core.CleanString(ua.Name)
	ua.Slug = core.CleanString(ua.Slug, true /* lower */)
	return validate.Struct(ua)
}

type NewTenant struct {
	AgencyID string `json:"agency_id" validate:"omitempty,uuid"`
	Name     string `json:"name" validate:"required,max=200"`
	Slug     string `json:"slug" validate:"required,max=63,slug"`
}

func (nt *NewTenant) Validate(validate *validator.Validate) error {
	nt.AgencyID = core.CleanString(nt.AgencyID, true /* lower */)
	nt.Name = core.CleanString(nt.Name)
	nt.Slug = core.CleanString(nt.Slug, true /* lower */)
	return validate.Struct(nt)
}

type UpdateTenant struct {
	Name     string `json:"name" validate:"omitempty,max=200"`
	Slug     string `json:"slug" validate:"omitempty,max=63,slug"`
	IsActive *bool  `json:"is_active"`
}

func (ut *UpdateTenant) Validate(validate *validator.Validate) error {
	ut.Name = core.CleanString(ut.Name)
	ut.Slug = core.CleanString(ut.Slug, true /* lower */)
	return validate.Struct(ut)
}

type QueryFilter struct {
	Search   string `query:"search"`
	AgencyID string `query:"agency_id"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.AgencyID = core.CleanString(qf.AgencyID, true /* lower */)
}
