package program

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/rbac"
)

// Statuses
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

var Statuses = []string{StatusDraft, StatusPublished, StatusArchived}

type Program struct {
	ID          string     `json:"id"`
	AgencyID    string     `json:"agency_id"`
	TenantID    string     `json:"tenant_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	CreatedBy   string     `json:"created_by"`
	Modules     []Module   `json:"modules,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`   // UTC
	UpdatedAt   time.Time  `json:"updated_at"`   // UTC
	PublishedAt *time.Time `json:"published_at"` // UTC
}

func (p Program) Resource() rbac.Resource {
	return rbac.Resource{AgencyID: p.AgencyID, TenantID: p.TenantID, OwnerIDs: []string{p.CreatedBy}}
}

func (p Program) IsPublished() bool { return p.Status == StatusPublished }
func (p Program) IsArchived() bool  { return p.Status == StatusArchived }

// Module returns the module of p with the given id.
func (p Program) Module(id string) (Module, bool) {
	for _, m := range p.Modules {
		if m.ID == id {
			return m, true
		}
	}
	return Module{}, false
}

// ModuleIDs returns the IDs of p's modules, in order.
func (p Program) ModuleIDs() []string {
	ids := make([]string, 0, len(p.Modules))
	for _, m := range p.Modules {
		ids = append(ids, m.ID)
	}
	return ids
}

type Module struct {
	ID              string `json:"id"`
	ProgramID       string `json:"program_id"`
	Title           string `json:"title"`
	Content         string `json:"content"`
	Position        int    `json:"position"`
	DurationMinutes int    `json:"duration_minutes"`
}

type NewProgram struct {
	TenantID    string `json:"tenant_id" validate:"omitempty,uuid"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
}

func (np *NewProgram) Validate(validate *validator.Validate) error {
	np.Title = core.CleanString(np.Title)
	np.Description = core.CleanString(np.Description)
	return validate.Struct(np)
}

type UpdateProgram struct {
	Title       string  `json:"title" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
}

func (up *UpdateProgram) Validate(validate *validator.Validate) error {
	up.Title = core.CleanString(up.Title)
	if up.Description != nil {
		desc := core.CleanString(*up.Description)
		up.Description = &desc
	}
	return validate.Struct(up)
}

type NewModule struct {
	Title           string `json:"title" validate:"required,max=200"`
	Content         string `json:"content"`
	DurationMinutes int    `json:"duration_minutes" validate:"min=0,max=1440"`
}

func (nm *NewModule) Validate(validate *validator.Validate) error {
	nm.Title = core.CleanString(nm.Title)
	return validate.Struct(nm)
}

type UpdateModule struct {
	Title           string  `json:"title" validate:"omitempty,max=200"`
	Content         *string `json:"content"`
	DurationMinutes *int    `json:"duration_minutes" validate:"omitempty,min=0,max=1440"`
}

func (um *UpdateModule) Validate(validate *validator.Validate) error {
	um.Title = core.CleanString(um.Title)
	return validate.Struct(um)
}

type ReorderModules struct {
	ModuleIDs []string `json:"module_ids" validate:"required,min=1,dive,uuid"`
}

func (rm *ReorderModules) Validate(validate *validator.Validate) error {
	return validate.Struct(rm)
}

type QueryFilter struct {
	Search   string `query:"search"`
	Status   string `query:"status"`
	TenantID string `query:"tenant_id"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.TenantID = core.CleanString(qf.TenantID)
}
