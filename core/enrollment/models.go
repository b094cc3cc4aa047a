package enrollment

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/program"
	"github.com/trezcool/tos/core/rbac"
)

// Statuses
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusWithdrawn = "withdrawn"
)

type Enrollment struct {
	ID               string     `json:"id"`
	ProgramID        string     `json:"program_id"`
	UserID           string     `json:"user_id"`
	AgencyID         string     `json:"agency_id"`
	TenantID         string     `json:"tenant_id"`
	Status           string     `json:"status"`
	EnrolledAt       time.Time  `json:"enrolled_at"`  // UTC
	CompletedAt      *time.Time `json:"completed_at"` // UTC
	CompletedModules []string   `json:"completed_modules"`
	Progress         *Progress  `json:"progress,omitempty"`
}

func (e Enrollment) Resource() rbac.Resource {
	return rbac.Resource{AgencyID: e.AgencyID, TenantID: e.TenantID, OwnerIDs: []string{e.UserID}}
}

func (e Enrollment) IsActive() bool { return e.Status == StatusActive }

func (e Enrollment) HasCompleted(moduleID string) bool {
	return core.ContainsString(e.CompletedModules, moduleID)
}

type Progress struct {
	EnrollmentID     string `json:"enrollment_id"`
	TotalModules     int    `json:"total_modules"`
	CompletedModules int    `json:"completed_modules"`
	Percent          int    `json:"percent"`
}

// ComputeProgress returns the progress of e through prog.
// Completed modules that were removed from prog are not counted.
func ComputeProgress(e Enrollment, prog program.Program) Progress {
	p := Progress{EnrollmentID: e.ID, TotalModules: len(prog.Modules)}
	for _, mod := range prog.Modules {
		if e.HasCompleted(mod.ID) {
			p.CompletedModules++
		}
	}
	if p.TotalModules > 0 {
		p.Percent = 100 * p.CompletedModules / p.TotalModules
	}
	return p
}

type NewEnrollments struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,dive,uuid"`
}

func (ne *NewEnrollments) Validate(validate *validator.Validate) error {
	ne.UserIDs = core.UniqueStrings(ne.UserIDs)
	return validate.Struct(ne)
}

type QueryFilter struct {
	ProgramID string `query:"program_id"`
	UserID    string `query:"user_id"`
	Status    string `query:"status"`
}

func (qf *QueryFilter) Clean() {
	qf.ProgramID = core.CleanString(qf.ProgramID)
	qf.UserID = core.CleanString(qf.UserID)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}
