package coaching

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/rbac"
)

// Kinds
const (
	KindCoaching  = "coaching"
	KindMentoring = "mentoring"
)

// Engagement statuses
const (
	EngagementActive = "active"
	EngagementEnded  = "ended"
)

// Session statuses
const (
	SessionScheduled = "scheduled"
	SessionCompleted = "completed"
	SessionCancelled = "cancelled"
)

type Engagement struct {
	ID        string     `json:"id"`
	AgencyID  string     `json:"agency_id"`
	TenantID  string     `json:"tenant_id"`
	CoachID   string     `json:"coach_id"`
	LearnerID string     `json:"learner_id"`
	Kind      string     `json:"kind"`
	Status    string     `json:"status"`
	Goals     string     `json:"goals"`
	StartedAt time.Time  `json:"started_at"` // UTC
	EndedAt   *time.Time `json:"ended_at"`   // UTC
}

// Resource locates e; both the coach and the learner own it.
func (e Engagement) Resource() rbac.Resource {
	return rbac.Resource{AgencyID: e.AgencyID, TenantID: e.TenantID, OwnerIDs: []string{e.CoachID, e.LearnerID}}
}

func (e Engagement) IsActive() bool { return e.Status == EngagementActive }

type Session struct {
	ID              string    `json:"id"`
	EngagementID    string    `json:"engagement_id"`
	ScheduledAt     time.Time `json:"scheduled_at"` // UTC
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
	Notes           string    `json:"notes,omitempty"`
	Summary         string    `json:"summary"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
}

func (s Session) IsScheduled() bool { return s.Status == SessionScheduled }

type NewEngagement struct {
	CoachID   string `json:"coach_id" validate:"omitempty,uuid"`
	LearnerID string `json:"learner_id" validate:"required,uuid"`
	Kind      string `json:"kind" validate:"required,oneof=coaching mentoring"`
	Goals     string `json:"goals" validate:"max=5000"`
}

func (ne *NewEngagement) Validate(validate *validator.Validate) error {
	ne.Kind = core.CleanString(ne.Kind, true /* lower */)
	ne.Goals = core.CleanString(ne.Goals)
	return validate.Struct(ne)
}

type NewSession struct {
	ScheduledAt     time.Time `json:"scheduled_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,min=15,max=480"`
	Notes           string    `json:"notes" validate:"max=10000"`
}

func (ns *NewSession) Validate(validate *validator.Validate) error {
	ns.Notes = core.CleanString(ns.Notes)
	return validate.Struct(ns)
}

type CompleteSession struct {
	Summary string  `json:"summary" validate:"required,max=10000"`
	Notes   *string `json:"notes" validate:"omitempty,max=10000"`
}

func (cs *CompleteSession) Validate(validate *validator.Validate) error {
	cs.Summary = core.CleanString(cs.Summary)
	if cs.Notes != nil {
		notes := core.CleanString(*cs.Notes)
		cs.Notes = &notes
	}
	return validate.Struct(cs)
}

type QueryFilter struct {
	Status    string `query:"status"`
	Kind      string `query:"kind"`
	CoachID   string `query:"coach_id"`
	LearnerID string `query:"learner_id"`
}

func (qf *QueryFilter) Clean() {
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.Kind = core.CleanString(qf.Kind, true /* lower */)
	qf.CoachID = core.CleanString(qf.CoachID)
	qf.LearnerID = core.CleanString(qf.LearnerID)
}
