package assessment

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/rbac"
)

// Kinds
const (
	Kind180 = "180"
	Kind360 = "360"
)

// Statuses
const (
	StatusDraft  = "draft"
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Relationships of a rater to the assessed subject
const (
	RelSelf         = "self"
	RelManager      = "manager"
	RelPeer         = "peer"
	RelDirectReport = "direct_report"
	RelOther        = "other"
)

// Rater statuses
const (
	RaterPending   = "pending"
	RaterSubmitted = "submitted"
)

const DefaultScaleMax = 5

var (
	Relationships = []string{RelSelf, RelManager, RelPeer, RelDirectReport, RelOther}

	kindRelationships = map[string][]string{
		Kind180: {RelSelf, RelManager},
		Kind360: Relationships,
	}
)

// AllowsRelationship reports whether raters of relationship rel may rate an assessment of kind.
func AllowsRelationship(kind, rel string) bool {
	return core.ContainsString(kindRelationships[kind], rel)
}

type Assessment struct {
	ID           string     `json:"id"`
	AgencyID     string     `json:"agency_id"`
	TenantID     string     `json:"tenant_id"`
	ProgramID    string     `json:"program_id,omitempty"`
	SubjectID    string     `json:"subject_id"`
	Kind         string     `json:"kind"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	ScaleMax     int        `json:"scale_max"`
	DueAt        *time.Time `json:"due_at"` // UTC
	Questions    []Question `json:"questions"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"` // UTC
	UpdatedAt    time.Time  `json:"updated_at"` // UTC
	OpenedAt     *time.Time `json:"opened_at"`  // UTC
	ClosedAt     *time.Time `json:"closed_at"`  // UTC
	ReportFileID string     `json:"report_file_id,omitempty"`
}

// Resource locates a; the subject owns their assessment.
func (a Assessment) Resource() rbac.Resource {
	return rbac.Resource{AgencyID: a.AgencyID, TenantID: a.TenantID, OwnerIDs: []string{a.SubjectID}}
}

func (a Assessment) IsDraft() bool  { return a.Status == StatusDraft }
func (a Assessment) IsOpen() bool   { return a.Status == StatusOpen }
func (a Assessment) IsClosed() bool { return a.Status == StatusClosed }

type Question struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Competency string `json:"competency"`
	Position   int    `json:"position"`
}

type Rater struct {
	ID           string     `json:"id"`
	AssessmentID string     `json:"assessment_id"`
	UserID       string     `json:"user_id"`
	Relationship string     `json:"relationship"`
	Status       string     `json:"status"`
	InvitedAt    *time.Time `json:"invited_at"`   // UTC
	SubmittedAt  *time.Time `json:"submitted_at"` // UTC
}

func (r Rater) HasSubmitted() bool { return r.Status == RaterSubmitted }

type Response struct {
	RaterID    string `json:"-"`
	QuestionID string `json:"question_id"`
	Score      int    `json:"score"`
	Comment    string `json:"comment"`
}

type NewQuestion struct {
	Text       string `json:"text" validate:"required,max=1000"`
	Competency string `json:"competency" validate:"required,max=100"`
	Position   int    `json:"position" validate:"min=0"`
}

type NewAssessment struct {
	SubjectID   string        `json:"subject_id" validate:"required,uuid"`
	ProgramID   string        `json:"program_id" validate:"omitempty,uuid"`
	Kind        string        `json:"kind" validate:"required,oneof=180 360"`
	Title       string        `json:"title" validate:"required,max=200"`
	Description string        `json:"description" validate:"max=5000"`
	ScaleMax    int           `json:"scale_max" validate:"omitempty,min=2,max=10"`
	DueAt       *time.Time    `json:"due_at"`
	Questions   []NewQuestion `json:"questions" validate:"required,min=1,dive"`
}

func cleanQuestions(qs []NewQuestion) {
	for i := range qs {
		qs[i].Text = core.CleanString(qs[i].Text)
		qs[i].Competency = core.CleanString(qs[i].Competency)
	}
}

func (na *NewAssessment) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	cleanQuestions(na.Questions)
	if na.ScaleMax == 0 {
		na.ScaleMax = DefaultScaleMax
	}
	return validate.Struct(na)
}

type UpdateAssessment struct {
	Title       string        `json:"title" validate:"omitempty,max=200"`
	Description *string       `json:"description" validate:"omitempty,max=5000"`
	ScaleMax    int           `json:"scale_max" validate:"omitempty,min=2,max=10"`
	DueAt       *time.Time    `json:"due_at"`
	Questions   []NewQuestion `json:"questions" validate:"omitempty,min=1,dive"`
}

func (ua *UpdateAssessment) Validate(validate *validator.Validate) error {
	ua.Title = core.CleanString(ua.Title)
	if ua.Description != nil {
		desc := core.CleanString(*ua.Description)
		ua.Description = &desc
	}
	cleanQuestions(ua.Questions)
	return validate.Struct(ua)
}

type NewRater struct {
	UserID       string `json:"user_id" validate:"required,uuid"`
	Relationship string `json:"relationship" validate:"required,oneof=self manager peer direct_report other"`
}

type NewRaters struct {
	Raters []NewRater `json:"raters" validate:"required,min=1,dive"`
}

func (nr *NewRaters) Validate(validate *validator.Validate) error {
	for i := range nr.Raters {
		nr.Raters[i].Relationship = core.CleanString(nr.Raters[i].Relationship, true /* lower */)
	}
	return validate.Struct(nr)
}

type Answer struct {
	QuestionID string `json:"question_id" validate:"required,uuid"`
	Score      int    `json:"score" validate:"required,min=1"`
	Comment    string `json:"comment" validate:"max=2000"`
}

type SubmitResponses struct {
	Answers []Answer `json:"answers" validate:"required,min=1,dive"`
}

func (sr *SubmitResponses) Validate(validate *validator.Validate) error {
	for i := range sr.Answers {
		sr.Answers[i].Comment = core.CleanString(sr.Answers[i].Comment)
	}
	return validate.Struct(sr)
}

type QueryFilter struct {
	Status    string `query:"status"`
	Kind      string `query:"kind"`
	SubjectID string `query:"subject_id"`
	ProgramID string `query:"program_id"`
}

func (qf *QueryFilter) Clean() {
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.Kind = core.CleanString(qf.Kind)
	qf.SubjectID = core.CleanString(qf.SubjectID)
	qf.ProgramID = core.CleanString(qf.ProgramID)
}
