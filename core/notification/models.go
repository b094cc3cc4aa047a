package notification

import (
	"time"
)

// Kinds
const (
	KindEnrollmentCreated    = "enrollment_created"
	KindProgramCompleted     = "program_completed"
	KindAssessmentInvitation = "assessment_invitation"
	KindAssessmentClosed     = "assessment_closed"
	KindReportReady          = "report_ready"
	KindEngagementCreated    = "engagement_created"
	KindSessionScheduled     = "session_scheduled"
	KindSessionCancelled     = "session_cancelled"
)

type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Link      string     `json:"link"`
	ReadAt    *time.Time `json:"read_at"`    // UTC
	CreatedAt time.Time  `json:"created_at"` // UTC
}

func (n Notification) IsRead() bool {
	return n.ReadAt != nil
}

// Notice is what a service wants to tell a set of users.
type Notice struct {
	UserIDs []string
	Kind    string
	Title   string
	Body    string
	Link    string // path relative to the front end base URL
}

type QueryFilter struct {
	Unread bool `query:"unread"`
	Limit  int  `query:"limit"`
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

func (qf *QueryFilter) Clean() {
	if qf.Limit <= 0 {
		qf.Limit = defaultLimit
	}
	if qf.Limit > maxLimit {
		qf.Limit = maxLimit
	}
}

type UnreadCount struct {
	Count int `json:"count"`
}
