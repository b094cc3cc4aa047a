package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tos/core/coaching"
	"github.com/trezcool/tos/core/rbac"
)

type engagementRow struct {
	ID        string    `db:"id"`
	AgencyID  string    `db:"agency_id"`
	TenantID  string    `db:"tenant_id"`
	CoachID   string    `db:"coach_id"`
	LearnerID string    `db:"learner_id"`
	Kind      string    `db:"kind"`
	Status    string    `db:"status"`
	Goals     string    `db:"goals"`
	StartedAt time.Time `db:"started_at"`
	EndedAt   null.Time `db:"ended_at"`
}

func newEngagementRow(e coaching.Engagement) engagementRow {
	return engagementRow{
		ID:        e.ID,
		AgencyID:  e.AgencyID,
		TenantID:  e.TenantID,
		CoachID:   e.CoachID,
		LearnerID: e.LearnerID,
		Kind:      e.Kind,
		Status:    e.Status,
		Goals:     e.Goals,
		StartedAt: e.StartedAt.UTC(),
		EndedAt:   nullTime(e.EndedAt),
	}
}

func (r engagementRow) engagement() coaching.Engagement {
	return coaching.Engagement{
		ID:        r.ID,
		AgencyID:  r.AgencyID,
		TenantID:  r.TenantID,
		CoachID:   r.CoachID,
		LearnerID: r.LearnerID,
		Kind:      r.Kind,
		Status:    r.Status,
		Goals:     r.Goals,
		StartedAt: r.StartedAt.UTC(),
		EndedAt:   timePtr(r.EndedAt),
	}
}

type sessionRow struct {
	ID              string    `db:"id"`
	EngagementID    string    `db:"engagement_id"`
	ScheduledAt     time.Time `db:"scheduled_at"`
	DurationMinutes int       `db:"duration_minutes"`
	Status          string    `db:"status"`
	Notes           string    `db:"notes"`
	Summary         string    `db:"summary"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func newSessionRow(s coaching.Session) sessionRow {
	row := sessionRow(s)
	row.ScheduledAt = s.ScheduledAt.UTC()
	row.CreatedAt = s.CreatedAt.UTC()
	row.UpdatedAt = s.UpdatedAt.UTC()
	return row
}

func (r sessionRow) session() coaching.Session {
	s := coaching.Session(r)
	s.ScheduledAt = r.ScheduledAt.UTC()
	s.CreatedAt = r.CreatedAt.UTC()
	s.UpdatedAt = r.UpdatedAt.UTC()
	return s
}

const (
	engagementColumns = "id, agency_id, tenant_id, coach_id, learner_id, kind, status, goals, started_at, ended_at"
	sessionColumns    = "id, engagement_id, scheduled_at, duration_minutes, status, notes, summary, created_at, updated_at"
)

type coachingRepository struct {
	db *sqlx.DB
}

var _ coaching.Repository = (*coachingRepository)(nil)

func NewCoachingRepository(db *sqlx.DB) coaching.Repository {
	return &coachingRepository{db: db}
}

func (repo *coachingRepository) CreateEngagement(ctx context.Context, eng coaching.Engagement) (coaching.Engagement, error) {
	eng.ID = newID()
	row := newEngagementRow(eng)
	_, err := repo.db.NamedExecContext(ctx,
		"INSERT INTO coaching_engagements ("+engagementColumns+") VALUES "+
			"(:id, :agency_id, :tenant_id, :coach_id, :learner_id, :kind, :status, :goals, :started_at, :ended_at)",
		row)
	if err != nil {
		return coaching.Engagement{}, errors.Wrap(err, "inserting engagement")
	}
	return row.engagement(), nil
}

func (repo *coachingRepository) QueryEngagements(ctx context.Context, vis rbac.Visibility, filter *coaching.QueryFilter) ([]coaching.Engagement, error) {
	var q query
	q.visible(vis, "agency_id", "tenant_id", "coach_id = ?", "learner_id = ?")
	if filter != nil {
		if filter.Status != "" {
			q.where("status = ?", filter.Status)
		}
		if filter.Kind != "" {
			q.where("kind = ?", filter.Kind)
		}
		if filter.CoachID != "" {
			q.where("coach_id::text = ?", filter.CoachID)
		}
		if filter.LearnerID != "" {
			q.where("learner_id::text = ?", filter.LearnerID)
		}
	}

	var rows []engagementRow
	if err := q.selectRows(ctx, repo.db, &rows, "SELECT "+engagementColumns+" FROM coaching_engagements", "started_at DESC"); err != nil {
		return nil, errors.Wrap(err, "querying engagements")
	}
	engs := make([]coaching.Engagement, 0, len(rows))
	for _, r := range rows {
		engs = append(engs, r.engagement())
	}
	return engs, nil
}

func (repo *coachingRepository) GetEngagement(ctx context.Context, id string) (coaching.Engagement, error) {
	if !validID(id) {
		return coaching.Engagement{}, coaching.ErrNotFound
	}
	var row engagementRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+engagementColumns+" FROM coaching_engagements WHERE id = $1", id); err != nil {
		return coaching.Engagement{}, trapNoRowsErr(err, coaching.ErrNotFound, "getting engagement")
	}
	return row.engagement(), nil
}

func (repo *coachingRepository) UpdateEngagement(ctx context.Context, eng coaching.Engagement) (coaching.Engagement, error) {
	row := newEngagementRow(eng)
	res, err := repo.db.NamedExecContext(ctx,
		"UPDATE coaching_engagements SET status = :status, goals = :goals, ended_at = :ended_at WHERE id = :id",
		row)
	if err != nil {
		return coaching.Engagement{}, errors.Wrap(err, "updating engagement")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return coaching.Engagement{}, coaching.ErrNotFound
	}
	return row.engagement(), nil
}

func (repo *coachingRepository) ActiveEngagementExists(ctx context.Context, coachID, learnerID, kind string) (bool, error) {
	if !validID(coachID) || !validID(learnerID) {
		return false, nil
	}
	var exists bool
	err := repo.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM coaching_engagements
		WHERE coach_id = $1 AND learner_id = $2 AND kind = $3 AND status = $4)`,
		coachID, learnerID, kind, coaching.EngagementActive)
	return exists, errors.Wrap(err, "checking engagements")
}

func (repo *coachingRepository) CreateSession(ctx context.Context, sess coaching.Session) (coaching.Session, error) {
	sess.ID = newID()
	row := newSessionRow(sess)
	_, err := repo.db.NamedExecContext(ctx,
		"INSERT INTO coaching_sessions ("+sessionColumns+") VALUES "+
			"(:id, :engagement_id, :scheduled_at, :duration_minutes, :status, :notes, :summary, :created_at, :updated_at)",
		row)
	if err != nil {
		return coaching.Session{}, errors.Wrap(err, "inserting session")
	}
	return row.session(), nil
}

func (repo *coachingRepository) QuerySessions(ctx context.Context, engagementID string) ([]coaching.Session, error) {
	if !validID(engagementID) {
		return []coaching.Session{}, nil
	}
	var rows []sessionRow
	err := repo.db.SelectContext(ctx, &rows,
		"SELECT "+sessionColumns+" FROM coaching_sessions WHERE engagement_id = $1 ORDER BY scheduled_at", engagementID)
	if err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}
	sessions := make([]coaching.Session, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, r.session())
	}
	return sessions, nil
}

func (repo *coachingRepository) GetSession(ctx context.Context, id string) (coaching.Session, error) {
	if !validID(id) {
		return coaching.Session{}, coaching.ErrSessionNotFound
	}
	var row sessionRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+sessionColumns+" FROM coaching_sessions WHERE id = $1", id); err != nil {
		return coaching.Session{}, trapNoRowsErr(err, coaching.ErrSessionNotFound, "getting session")
	}
	return row.session(), nil
}

func (repo *coachingRepository) UpdateSession(ctx context.Context, sess coaching.Session) (coaching.Session, error) {
	row := newSessionRow(sess)
	res, err := repo.db.NamedExecContext(ctx,
		`UPDATE coaching_sessions SET scheduled_at = :scheduled_at, duration_minutes = :duration_minutes,
		status = :status, notes = :notes, summary = :summary, updated_at = :updated_at WHERE id = :id`,
		row)
	if err != nil {
		return coaching.Session{}, errors.Wrap(err, "updating session")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return coaching.Session{}, coaching.ErrSessionNotFound
	}
	return row.session(), nil
}
