package coaching

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/notification"
	"github.com/trezcool/tos/core/rbac"
	"github.com/trezcool/tos/core/user"
)

var (
	// errors
	ErrNotFound            = core.NewNotFoundError("engagement not found")
	ErrSessionNotFound     = core.NewNotFoundError("session not found")
	ErrEngagementExists    = core.NewConflictError("an active engagement already exists for this coach and learner")
	ErrEngagementEnded     = core.NewConflictError("engagement has ended")
	ErrSessionNotScheduled = core.NewConflictError("session is not scheduled")
	ErrSessionNotStarted   = core.NewConflictError("session has not started yet")

	errUserNotFound    = "user not found"
	errNotCoach        = "user cannot coach"
	errNotMentor       = "user cannot mentor"
	errSelfCoaching    = "coach and learner must be different users"
	errNotSameTenant   = "coach and learner must belong to the same tenant"
	errScheduledInPast = "must be in the future"
)

type (
	Repository interface {
		CreateEngagement(ctx context.Context, eng Engagement) (Engagement, error)
		// QueryEngagements returns the engagements within vis, newest first.
		QueryEngagements(ctx context.Context, vis rbac.Visibility, filter *QueryFilter) ([]Engagement, error)
		GetEngagement(ctx context.Context, id string) (Engagement, error)
		UpdateEngagement(ctx context.Context, eng Engagement) (Engagement, error)
		ActiveEngagementExists(ctx context.Context, coachID, learnerID, kind string) (bool, error)

		CreateSession(ctx context.Context, sess Session) (Session, error)
		// QuerySessions returns the sessions of engagementID by schedule.
		QuerySessions(ctx context.Context, engagementID string) ([]Session, error)
		GetSession(ctx context.Context, id string) (Session, error)
		UpdateSession(ctx context.Context, sess Session) (Session, error)
	}

	Service interface {
		CreateEngagement(ctx context.Context, actor rbac.Actor, ne NewEngagement) (Engagement, error)
		QueryEngagements(ctx context.Context, actor rbac.Actor, filter *QueryFilter) ([]Engagement, error)
		GetEngagement(ctx context.Context, actor rbac.Actor, id string) (Engagement, error)
		EndEngagement(ctx context.Context, actor rbac.Actor, id string) (Engagement, error)

		ScheduleSession(ctx context.Context, actor rbac.Actor, engagementID string, ns NewSession) (Session, error)
		QuerySessions(ctx context.Context, actor rbac.Actor, engagementID string) ([]Session, error)
		CompleteSession(ctx context.Context, actor rbac.Actor, id string, cs CompleteSession) (Session, error)
		CancelSession(ctx context.Context, actor rbac.Actor, id string) (Session, error)
	}

	service struct {
		repo     Repository
		userSvc  user.Service
		notifier notification.Notifier
		clock    clockwork.Clock
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, userSvc user.Service, notifier notification.Notifier, clock clockwork.Clock) Service {
	return &service{repo: repo, userSvc: userSvc, notifier: notifier, clock: clock}
}

func fieldError(field, msg string) error {
	return core.NewValidationError(nil, core.FieldError{Field: field, Error: msg})
}

func (svc *service) getUser(ctx context.Context, field, id string) (user.User, error) {
	usr, err := svc.userSvc.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return user.User{}, fieldError(field, errUserNotFound)
		}
		return user.User{}, pkgerrors.Wrap(err, "getting user")
	}
	if !usr.IsActive {
		return user.User{}, fieldError(field, errUserNotFound)
	}
	return usr, nil
}

// others returns the participants of eng but actor.
func others(actor rbac.Actor, eng Engagement) []string {
	ids := make([]string, 0, 2)
	for _, id := range []string{eng.CoachID, eng.LearnerID} {
		if id != actor.ID {
			ids = append(ids, id)
		}
	}
	return ids
}

func (svc *service) CreateEngagement(ctx context.Context, actor rbac.Actor, ne NewEngagement) (Engagement, error) {
	if ne.CoachID == "" {
		ne.CoachID = actor.ID
	}
	if ne.CoachID == ne.LearnerID {
		return Engagement{}, fieldError("learner_id", errSelfCoaching)
	}
	coach, err := svc.getUser(ctx, "coach_id", ne.CoachID)
	if err != nil {
		return Engagement{}, err
	}
	learner, err := svc.getUser(ctx, "learner_id", ne.LearnerID)
	if err != nil {
		return Engagement{}, err
	}

	switch {
	case ne.Kind == KindCoaching && !coach.IsCoach():
		return Engagement{}, fieldError("coach_id", errNotCoach)
	case ne.Kind == KindMentoring && !(coach.IsMentor() || coach.IsCoach()):
		return Engagement{}, fieldError("coach_id", errNotMentor)
	}
	if coach.TenantID == "" || coach.TenantID != learner.TenantID {
		return Engagement{}, fieldError("learner_id", errNotSameTenant)
	}

	eng := Engagement{
		AgencyID:  learner.AgencyID,
		TenantID:  learner.TenantID,
		CoachID:   coach.ID,
		LearnerID: learner.ID,
		Kind:      ne.Kind,
		Status:    EngagementActive,
		Goals:     ne.Goals,
		StartedAt: svc.clock.Now().UTC(),
	}
	if !actor.Can(rbac.CoachingWrite, eng.Resource()) {
		return Engagement{}, rbac.ErrNoGrant
	}
	exists, err := svc.repo.ActiveEngagementExists(ctx, coach.ID, learner.ID, ne.Kind)
	if err != nil {
		return Engagement{}, pkgerrors.Wrap(err, "checking engagements")
	}
	if exists {
		return Engagement{}, ErrEngagementExists
	}

	if eng, err = svc.repo.CreateEngagement(ctx, eng); err != nil {
		return Engagement{}, err
	}
	svc.notifier.Notify(ctx, notification.Notice{
		UserIDs: others(actor, eng),
		Kind:    notification.KindEngagementCreated,
		Title:   "New " + eng.Kind + " engagement",
		Body:    coach.Name + " and " + learner.Name + " start a " + eng.Kind + " engagement.",
		Link:    "/engagements/" + eng.ID,
	})
	return eng, nil
}

func (svc *service) QueryEngagements(ctx context.Context, actor rbac.Actor, filter *QueryFilter) ([]Engagement, error) {
	vis, err := actor.Visibility(rbac.CoachingRead)
	if err != nil {
		return nil, err
	}
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryEngagements(ctx, vis, filter)
}

func (svc *service) GetEngagement(ctx context.Context, actor rbac.Actor, id string) (Engagement, error) {
	eng, err := svc.repo.GetEngagement(ctx, id)
	if err != nil {
		return Engagement{}, err
	}
	if !actor.Can(rbac.CoachingRead, eng.Resource()) {
		return Engagement{}, ErrNotFound
	}
	return eng, nil
}

func (svc *service) getWritable(ctx context.Context, actor rbac.Actor, id string) (Engagement, error) {
	eng, err := svc.GetEngagement(ctx, actor, id)
	if err != nil {
		return Engagement{}, err
	}
	if !canWrite(actor, eng) {
		return Engagement{}, rbac.ErrNoGrant
	}
	return eng, nil
}

// canWrite reports whether actor manages eng; learners never do, even with a coach role.
func canWrite(actor rbac.Actor, eng Engagement) bool {
	return actor.ID != eng.LearnerID && actor.Can(rbac.CoachingWrite, eng.Resource())
}

func (svc *service) EndEngagement(ctx context.Context, actor rbac.Actor, id string) (Engagement, error) {
	eng, err := svc.getWritable(ctx, actor, id)
	if err != nil {
		return Engagement{}, err
	}
	if !eng.IsActive() {
		return Engagement{}, ErrEngagementEnded
	}
	now := svc.clock.Now().UTC()
	eng.Status = EngagementEnded
	eng.EndedAt = &now
	return svc.repo.UpdateEngagement(ctx, eng)
}

func (svc *service) ScheduleSession(ctx context.Context, actor rbac.Actor, engagementID string, ns NewSession) (Session, error) {
	eng, err := svc.getWritable(ctx, actor, engagementID)
	if err != nil {
		return Session{}, err
	}
	if !eng.IsActive() {
		return Session{}, ErrEngagementEnded
	}
	now := svc.clock.Now().UTC()
	if !ns.ScheduledAt.After(now) {
		return Session{}, fieldError("scheduled_at", errScheduledInPast)
	}

	sess, err := svc.repo.CreateSession(ctx, Session{
		EngagementID:    eng.ID,
		ScheduledAt:     ns.ScheduledAt.UTC(),
		DurationMinutes: ns.DurationMinutes,
		Status:          SessionScheduled,
		Notes:           ns.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return Session{}, err
	}
	svc.notifier.Notify(ctx, notification.Notice{
		UserIDs: others(actor, eng),
		Kind:    notification.KindSessionScheduled,
		Title:   "Session scheduled",
		Body:    "A " + eng.Kind + " session is scheduled on " + sess.ScheduledAt.Format("Mon 2 Jan 2006 15:04 MST") + ".",
		Link:    "/engagements/" + eng.ID,
	})
	return sess, nil
}

func (svc *service) QuerySessions(ctx context.Context, actor rbac.Actor, engagementID string) ([]Session, error) {
	eng, err := svc.GetEngagement(ctx, actor, engagementID)
	if err != nil {
		return nil, err
	}
	sessions, err := svc.repo.QuerySessions(ctx, eng.ID)
	if err != nil {
		return nil, err
	}
	// notes are the coach's
	if !canWrite(actor, eng) {
		for i := range sessions {
			sessions[i].Notes = ""
		}
	}
	return sessions, nil
}

func (svc *service) getWritableSession(ctx context.Context, actor rbac.Actor, id string) (Session, Engagement, error) {
	sess, err := svc.repo.GetSession(ctx, id)
	if err != nil {
		return Session{}, Engagement{}, err
	}
	eng, err := svc.repo.GetEngagement(ctx, sess.EngagementID)
	if err != nil {
		return Session{}, Engagement{}, pkgerrors.Wrap(err, "getting engagement")
	}
	if !actor.Can(rbac.CoachingRead, eng.Resource()) {
		return Session{}, Engagement{}, ErrSessionNotFound
	}
	if !canWrite(actor, eng) {
		return Session{}, Engagement{}, rbac.ErrNoGrant
	}
	if !sess.IsScheduled() {
		return Session{}, Engagement{}, ErrSessionNotScheduled
	}
	return sess, eng, nil
}

func (svc *service) CompleteSession(ctx context.Context, actor rbac.Actor, id string, cs CompleteSession) (Session, error) {
	sess, _, err := svc.getWritableSession(ctx, actor, id)
	if err != nil {
		return Session{}, err
	}
	now := svc.clock.Now().UTC()
	if now.Before(sess.ScheduledAt) {
		return Session{}, ErrSessionNotStarted
	}
	sess.Status = SessionCompleted
	sess.Summary = cs.Summary
	if cs.Notes != nil {
		sess.Notes = *cs.Notes
	}
	sess.UpdatedAt = now
	return svc.repo.UpdateSession(ctx, sess)
}

func (svc *service) CancelSession(ctx context.Context, actor rbac.Actor, id string) (Session, error) {
	sess, eng, err := svc.getWritableSession(ctx, actor, id)
	if err != nil {
		return Session{}, err
	}
	sess.Status = SessionCancelled
	sess.UpdatedAt = svc.clock.Now().UTC()
	if sess, err = svc.repo.UpdateSession(ctx, sess); err != nil {
		return Session{}, err
	}
	svc.notifier.Notify(ctx, notification.Notice{
		UserIDs: others(actor, eng),
		Kind:    notification.KindSessionCancelled,
		Title:   "Session cancelled",
		Body:    "The session of " + sess.ScheduledAt.Format("Mon 2 Jan 2006 15:04 MST") + " is cancelled.",
		Link:    "/engagements/" + eng.ID,
	})
	return sess, nil
}
