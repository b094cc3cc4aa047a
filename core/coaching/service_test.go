package coaching_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/coaching"
	"github.com/trezcool/tos/core/notification"
	"github.com/trezcool/tos/core/rbac"
	"github.com/trezcool/tos/core/user"
	"github.com/trezcool/tos/tests"
)

type fixture struct {
	env         *testutil.Env
	coach       user.User
	mentor      user.User
	facilitator user.User
	ada         user.User
	outsider    user.User
}

func newFixture(t *testing.T) fixture {
	env := testutil.NewTestEnv(t)
	agency := env.CreateAgency(t, "Acme")
	tnt := env.CreateTenant(t, agency.ID, "Globex")
	other := env.CreateTenant(t, agency.ID, "Initech")

	return fixture{
		env:         env,
		coach:       env.CreateUser(t, agency.ID, tnt.ID, "carl", rbac.RoleCoach),
		mentor:      env.CreateUser(t, agency.ID, tnt.ID, "meg", rbac.RoleMentor),
		facilitator: env.CreateUser(t, agency.ID, tnt.ID, "fiona", rbac.RoleFacilitator),
		ada:         env.CreateUser(t, agency.ID, tnt.ID, "ada", rbac.RoleLearner),
		outsider:    env.CreateUser(t, agency.ID, other.ID, "olga", rbac.RoleLearner),
	}
}

func assertFieldError(t *testing.T, err error, field string) {
	t.Helper()
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	require.NotEmpty(t, verr.Fields)
	assert.Equal(t, field, verr.Fields[0].Field)
}

func TestService_CreateEngagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.env.CoachingSvc

	invalid := []struct {
		name  string
		actor rbac.Actor
		ne    coaching.NewEngagement
		field string
	}{
		{
			name:  "self coaching",
			actor: f.coach.Actor(),
			ne:    coaching.NewEngagement{LearnerID: f.coach.ID, Kind: coaching.KindCoaching},
			field: "learner_id",
		},
		{
			name:  "unknown learner",
			actor: f.coach.Actor(),
			ne:    coaching.NewEngagement{LearnerID: "8d4a3b7e-5c0f-4f35-9f0a-7a1e1c4d2b90", Kind: coaching.KindCoaching},
			field: "learner_id",
		},
		{
			name:  "learner as coach",
			actor: f.coach.Actor(),
			ne:    coaching.NewEngagement{CoachID: f.ada.ID, LearnerID: f.outsider.ID, Kind: coaching.KindCoaching},
			field: "coach_id",
		},
		{
			name:  "mentor coaching",
			actor: f.mentor.Actor(),
			ne:    coaching.NewEngagement{LearnerID: f.ada.ID, Kind: coaching.KindCoaching},
			field: "coach_id",
		},
		{
			name:  "other tenant",
			actor: f.coach.Actor(),
			ne:    coaching.NewEngagement{LearnerID: f.outsider.ID, Kind: coaching.KindCoaching},
			field: "learner_id",
		},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateEngagement(ctx, tc.actor, tc.ne)
			assertFieldError(t, err, tc.field)
		})
	}

	// facilitators follow engagements without running them
	_, err := svc.CreateEngagement(ctx, f.facilitator.Actor(), coaching.NewEngagement{
		CoachID: f.coach.ID, LearnerID: f.ada.ID, Kind: coaching.KindCoaching,
	})
	assert.ErrorIs(t, err, rbac.ErrNoGrant)

	eng, err := svc.CreateEngagement(ctx, f.coach.Actor(), coaching.NewEngagement{
		LearnerID: f.ada.ID, Kind: coaching.KindCoaching, Goals: "Delegate more",
	})
	require.NoError(t, err)
	assert.Equal(t, f.coach.ID, eng.CoachID)
	assert.Equal(t, f.ada.TenantID, eng.TenantID)
	assert.Equal(t, coaching.EngagementActive, eng.Status)
	assert.Equal(t, testutil.Now, eng.StartedAt)

	_, err = svc.CreateEngagement(ctx, f.coach.Actor(), coaching.NewEngagement{LearnerID: f.ada.ID, Kind: coaching.KindCoaching})
	assert.ErrorIs(t, err, coaching.ErrEngagementExists)

	// a coach may also mentor the same learner
	_, err = svc.CreateEngagement(ctx, f.coach.Actor(), coaching.NewEngagement{LearnerID: f.ada.ID, Kind: coaching.KindMentoring})
	require.NoError(t, err)
	_, err = svc.CreateEngagement(ctx, f.mentor.Actor(), coaching.NewEngagement{LearnerID: f.ada.ID, Kind: coaching.KindMentoring})
	require.NoError(t, err)

	notifs, err := f.env.NotificationSvc.List(ctx, f.ada.Actor(), notification.QueryFilter{})
	require.NoError(t, err)
	assert.Len(t, notifs, 3)
	for _, n := range notifs {
		assert.Equal(t, notification.KindEngagementCreated, n.Kind)
	}

	tests := []struct {
		name   string
		actor  rbac.Actor
		filter *coaching.QueryFilter
		want   int
	}{
		{name: "learner", actor: f.ada.Actor(), want: 3},
		{name: "coach", actor: f.coach.Actor(), want: 2},
		{name: "mentor", actor: f.mentor.Actor(), want: 1},
		{name: "facilitator", actor: f.facilitator.Actor(), want: 3},
		{name: "facilitator filtered", actor: f.facilitator.Actor(), filter: &coaching.QueryFilter{Kind: "Mentoring"}, want: 2},
		{name: "outsider", actor: f.outsider.Actor(), want: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engs, err := svc.QueryEngagements(ctx, tc.actor, tc.filter)
			require.NoError(t, err)
			assert.Len(t, engs, tc.want)
		})
	}

	_, err = svc.GetEngagement(ctx, f.outsider.Actor(), eng.ID)
	assert.ErrorIs(t, err, coaching.ErrNotFound)
}

func TestService_Sessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.env.CoachingSvc

	eng, err := svc.CreateEngagement(ctx, f.coach.Actor(), coaching.NewEngagement{LearnerID: f.ada.ID, Kind: coaching.KindCoaching})
	require.NoError(t, err)

	_, err = svc.ScheduleSession(ctx, f.coach.Actor(), eng.ID, coaching.NewSession{
		ScheduledAt: testutil.Now.Add(-time.Hour), DurationMinutes: 60,
	})
	assertFieldError(t, err, "scheduled_at")

	_, err = svc.ScheduleSession(ctx, f.ada.Actor(), eng.ID, coaching.NewSession{
		ScheduledAt: testutil.Now.Add(time.Hour), DurationMinutes: 60,
	})
	assert.ErrorIs(t, err, rbac.ErrNoGrant)

	second, err := svc.ScheduleSession(ctx, f.coach.Actor(), eng.ID, coaching.NewSession{
		ScheduledAt: testutil.Now.Add(48 * time.Hour), DurationMinutes: 45,
	})
	require.NoError(t, err)
	first, err := svc.ScheduleSession(ctx, f.coach.Actor(), eng.ID, coaching.NewSession{
		ScheduledAt: testutil.Now.Add(24 * time.Hour), DurationMinutes: 60, Notes: "Ada avoids conflicts",
	})
	require.NoError(t, err)
	assert.Equal(t, coaching.SessionScheduled, first.Status)

	sessions, err := svc.QuerySessions(ctx, f.coach.Actor(), eng.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first.ID, sessions[0].ID, "sorted by schedule")
	assert.Equal(t, "Ada avoids conflicts", sessions[0].Notes)

	for _, actor := range []rbac.Actor{f.ada.Actor(), f.facilitator.Actor()} {
		sessions, err = svc.QuerySessions(ctx, actor, eng.ID)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Empty(t, sessions[0].Notes)
	}

	_, err = svc.CompleteSession(ctx, f.coach.Actor(), first.ID, coaching.CompleteSession{Summary: "Talked"})
	assert.ErrorIs(t, err, coaching.ErrSessionNotStarted)
	_, err = svc.CompleteSession(ctx, f.outsider.Actor(), first.ID, coaching.CompleteSession{Summary: "Talked"})
	assert.ErrorIs(t, err, coaching.ErrSessionNotFound)

	f.env.Clock.Advance(25 * time.Hour)
	notes := "Follow up on delegation"
	done, err := svc.CompleteSession(ctx, f.coach.Actor(), first.ID, coaching.CompleteSession{Summary: "Talked", Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, coaching.SessionCompleted, done.Status)
	assert.Equal(t, "Talked", done.Summary)
	assert.Equal(t, notes, done.Notes)

	_, err = svc.CancelSession(ctx, f.coach.Actor(), first.ID)
	assert.ErrorIs(t, err, coaching.ErrSessionNotScheduled)

	cancelled, err := svc.CancelSession(ctx, f.coach.Actor(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, coaching.SessionCancelled, cancelled.Status)

	notifs, err := f.env.NotificationSvc.List(ctx, f.ada.Actor(), notification.QueryFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, notifs)
	assert.Equal(t, notification.KindSessionCancelled, notifs[0].Kind)

	_, err = svc.EndEngagement(ctx, f.ada.Actor(), eng.ID)
	assert.ErrorIs(t, err, rbac.ErrNoGrant)
	ended, err := svc.EndEngagement(ctx, f.coach.Actor(), eng.ID)
	require.NoError(t, err)
	assert.Equal(t, coaching.EngagementEnded, ended.Status)
	require.NotNil(t, ended.EndedAt)

	_, err = svc.EndEngagement(ctx, f.coach.Actor(), eng.ID)
	assert.ErrorIs(t, err, coaching.ErrEngagementEnded)
	_, err = svc.ScheduleSession(ctx, f.coach.Actor(), eng.ID, coaching.NewSession{
		ScheduledAt: f.env.Clock.Now().Add(time.Hour), DurationMinutes: 30,
	})
	assert.ErrorIs(t, err, coaching.ErrEngagementEnded)
}
