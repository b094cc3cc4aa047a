package enrollment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/enrollment"
	"github.com/trezcool/tos/core/notification"
	"github.com/trezcool/tos/core/program"
	"github.com/trezcool/tos/core/rbac"
	"github.com/trezcool/tos/core/user"
	"github.com/trezcool/tos/services/email"
	"github.com/trezcool/tos/tests"
)

var errValidation = errors.New("validation")

type fixture struct {
	env         *testutil.Env
	facilitator rbac.Actor
	ada, bob    user.User
	outsider    user.User
	prog        program.Program
}

func newFixture(t *testing.T) fixture {
	ctx := context.Background()
	env := testutil.NewTestEnv(t)
	agency := env.CreateAgency(t, "Acme")
	tnt := env.CreateTenant(t, agency.ID, "Globex")
	other := env.CreateTenant(t, agency.ID, "Initech")

	f := fixture{
		env:         env,
		facilitator: env.CreateUser(t, agency.ID, tnt.ID, "fiona", rbac.RoleFacilitator).Actor(),
		ada:         env.CreateUser(t, agency.ID, tnt.ID, "ada", rbac.RoleLearner),
		bob:         env.CreateUser(t, agency.ID, tnt.ID, "bob", rbac.RoleLearner),
		outsider:    env.CreateUser(t, agency.ID, other.ID, "olga", rbac.RoleLearner),
	}

	prog, err := env.ProgramSvc.Create(ctx, f.facilitator, program.NewProgram{Title: "Leading teams"})
	require.NoError(t, err)
	for _, title := range []string{"Intro", "Feedback", "Delegation"} {
		_, err = env.ProgramSvc.AddModule(ctx, f.facilitator, prog.ID, program.NewModule{Title: title})
		require.NoError(t, err)
	}
	f.prog, err = env.ProgramSvc.Publish(ctx, f.facilitator, prog.ID)
	require.NoError(t, err)
	return f
}

func (f fixture) enroll(t *testing.T, users ...user.User) []enrollment.Enrollment {
	t.Helper()
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	enrs, err := f.env.EnrollmentSvc.Enroll(context.Background(), f.facilitator, f.prog.ID, enrollment.NewEnrollments{UserIDs: ids})
	require.NoError(t, err)
	return enrs
}

func TestService_Enroll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	enrs := f.enroll(t, f.ada, f.bob)
	require.Len(t, enrs, 2)
	for _, enr := range enrs {
		assert.Equal(t, enrollment.StatusActive, enr.Status)
		assert.Equal(t, f.prog.TenantID, enr.TenantID)
		require.NotNil(t, enr.Progress)
		assert.Equal(t, enrollment.Progress{EnrollmentID: enr.ID, TotalModules: 3}, *enr.Progress)
	}

	notifs, err := f.env.NotificationSvc.List(ctx, f.ada.Actor(), notification.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, notification.KindEnrollmentCreated, notifs[0].Kind)
	assert.Len(t, emailsvc.LastSentMessages(10), 2)

	tests := []struct {
		name    string
		actor   rbac.Actor
		userIDs []string
		wantErr error
	}{
		{name: "already enrolled", actor: f.facilitator, userIDs: []string{f.ada.ID}, wantErr: enrollment.ErrAlreadyEnrolled},
		{name: "other tenant", actor: f.facilitator, userIDs: []string{f.outsider.ID}, wantErr: errValidation},
		{name: "unknown user", actor: f.facilitator, userIDs: []string{"6f1c6f2e-3c59-4a5e-9e53-0d3c2f1a1b2c"}, wantErr: errValidation},
		{name: "learners cannot enroll", actor: f.bob.Actor(), userIDs: []string{f.bob.ID}, wantErr: rbac.ErrNoGrant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.env.EnrollmentSvc.Enroll(ctx, tt.actor, f.prog.ID, enrollment.NewEnrollments{UserIDs: tt.userIDs})
			if tt.wantErr == errValidation {
				var verr *core.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "user_ids", verr.Fields[0].Field)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestService_EnrollDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.env.ProgramSvc.Create(ctx, f.facilitator, program.NewProgram{Title: "Draft"})
	require.NoError(t, err)
	_, err = f.env.EnrollmentSvc.Enroll(ctx, f.facilitator, draft.ID, enrollment.NewEnrollments{UserIDs: []string{f.ada.ID}})
	assert.ErrorIs(t, err, enrollment.ErrProgramNotPublished)
}

func TestService_Progress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enr := f.enroll(t, f.ada)[0]
	ada := f.ada.Actor()
	mods := f.prog.Modules

	enr, err := f.env.EnrollmentSvc.CompleteModule(ctx, ada, enr.ID, mods[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 33, enr.Progress.Percent)

	// idempotent
	enr, err = f.env.EnrollmentSvc.CompleteModule(ctx, ada, enr.ID, mods[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, enr.Progress.CompletedModules)

	_, err = f.env.EnrollmentSvc.CompleteModule(ctx, ada, enr.ID, "nope")
	assert.ErrorIs(t, err, program.ErrModuleNotFound)

	_, err = f.env.EnrollmentSvc.CompleteModule(ctx, f.bob.Actor(), enr.ID, mods[1].ID)
	assert.ErrorIs(t, err, enrollment.ErrNotFound, "learners only see their own enrollments")

	// facilitators may record progress too
	enr, err = f.env.EnrollmentSvc.CompleteModule(ctx, f.facilitator, enr.ID, mods[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 66, enr.Progress.Percent)

	f.env.Clock.Advance(24 * time.Hour)
	enr, err = f.env.EnrollmentSvc.CompleteModule(ctx, ada, enr.ID, mods[2].ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusCompleted, enr.Status)
	assert.Equal(t, 100, enr.Progress.Percent)
	require.NotNil(t, enr.CompletedAt)
	assert.Equal(t, testutil.Now.Add(24*time.Hour), *enr.CompletedAt)

	notifs, err := f.env.NotificationSvc.List(ctx, ada, notification.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, notifs, 2)
	assert.Equal(t, notification.KindProgramCompleted, notifs[0].Kind, "newest first")

	_, err = f.env.EnrollmentSvc.Withdraw(ctx, f.facilitator, enr.ID)
	assert.ErrorIs(t, err, enrollment.ErrNotActive)
}

func TestService_QueryAndWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enrs := f.enroll(t, f.ada, f.bob)

	all, err := f.env.EnrollmentSvc.Query(ctx, f.facilitator, &enrollment.QueryFilter{ProgramID: f.prog.ID})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := f.env.EnrollmentSvc.Query(ctx, f.ada.Actor(), nil)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, f.ada.ID, mine[0].UserID)
	assert.NotNil(t, mine[0].Progress)

	var bobs enrollment.Enrollment
	for _, e := range enrs {
		if e.UserID == f.bob.ID {
			bobs = e
		}
	}
	_, err = f.env.EnrollmentSvc.Withdraw(ctx, f.bob.Actor(), bobs.ID)
	assert.ErrorIs(t, err, rbac.ErrNoGrant)

	bobs, err = f.env.EnrollmentSvc.Withdraw(ctx, f.facilitator, bobs.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusWithdrawn, bobs.Status)

	_, err = f.env.EnrollmentSvc.CompleteModule(ctx, f.bob.Actor(), bobs.ID, f.prog.Modules[0].ID)
	assert.ErrorIs(t, err, enrollment.ErrNotActive)

	// withdrawn learners can be enrolled again
	again := f.enroll(t, f.bob)
	assert.NotEqual(t, bobs.ID, again[0].ID)

	active, err := f.env.EnrollmentSvc.Query(ctx, f.facilitator, &enrollment.QueryFilter{Status: enrollment.StatusActive})
	require.NoError(t, err)
	assert.Len(t, active, 2)
}
