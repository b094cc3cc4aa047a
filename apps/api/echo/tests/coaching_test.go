package tests

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tos/core/coaching"
	"github.com/trezcool/tos/core/user"
)

func TestCoachingApi_Engagements(t *testing.T) {
	f := setup(t)
	carlToken := f.token(t, f.carl)

	tests := []httpTest{
		{
			name:     "facilitators cannot open engagements",
			token:    f.token(t, f.fiona),
			body:     marshallObj(t, coaching.NewEngagement{CoachID: f.carl.ID, LearnerID: f.ada.ID, Kind: coaching.KindCoaching}),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "self coaching",
			token:    carlToken,
			body:     marshallObj(t, coaching.NewEngagement{LearnerID: f.carl.ID, Kind: coaching.KindCoaching}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"learner_id": "coach and learner must be different users"}),
		},
		{
			name:     "learners cannot coach",
			token:    carlToken,
			body:     marshallObj(t, coaching.NewEngagement{CoachID: f.bob.ID, LearnerID: f.ada.ID, Kind: coaching.KindCoaching}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"coach_id": "user cannot coach"}),
		},
		{
			name:     "invalid kind",
			token:    carlToken,
			body:     marshallObj(t, coaching.NewEngagement{LearnerID: f.ada.ID, Kind: "therapy"}),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "created",
			token:    carlToken,
			body:     marshallObj(t, coaching.NewEngagement{LearnerID: f.ada.ID, Kind: coaching.KindCoaching, Goals: " Lead with empathy "}),
			wantCode: http.StatusCreated,
		},
		{
			name:     "already active",
			token:    carlToken,
			body:     marshallObj(t, coaching.NewEngagement{LearnerID: f.ada.ID, Kind: coaching.KindCoaching}),
			wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: "an active engagement already exists for this coach and learner"}),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.method = http.MethodPost
			tc.path = "/api/engagements"
			rec := f.run(t, tc)

			if tc.wantCode == http.StatusCreated {
				var eng coaching.Engagement
				decode(t, rec, &eng)
				assert.Equal(t, f.carl.ID, eng.CoachID)
				assert.Equal(t, f.tnt.ID, eng.TenantID)
				assert.Equal(t, coaching.EngagementActive, eng.Status)
				assert.Equal(t, "Lead with empathy", eng.Goals)
				assert.Nil(t, eng.EndedAt)
			}
		})
	}

	var engs []coaching.Engagement
	for _, actor := range []user.User{f.carl, f.ada, f.fiona} {
		rec := f.do(t, http.MethodGet, "/api/engagements", f.token(t, actor), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &engs)
		assert.Len(t, engs, 1, actor.Username)
	}

	// other learners do not see it
	rec := f.do(t, http.MethodGet, "/api/engagements", f.token(t, f.bob), nil)
	decode(t, rec, &engs)
	assert.Empty(t, engs)
}

func TestCoachingApi_Sessions(t *testing.T) {
	f := setup(t)
	carlToken := f.token(t, f.carl)
	adaToken := f.token(t, f.ada)

	rec := f.do(t, http.MethodPost, "/api/engagements", carlToken, coaching.NewEngagement{LearnerID: f.ada.ID, Kind: coaching.KindCoaching})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var eng coaching.Engagement
	decode(t, rec, &eng)
	path := "/api/engagements/" + eng.ID
	tomorrow := f.env.Clock.Now().Add(24 * time.Hour)

	f.run(t, httpTest{
		method:   http.MethodPost,
		path:     path + "/sessions",
		token:    carlToken,
		body:     marshallObj(t, coaching.NewSession{ScheduledAt: f.env.Clock.Now().Add(-time.Hour), DurationMinutes: 60}),
		wantCode: http.StatusBadRequest,
		wantData: marshallObj(t, map[string]string{"scheduled_at": "must be in the future"}),
	})
	f.run(t, httpTest{
		name:     "learners cannot schedule",
		method:   http.MethodPost,
		path:     path + "/sessions",
		token:    adaToken,
		body:     marshallObj(t, coaching.NewSession{ScheduledAt: tomorrow, DurationMinutes: 60}),
		wantCode: http.StatusForbidden,
	})

	rec = f.do(t, http.MethodPost, path+"/sessions", carlToken, coaching.NewSession{
		ScheduledAt:     tomorrow,
		DurationMinutes: 60,
		Notes:           "Ask about the reorg",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sess coaching.Session
	decode(t, rec, &sess)
	assert.Equal(t, coaching.SessionScheduled, sess.Status)
	assert.True(t, tomorrow.Equal(sess.ScheduledAt))

	rec = f.do(t, http.MethodPost, path+"/sessions", carlToken, coaching.NewSession{ScheduledAt: tomorrow.Add(7 * 24 * time.Hour), DurationMinutes: 45})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var later coaching.Session
	decode(t, rec, &later)

	t.Run("notes are private to the coach", func(t *testing.T) {
		var sessions []coaching.Session
		rec := f.do(t, http.MethodGet, path+"/sessions", carlToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &sessions)
		require.Len(t, sessions, 2)
		assert.Contains(t, rec.Body.String(), "Ask about the reorg")

		rec = f.do(t, http.MethodGet, path+"/sessions", adaToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &sessions)
		require.Len(t, sessions, 2)
		assert.NotContains(t, rec.Body.String(), "Ask about the reorg")
	})

	t.Run("complete", func(t *testing.T) {
		done := coaching.CompleteSession{Summary: "Agreed on a delegation plan"}
		f.run(t, httpTest{
			method:   http.MethodPost,
			path:     "/api/sessions/" + sess.ID + "/complete",
			token:    carlToken,
			body:     marshallObj(t, done),
			wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: "session has not started yet"}),
		})
		f.run(t, httpTest{
			method:   http.MethodPost,
			path:     "/api/sessions/" + sess.ID + "/complete",
			token:    carlToken,
			body:     marshallObj(t, coaching.CompleteSession{}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"summary": "this field is required"}),
		})

		f.env.Clock.Advance(25 * time.Hour)
		f.run(t, httpTest{
			method:   http.MethodPost,
			path:     "/api/sessions/" + sess.ID + "/complete",
			token:    adaToken,
			body:     marshallObj(t, done),
			wantCode: http.StatusForbidden,
		})

		rec := f.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/complete", carlToken, done)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &sess)
		assert.Equal(t, coaching.SessionCompleted, sess.Status)
		assert.Equal(t, "Agreed on a delegation plan", sess.Summary)

		f.run(t, httpTest{
			method:   http.MethodPost,
			path:     "/api/sessions/" + sess.ID + "/cancel",
			token:    carlToken,
			wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: "session is not scheduled"}),
		})
	})

	t.Run("cancel", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/sessions/"+later.ID+"/cancel", carlToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &later)
		assert.Equal(t, coaching.SessionCancelled, later.Status)

		f.run(t, httpTest{
			method:   http.MethodPost,
			path:     "/api/sessions/nope/cancel",
			token:    carlToken,
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: "session not found"}),
		})
	})

	t.Run("end", func(t *testing.T) {
		f.run(t, httpTest{method: http.MethodPost, path: path + "/end", token: adaToken, wantCode: http.StatusForbidden})

		rec := f.do(t, http.MethodPost, path+"/end", carlToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &eng)
		assert.Equal(t, coaching.EngagementEnded, eng.Status)
		require.NotNil(t, eng.EndedAt)
		assert.True(t, f.env.Clock.Now().Equal(*eng.EndedAt))

		f.run(t, httpTest{
			method:   http.MethodPost,
			path:     path + "/sessions",
			token:    carlToken,
			body:     marshallObj(t, coaching.NewSession{ScheduledAt: f.env.Clock.Now().Add(time.Hour), DurationMinutes: 30}),
			wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: "engagement has ended"}),
		})

		// a new engagement may start once the previous one ended
		rec = f.do(t, http.MethodPost, "/api/engagements", carlToken, coaching.NewEngagement{LearnerID: f.ada.ID, Kind: coaching.KindCoaching})
		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	t.Run("hidden from other learners", func(t *testing.T) {
		f.run(t, httpTest{
			method:   http.MethodGet,
			path:     path,
			token:    f.token(t, f.bob),
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: "engagement not found"}),
		})
	})
}
