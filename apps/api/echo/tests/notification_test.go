package tests

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tos/core/coaching"
	"github.com/trezcool/tos/core/notification"
	"github.com/trezcool/tos/services/email"
)

func TestNotificationApi(t *testing.T) {
	f := setup(t)
	carlToken := f.token(t, f.carl)
	adaToken := f.token(t, f.ada)
	emailsvc.ClearSentMessages()

	rec := f.do(t, http.MethodPost, "/api/engagements", carlToken, coaching.NewEngagement{LearnerID: f.ada.ID, Kind: coaching.KindCoaching})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var eng coaching.Engagement
	decode(t, rec, &eng)
	rec = f.do(t, http.MethodPost, "/api/engagements/"+eng.ID+"/sessions", carlToken, coaching.NewSession{
		ScheduledAt:     f.env.Clock.Now().Add(48 * time.Hour),
		DurationMinutes: 60,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	t.Run("emailed", func(t *testing.T) {
		sent := emailsvc.LastSentMessages(10)
		require.Len(t, sent, 2)
		for _, msg := range sent {
			assert.Equal(t, "ada@example.com", msg.To[0].Address)
			assert.Equal(t, "notification", msg.TemplateName)
		}
	})

	var notifs []notification.Notification
	rec = f.do(t, http.MethodGet, "/api/notifications", adaToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &notifs)
	require.Len(t, notifs, 2)
	kinds := make([]string, 0, len(notifs))
	for _, n := range notifs {
		kinds = append(kinds, n.Kind)
		assert.Equal(t, f.ada.ID, n.UserID)
		assert.Equal(t, "/engagements/"+eng.ID, n.Link)
		assert.False(t, n.IsRead())
	}
	assert.ElementsMatch(t, []string{notification.KindEngagementCreated, notification.KindSessionScheduled}, kinds)

	// the actor is not notified of their own actions
	f.run(t, httpTest{method: http.MethodGet, path: "/api/notifications", token: carlToken, wantCode: http.StatusOK, wantData: []byte("[]")})

	f.run(t, httpTest{
		method:   http.MethodGet,
		path:     "/api/notifications/unread-count",
		token:    adaToken,
		wantCode: http.StatusOK,
		wantData: marshallObj(t, notification.UnreadCount{Count: 2}),
	})

	t.Run("mark read", func(t *testing.T) {
		f.run(t, httpTest{
			name:     "someone else's",
			method:   http.MethodPost,
			path:     "/api/notifications/" + notifs[0].ID + "/read",
			token:    carlToken,
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: "notification not found"}),
		})

		rec := f.do(t, http.MethodPost, "/api/notifications/"+notifs[0].ID+"/read", adaToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var n notification.Notification
		decode(t, rec, &n)
		require.NotNil(t, n.ReadAt)
		assert.True(t, f.env.Clock.Now().Equal(*n.ReadAt))

		// marking twice keeps the first read time
		f.env.Clock.Advance(time.Minute)
		rec = f.do(t, http.MethodPost, "/api/notifications/"+notifs[0].ID+"/read", adaToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var again notification.Notification
		decode(t, rec, &again)
		require.NotNil(t, again.ReadAt)
		assert.True(t, n.ReadAt.Equal(*again.ReadAt))

		rec = f.do(t, http.MethodGet, "/api/notifications?unread=true", adaToken, nil)
		decode(t, rec, &notifs)
		require.Len(t, notifs, 1)
	})

	t.Run("mark all read", func(t *testing.T) {
		f.run(t, httpTest{
			method:   http.MethodPost,
			path:     "/api/notifications/read-all",
			token:    adaToken,
			wantCode: http.StatusOK,
			wantData: []byte(`{"marked": 1}`),
		})
		f.run(t, httpTest{
			method:   http.MethodGet,
			path:     "/api/notifications/unread-count",
			token:    adaToken,
			wantCode: http.StatusOK,
			wantData: marshallObj(t, notification.UnreadCount{Count: 0}),
		})
	})

	t.Run("invalid filter", func(t *testing.T) {
		f.run(t, httpTest{
			method:   http.MethodGet,
			path:     "/api/notifications?limit=lots",
			token:    adaToken,
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"limit": "invalid value"}),
		})
	})
}
