package tests

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tos/core/assessment"
	"github.com/trezcool/tos/core/user"
)

func answers(a assessment.Assessment, score int) assessment.SubmitResponses {
	sr := assessment.SubmitResponses{}
	for _, q := range a.Questions {
		sr.Answers = append(sr.Answers, assessment.Answer{QuestionID: q.ID, Score: score})
	}
	return sr
}

func TestAssessmentApi_Flow(t *testing.T) {
	f := setup(t)
	fionaToken := f.token(t, f.fiona)
	adaToken := f.token(t, f.ada)

	na := assessment.NewAssessment{
		SubjectID: f.ada.ID,
		Kind:      assessment.Kind360,
		Title:     "Ada 360",
		Questions: []assessment.NewQuestion{
			{Text: "Listens before answering", Competency: "Communication"},
			{Text: "Shares context", Competency: "Communication"},
			{Text: "Delegates well", Competency: "Delegation"},
		},
	}

	f.run(t, httpTest{
		method:   http.MethodPost,
		path:     "/api/assessments",
		token:    adaToken,
		body:     marshallObj(t, na),
		wantCode: http.StatusForbidden,
	})
	f.run(t, httpTest{
		method:   http.MethodPost,
		path:     "/api/assessments",
		token:    fionaToken,
		body:     marshallObj(t, assessment.NewAssessment{SubjectID: f.ada.ID, Kind: "90", Title: "Nope"}),
		wantCode: http.StatusBadRequest,
	})

	rec := f.do(t, http.MethodPost, "/api/assessments", fionaToken, na)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var a assessment.Assessment
	decode(t, rec, &a)
	assert.Equal(t, assessment.StatusDraft, a.Status)
	assert.Equal(t, assessment.DefaultScaleMax, a.ScaleMax)
	require.Len(t, a.Questions, 3)
	path := "/api/assessments/" + a.ID

	t.Run("open without self rater", func(t *testing.T) {
		f.run(t, httpTest{
			method:   http.MethodPost,
			path:     path + "/open",
			token:    fionaToken,
			wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: "assessment has no self rater"}),
		})
	})

	t.Run("raters", func(t *testing.T) {
		f.run(t, httpTest{
			method: http.MethodPost,
			path:   path + "/raters",
			token:  fionaToken,
			body: marshallObj(t, assessment.NewRaters{Raters: []assessment.NewRater{
				{UserID: f.bob.ID, Relationship: assessment.RelSelf},
			}}),
			wantCode: http.StatusBadRequest,
		})
		f.run(t, httpTest{
			method: http.MethodPost,
			path:   path + "/raters",
			token:  fionaToken,
			body: marshallObj(t, assessment.NewRaters{Raters: []assessment.NewRater{
				{UserID: f.admin.ID, Relationship: assessment.RelPeer},
			}}),
			wantCode: http.StatusBadRequest,
		})

		rec := f.do(t, http.MethodPost, path+"/raters", fionaToken, assessment.NewRaters{Raters: []assessment.NewRater{
			{UserID: f.ada.ID, Relationship: assessment.RelSelf},
			{UserID: f.bob.ID, Relationship: assessment.RelPeer},
			{UserID: f.carl.ID, Relationship: assessment.RelManager},
			{UserID: f.fiona.ID, Relationship: assessment.RelOther},
		}})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var raters []assessment.Rater
		decode(t, rec, &raters)
		require.Len(t, raters, 4)
		for _, r := range raters {
			assert.Equal(t, assessment.RaterPending, r.Status)
			assert.Nil(t, r.InvitedAt)
		}

		f.run(t, httpTest{
			method: http.MethodPost,
			path:   path + "/raters",
			token:  fionaToken,
			body: marshallObj(t, assessment.NewRaters{Raters: []assessment.NewRater{
				{UserID: f.bob.ID, Relationship: assessment.RelPeer},
			}}),
			wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: "user already rates this assessment"}),
		})

		// raters are listed to managers only
		f.run(t, httpTest{method: http.MethodGet, path: path + "/raters", token: adaToken, wantCode: http.StatusForbidden})
	})

	t.Run("results are hidden until closed", func(t *testing.T) {
		f.run(t, httpTest{
			method:   http.MethodGet,
			path:     path + "/results",
			token:    adaToken,
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: "results are available once the assessment is closed"}),
		})
	})

	t.Run("open", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, path+"/open", fionaToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &a)
		assert.Equal(t, assessment.StatusOpen, a.Status)
		require.Len(t, a.Questions, 3)

		f.run(t, httpTest{
			method:   http.MethodPut,
			path:     path,
			token:    fionaToken,
			body:     marshallObj(t, assessment.UpdateAssessment{Title: "Too late"}),
			wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: "assessment is no longer a draft"}),
		})
	})

	t.Run("responses", func(t *testing.T) {
		submissions := []struct {
			rater user.User
			score int
		}{
			{f.ada, 4},
			{f.bob, 2},
			{f.carl, 3},
			{f.fiona, 4},
		}
		for _, sub := range submissions {
			rec := f.do(t, http.MethodPost, path+"/responses", f.token(t, sub.rater), answers(a, sub.score))
			require.Equal(t, http.StatusOK, rec.Code, "%s: %s", sub.rater.Username, rec.Body.String())
			var rater assessment.Rater
			decode(t, rec, &rater)
			assert.Equal(t, assessment.RaterSubmitted, rater.Status)
		}

		f.run(t, httpTest{
			method:   http.MethodPost,
			path:     path + "/responses",
			token:    adaToken,
			body:     marshallObj(t, answers(a, 5)),
			wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: "responses already submitted"}),
		})
		f.run(t, httpTest{
			method:   http.MethodPost,
			path:     path + "/responses",
			token:    f.token(t, f.admin),
			body:     marshallObj(t, answers(a, 5)),
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: "you are not a rater of this assessment"}),
		})
	})

	t.Run("close and report", func(t *testing.T) {
		f.run(t, httpTest{
			method:   http.MethodPost,
			path:     path + "/report",
			token:    fionaToken,
			wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: "assessment is not closed"}),
		})
		f.run(t, httpTest{
			method:   http.MethodGet,
			path:     path + "/report",
			token:    fionaToken,
			wantCode: http.StatusNotFound,
		})

		rec := f.do(t, http.MethodPost, path+"/close", fionaToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = f.do(t, http.MethodGet, path+"/results", adaToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var stats assessment.Stats
		decode(t, rec, &stats)
		assert.Equal(t, 4, stats.Invited)
		assert.Equal(t, 4, stats.Submitted)
		require.NotNil(t, stats.Self)
		require.NotNil(t, stats.Others)
		require.NotNil(t, stats.Gap)
		assert.InDelta(t, 4, *stats.Self, 0.001)
		assert.InDelta(t, 3, *stats.Others, 0.001)
		assert.InDelta(t, 1, *stats.Gap, 0.001)
		assert.Len(t, stats.Competencies, 2)

		// learners cannot generate reports
		f.run(t, httpTest{method: http.MethodPost, path: path + "/report", token: adaToken, wantCode: http.StatusForbidden})

		rec = f.do(t, http.MethodPost, path+"/report", fionaToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &a)
		assert.NotEmpty(t, a.ReportFileID)

		req, rec := newAuthRequest(http.MethodGet, path+"/report", adaToken)
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), "inline;"))
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))

		// others see the report of their own assessments only
		f.run(t, httpTest{method: http.MethodGet, path: path + "/report", token: f.token(t, f.bob), wantCode: http.StatusNotFound})
	})
}

func TestAssessmentApi_Query(t *testing.T) {
	f := setup(t)
	fionaToken := f.token(t, f.fiona)

	for _, subject := range []user.User{f.ada, f.bob} {
		rec := f.do(t, http.MethodPost, "/api/assessments", fionaToken, assessment.NewAssessment{
			SubjectID: subject.ID,
			Kind:      assessment.Kind180,
			Title:     subject.Name + " 180",
			Questions: []assessment.NewQuestion{{Text: "Sets clear goals", Competency: "Vision"}},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	var list []assessment.Assessment
	rec := f.do(t, http.MethodGet, "/api/assessments", fionaToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &list)
	assert.Len(t, list, 2)

	rec = f.do(t, http.MethodGet, "/api/assessments?subject_id="+f.bob.ID, fionaToken, nil)
	decode(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, f.bob.ID, list[0].SubjectID)

	// subjects see their own assessments
	rec = f.do(t, http.MethodGet, "/api/assessments", f.token(t, f.ada), nil)
	decode(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, f.ada.ID, list[0].SubjectID)

	// 180s only take self and manager raters
	f.run(t, httpTest{
		method: http.MethodPost,
		path:   "/api/assessments/" + list[0].ID + "/raters",
		token:  fionaToken,
		body: marshallObj(t, assessment.NewRaters{Raters: []assessment.NewRater{
			{UserID: f.bob.ID, Relationship: assessment.RelPeer},
		}}),
		wantCode: http.StatusBadRequest,
	})
}
