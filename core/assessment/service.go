package assessment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/notification"
	"github.com/trezcool/tos/core/program"
	"github.com/trezcool/tos/core/rbac"
	"github.com/trezcool/tos/core/upload"
	"github.com/trezcool/tos/core/user"
	"github.com/trezcool/tos/services/metrics"
)

var (
	// errors
	ErrNotFound          = core.NewNotFoundError("assessment not found")
	ErrReportNotFound    = core.NewNotFoundError("report not generated yet")
	ErrNotDraft          = core.NewConflictError("assessment is no longer a draft")
	ErrNotOpen           = core.NewConflictError("assessment is not open")
	ErrNotClosed         = core.NewConflictError("assessment is not closed")
	ErrClosed            = core.NewConflictError("assessment is closed")
	ErrNoQuestions       = core.NewConflictError("assessment has no questions")
	ErrNoSelfRater       = core.NewConflictError("assessment has no self rater")
	ErrDuplicateRater    = core.NewConflictError("user already rates this assessment")
	ErrAlreadySubmitted  = core.NewConflictError("responses already submitted")
	ErrNotRater          = core.NewForbiddenError("you are not a rater of this assessment")
	ErrResultsNotVisible = core.NewForbiddenError("results are available once the assessment is closed")

	errUserNotFound      = "user not found"
	errNotInTenant       = "user is not a member of the assessment's tenant"
	errProgramNotInScope = "program does not belong to the subject's tenant"
	errDuplicatePosition = "question positions must be unique"
	errRelNotAllowed     = "relationship %q is not allowed in a %s assessment"
	errSelfNotSubject    = "the self rater must be the subject"
	errSubjectNotSelf    = "the subject can only rate themselves"
	errTooManySelf       = "an assessment has one self rater at most"
	errUnknownQuestion   = "unknown question %s"
	errDuplicateAnswer   = "question %s is answered more than once"
	errMissingAnswers    = "every question must be answered"
	errScoreOutOfRange   = "scores range from 1 to %d"
)

type (
	Repository interface {
		// CreateAssessment creates a with its questions.
		CreateAssessment(ctx context.Context, a Assessment) (Assessment, error)
		// QueryAssessments returns the assessments within vis, newest first.
		// With an own scope, an assessment is visible to its subject and its raters.
		QueryAssessments(ctx context.Context, vis rbac.Visibility, filter *QueryFilter) ([]Assessment, error)
		// GetAssessment returns the assessment with its questions sorted by position.
		GetAssessment(ctx context.Context, id string) (Assessment, error)
		// UpdateAssessment updates everything but the questions.
		UpdateAssessment(ctx context.Context, a Assessment) (Assessment, error)
		ReplaceQuestions(ctx context.Context, assessmentID string, questions []Question) ([]Question, error)

		CreateRaters(ctx context.Context, raters []Rater) ([]Rater, error)
		QueryRaters(ctx context.Context, assessmentID string) ([]Rater, error)
		UpdateRater(ctx context.Context, rater Rater) (Rater, error)
		// SaveResponses stores the responses of rater and marks them submitted, atomically.
		SaveResponses(ctx context.Context, rater Rater, responses []Response) (Rater, error)
		QueryResponses(ctx context.Context, assessmentID string) ([]Response, error)
	}

	Service interface {
		Create(ctx context.Context, actor rbac.Actor, na NewAssessment) (Assessment, error)
		Query(ctx context.Context, actor rbac.Actor, filter *QueryFilter) ([]Assessment, error)
		Get(ctx context.Context, actor rbac.Actor, id string) (Assessment, error)
		Update(ctx context.Context, actor rbac.Actor, id string, ua UpdateAssessment) (Assessment, error)

		AddRaters(ctx context.Context, actor rbac.Actor, id string, nr NewRaters) ([]Rater, error)
		Raters(ctx context.Context, actor rbac.Actor, id string) ([]Rater, error)
		Open(ctx context.Context, actor rbac.Actor, id string) (Assessment, error)
		SubmitResponses(ctx context.Context, actor rbac.Actor, id string, sr SubmitResponses) (Rater, error)
		Close(ctx context.Context, actor rbac.Actor, id string) (Assessment, error)

		Results(ctx context.Context, actor rbac.Actor, id string) (Stats, error)
		GenerateReport(ctx context.Context, actor rbac.Actor, id string) (Assessment, error)
		Report(ctx context.Context, actor rbac.Actor, id string) (upload.File, io.ReadCloser, error)
	}

	service struct {
		conf       *core.Config
		repo       Repository
		userSvc    user.Service
		programSvc program.Service
		uploadSvc  upload.Service
		notifier   notification.Notifier
		renderer   ReportRenderer
		clock      clockwork.Clock
	}
)

var _ Service = (*service)(nil)

func NewService(
	conf *core.Config,
	repo Repository,
	userSvc user.Service,
	programSvc program.Service,
	uploadSvc upload.Service,
	notifier notification.Notifier,
	renderer ReportRenderer,
	clock clockwork.Clock,
) Service {
	return &service{
		conf:       conf,
		repo:       repo,
		userSvc:    userSvc,
		programSvc: programSvc,
		uploadSvc:  uploadSvc,
		notifier:   notifier,
		renderer:   renderer,
		clock:      clock,
	}
}

func fieldError(field, msg string) error {
	return core.NewValidationError(nil, core.FieldError{Field: field, Error: msg})
}

// buildQuestions numbers questions without a position after the last given one.
func buildQuestions(nqs []NewQuestion) ([]Question, error) {
	qs := make([]Question, 0, len(nqs))
	taken := make(map[int]bool, len(nqs))
	var last int
	for _, nq := range nqs {
		if nq.Position > 0 {
			if taken[nq.Position] {
				return nil, fieldError("questions", errDuplicatePosition)
			}
			taken[nq.Position] = true
			if nq.Position > last {
				last = nq.Position
			}
		}
	}
	for _, nq := range nqs {
		pos := nq.Position
		if pos == 0 {
			last++
			pos = last
		}
		qs = append(qs, Question{Text: nq.Text, Competency: nq.Competency, Position: pos})
	}
	return qs, nil
}

func (svc *service) Create(ctx context.Context, actor rbac.Actor, na NewAssessment) (Assessment, error) {
	subject, err := svc.userSvc.Get(ctx, actor, na.SubjectID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return Assessment{}, fieldError("subject_id", errUserNotFound)
		}
		return Assessment{}, pkgerrors.Wrap(err, "getting subject")
	}
	if subject.TenantID == "" {
		return Assessment{}, fieldError("subject_id", errNotInTenant)
	}

	now := svc.clock.Now().UTC()
	a := Assessment{
		AgencyID:    subject.AgencyID,
		TenantID:    subject.TenantID,
		SubjectID:   subject.ID,
		Kind:        na.Kind,
		Title:       na.Title,
		Description: na.Description,
		Status:      StatusDraft,
		ScaleMax:    na.ScaleMax,
		DueAt:       utcPtr(na.DueAt),
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if a.ScaleMax == 0 {
		a.ScaleMax = DefaultScaleMax
	}
	if !actor.Can(rbac.AssessmentsWrite, a.Resource()) {
		return Assessment{}, rbac.ErrNoGrant
	}

	if na.ProgramID != "" {
		prog, err := svc.programSvc.Get(ctx, actor, na.ProgramID)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return Assessment{}, fieldError("program_id", program.ErrNotFound.Error())
			}
			return Assessment{}, pkgerrors.Wrap(err, "getting program")
		}
		if prog.TenantID != a.TenantID {
			return Assessment{}, fieldError("program_id", errProgramNotInScope)
		}
		a.ProgramID = prog.ID
	}

	if a.Questions, err = buildQuestions(na.Questions); err != nil {
		return Assessment{}, err
	}
	return svc.repo.CreateAssessment(ctx, a)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return core.TimePtr(*t)
}

func (svc *service) Query(ctx context.Context, actor rbac.Actor, filter *QueryFilter) ([]Assessment, error) {
	vis, err := actor.Visibility(rbac.AssessmentsRead)
	if err != nil {
		return nil, err
	}
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryAssessments(ctx, vis, filter)
}

// resource locates a with its raters as co-owners.
func resource(a Assessment, raters []Rater) rbac.Resource {
	res := a.Resource()
	for _, r := range raters {
		res.OwnerIDs = append(res.OwnerIDs, r.UserID)
	}
	return res
}

// get returns the assessment id and its raters, if actor can see it.
func (svc *service) get(ctx context.Context, actor rbac.Actor, id string) (Assessment, []Rater, error) {
	a, err := svc.repo.GetAssessment(ctx, id)
	if err != nil {
		return Assessment{}, nil, err
	}
	raters, err := svc.repo.QueryRaters(ctx, a.ID)
	if err != nil {
		return Assessment{}, nil, pkgerrors.Wrap(err, "querying raters")
	}
	if !actor.Can(rbac.AssessmentsRead, resource(a, raters)) {
		return Assessment{}, nil, ErrNotFound
	}
	return a, raters, nil
}

func (svc *service) Get(ctx context.Context, actor rbac.Actor, id string) (Assessment, error) {
	a, _, err := svc.get(ctx, actor, id)
	return a, err
}

// getWritable returns the assessment id and its raters, if actor may manage it.
func (svc *service) getWritable(ctx context.Context, actor rbac.Actor, id string) (Assessment, []Rater, error) {
	a, raters, err := svc.get(ctx, actor, id)
	if err != nil {
		return Assessment{}, nil, err
	}
	if !actor.Can(rbac.AssessmentsWrite, a.Resource()) {
		return Assessment{}, nil, rbac.ErrNoGrant
	}
	return a, raters, nil
}

func (svc *service) Update(ctx context.Context, actor rbac.Actor, id string, ua UpdateAssessment) (Assessment, error) {
	a, _, err := svc.getWritable(ctx, actor, id)
	if err != nil {
		return Assessment{}, err
	}
	if !a.IsDraft() {
		return Assessment{}, ErrNotDraft
	}

	if ua.Title != "" {
		a.Title = ua.Title
	}
	if ua.Description != nil {
		a.Description = *ua.Description
	}
	if ua.ScaleMax != 0 {
		a.ScaleMax = ua.ScaleMax
	}
	if ua.DueAt != nil {
		a.DueAt = utcPtr(ua.DueAt)
	}
	questions := a.Questions
	if len(ua.Questions) > 0 {
		qs, err := buildQuestions(ua.Questions)
		if err != nil {
			return Assessment{}, err
		}
		if questions, err = svc.repo.ReplaceQuestions(ctx, a.ID, qs); err != nil {
			return Assessment{}, pkgerrors.Wrap(err, "replacing questions")
		}
	}
	a.UpdatedAt = svc.clock.Now().UTC()
	updated, err := svc.repo.UpdateAssessment(ctx, a)
	if err != nil {
		return Assessment{}, err
	}
	updated.Questions = questions
	return updated, nil
}

func (svc *service) checkNewRaters(ctx context.Context, a Assessment, existing []Rater, nrs []NewRater) error {
	users := make(map[string]bool, len(existing)+len(nrs))
	var selfRaters int
	for _, r := range existing {
		users[r.UserID] = true
		if r.Relationship == RelSelf {
			selfRaters++
		}
	}

	for _, nr := range nrs {
		if !AllowsRelationship(a.Kind, nr.Relationship) {
			return fieldError("raters", fmt.Sprintf(errRelNotAllowed, nr.Relationship, a.Kind))
		}
		switch {
		case nr.Relationship == RelSelf && nr.UserID != a.SubjectID:
			return fieldError("raters", errSelfNotSubject)
		case nr.Relationship != RelSelf && nr.UserID == a.SubjectID:
			return fieldError("raters", errSubjectNotSelf)
		}
		if nr.Relationship == RelSelf {
			if selfRaters++; selfRaters > 1 {
				return fieldError("raters", errTooManySelf)
			}
		}
		if users[nr.UserID] {
			return ErrDuplicateRater
		}
		users[nr.UserID] = true

		usr, err := svc.userSvc.GetByID(ctx, nr.UserID)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return fieldError("raters", errUserNotFound)
			}
			return pkgerrors.Wrap(err, "getting rater")
		}
		if usr.TenantID != a.TenantID || !usr.IsActive {
			return fieldError("raters", errNotInTenant)
		}
	}
	return nil
}

func (svc *service) AddRaters(ctx context.Context, actor rbac.Actor, id string, nr NewRaters) ([]Rater, error) {
	a, existing, err := svc.getWritable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if a.IsClosed() {
		return nil, ErrClosed
	}
	if err = svc.checkNewRaters(ctx, a, existing, nr.Raters); err != nil {
		return nil, err
	}

	now := svc.clock.Now().UTC()
	raters := make([]Rater, 0, len(nr.Raters))
	for _, r := range nr.Raters {
		rater := Rater{AssessmentID: a.ID, UserID: r.UserID, Relationship: r.Relationship, Status: RaterPending}
		// late raters of an open assessment are invited right away
		if a.IsOpen() {
			rater.InvitedAt = &now
		}
		raters = append(raters, rater)
	}
	created, err := svc.repo.CreateRaters(ctx, raters)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "creating raters")
	}
	if a.IsOpen() {
		svc.invite(ctx, a, created)
	}
	return created, nil
}

func (svc *service) invite(ctx context.Context, a Assessment, raters []Rater) {
	userIDs := make([]string, 0, len(raters))
	for _, r := range raters {
		userIDs = append(userIDs, r.UserID)
	}
	body := "You are invited to give feedback."
	if a.DueAt != nil {
		body = fmt.Sprintf("You are invited to give feedback before %s.", a.DueAt.Format("2 Jan 2006"))
	}
	svc.notifier.Notify(ctx, notification.Notice{
		UserIDs: userIDs,
		Kind:    notification.KindAssessmentInvitation,
		Title:   "Feedback requested: " + a.Title,
		Body:    body,
		Link:    "/assessments/" + a.ID,
	})
}

func (svc *service) Raters(ctx context.Context, actor rbac.Actor, id string) ([]Rater, error) {
	_, raters, err := svc.getWritable(ctx, actor, id)
	return raters, err
}

func (svc *service) Open(ctx context.Context, actor rbac.Actor, id string) (Assessment, error) {
	a, raters, err := svc.getWritable(ctx, actor, id)
	if err != nil {
		return Assessment{}, err
	}
	if !a.IsDraft() {
		return Assessment{}, ErrNotDraft
	}
	if len(a.Questions) == 0 {
		return Assessment{}, ErrNoQuestions
	}
	var hasSelf bool
	for _, r := range raters {
		if r.Relationship == RelSelf {
			hasSelf = true
			break
		}
	}
	if !hasSelf {
		return Assessment{}, ErrNoSelfRater
	}

	now := svc.clock.Now().UTC()
	a.Status = StatusOpen
	a.OpenedAt = &now
	a.UpdatedAt = now
	updated, err := svc.save(ctx, a)
	if err != nil {
		return Assessment{}, err
	}
	for i := range raters {
		raters[i].InvitedAt = &now
		if raters[i], err = svc.repo.UpdateRater(ctx, raters[i]); err != nil {
			return Assessment{}, pkgerrors.Wrap(err, "inviting rater")
		}
	}
	svc.invite(ctx, updated, raters)
	return updated, nil
}

// save updates a and keeps its questions.
func (svc *service) save(ctx context.Context, a Assessment) (Assessment, error) {
	questions := a.Questions
	updated, err := svc.repo.UpdateAssessment(ctx, a)
	if err != nil {
		return Assessment{}, err
	}
	updated.Questions = questions
	return updated, nil
}

func checkAnswers(a Assessment, answers []Answer) error {
	questions := make(map[string]bool, len(a.Questions))
	for _, q := range a.Questions {
		questions[q.ID] = true
	}
	answered := make(map[string]bool, len(answers))
	for _, ans := range answers {
		if !questions[ans.QuestionID] {
			return fieldError("answers", fmt.Sprintf(errUnknownQuestion, ans.QuestionID))
		}
		if answered[ans.QuestionID] {
			return fieldError("answers", fmt.Sprintf(errDuplicateAnswer, ans.QuestionID))
		}
		answered[ans.QuestionID] = true
		if ans.Score < 1 || ans.Score > a.ScaleMax {
			return fieldError("answers", fmt.Sprintf(errScoreOutOfRange, a.ScaleMax))
		}
	}
	if len(answered) != len(questions) {
		return fieldError("answers", errMissingAnswers)
	}
	return nil
}

func (svc *service) SubmitResponses(ctx context.Context, actor rbac.Actor, id string, sr SubmitResponses) (Rater, error) {
	a, raters, err := svc.get(ctx, actor, id)
	if err != nil {
		return Rater{}, err
	}
	var rater *Rater
	for i := range raters {
		if raters[i].UserID == actor.ID {
			rater = &raters[i]
			break
		}
	}
	if rater == nil {
		return Rater{}, ErrNotRater
	}
	if !actor.Can(rbac.AssessmentsRespond, rbac.Resource{AgencyID: a.AgencyID, TenantID: a.TenantID, OwnerIDs: []string{rater.UserID}}) {
		return Rater{}, rbac.ErrNoGrant
	}
	if !a.IsOpen() {
		return Rater{}, ErrNotOpen
	}
	if rater.HasSubmitted() {
		return Rater{}, ErrAlreadySubmitted
	}
	if err = checkAnswers(a, sr.Answers); err != nil {
		return Rater{}, err
	}

	responses := make([]Response, 0, len(sr.Answers))
	for _, ans := range sr.Answers {
		responses = append(responses, Response{RaterID: rater.ID, QuestionID: ans.QuestionID, Score: ans.Score, Comment: ans.Comment})
	}
	now := svc.clock.Now().UTC()
	rater.Status = RaterSubmitted
	rater.SubmittedAt = &now
	return svc.repo.SaveResponses(ctx, *rater, responses)
}

func (svc *service) Close(ctx context.Context, actor rbac.Actor, id string) (Assessment, error) {
	a, _, err := svc.getWritable(ctx, actor, id)
	if err != nil {
		return Assessment{}, err
	}
	if !a.IsOpen() {
		return Assessment{}, ErrNotOpen
	}
	now := svc.clock.Now().UTC()
	a.Status = StatusClosed
	a.ClosedAt = &now
	a.UpdatedAt = now
	updated, err := svc.save(ctx, a)
	if err != nil {
		return Assessment{}, err
	}

	svc.notifier.Notify(ctx, notification.Notice{
		UserIDs: []string{a.SubjectID},
		Kind:    notification.KindAssessmentClosed,
		Title:   a.Title + " is closed",
		Body:    "Your feedback results are available.",
		Link:    "/assessments/" + a.ID + "/results",
	})
	return updated, nil
}

// getReadable returns the assessment id if actor may read its results.
// Subjects see the results of their own assessments once they are closed.
func (svc *service) getReadable(ctx context.Context, actor rbac.Actor, id string) (Assessment, error) {
	a, err := svc.repo.GetAssessment(ctx, id)
	if err != nil {
		return Assessment{}, err
	}
	if !actor.Can(rbac.ReportsRead, a.Resource()) {
		return Assessment{}, ErrNotFound
	}
	if actor.ID == a.SubjectID && !a.IsClosed() {
		return Assessment{}, ErrResultsNotVisible
	}
	return a, nil
}

func (svc *service) stats(ctx context.Context, a Assessment) (Stats, error) {
	raters, err := svc.repo.QueryRaters(ctx, a.ID)
	if err != nil {
		return Stats{}, pkgerrors.Wrap(err, "querying raters")
	}
	responses, err := svc.repo.QueryResponses(ctx, a.ID)
	if err != nil {
		return Stats{}, pkgerrors.Wrap(err, "querying responses")
	}
	return ComputeStats(a.Questions, raters, responses, svc.conf.Assessment.MinAnonymousGroupSize), nil
}

func (svc *service) Results(ctx context.Context, actor rbac.Actor, id string) (Stats, error) {
	a, err := svc.getReadable(ctx, actor, id)
	if err != nil {
		return Stats{}, err
	}
	return svc.stats(ctx, a)
}

func reportName(a Assessment) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + 'a' - 'A'
		default:
			return '-'
		}
	}, a.Title)
	name = strings.Trim(name, "-")
	if name == "" {
		name = "assessment"
	}
	return "report-" + name + ".pdf"
}

func (svc *service) GenerateReport(ctx context.Context, actor rbac.Actor, id string) (Assessment, error) {
	a, err := svc.repo.GetAssessment(ctx, id)
	if err != nil {
		return Assessment{}, err
	}
	if !actor.Can(rbac.ReportsRead, a.Resource()) {
		return Assessment{}, ErrNotFound
	}
	if !actor.Can(rbac.ReportsWrite, a.Resource()) {
		return Assessment{}, rbac.ErrNoGrant
	}
	if !a.IsClosed() {
		return Assessment{}, ErrNotClosed
	}

	var (
		subject   user.User
		raters    []Rater
		responses []Response
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		subject, err = svc.userSvc.GetByID(gctx, a.SubjectID)
		return pkgerrors.Wrap(err, "getting subject")
	})
	g.Go(func() (err error) {
		raters, err = svc.repo.QueryRaters(gctx, a.ID)
		return pkgerrors.Wrap(err, "querying raters")
	})
	g.Go(func() (err error) {
		responses, err = svc.repo.QueryResponses(gctx, a.ID)
		return pkgerrors.Wrap(err, "querying responses")
	})
	if err = g.Wait(); err != nil {
		metrics.ReportsGeneratedTotal.WithLabelValues(metrics.StatusError).Inc()
		return Assessment{}, err
	}

	now := svc.clock.Now().UTC()
	pdf, err := svc.renderer.Render(ReportData{
		Assessment:  a,
		SubjectName: subject.Name,
		Stats:       ComputeStats(a.Questions, raters, responses, svc.conf.Assessment.MinAnonymousGroupSize),
		GeneratedAt: now,
	})
	if err != nil {
		metrics.ReportsGeneratedTotal.WithLabelValues(metrics.StatusError).Inc()
		return Assessment{}, pkgerrors.Wrap(err, "rendering report")
	}
	file, err := svc.uploadSvc.Save(ctx, subject.Actor(), reportName(a), "application/pdf", pdf)
	if err != nil {
		metrics.ReportsGeneratedTotal.WithLabelValues(metrics.StatusError).Inc()
		return Assessment{}, pkgerrors.Wrap(err, "saving report")
	}
	metrics.ReportsGeneratedTotal.WithLabelValues(metrics.StatusSuccess).Inc()

	a.ReportFileID = file.ID
	a.UpdatedAt = now
	updated, err := svc.save(ctx, a)
	if err != nil {
		return Assessment{}, err
	}

	svc.notifier.Notify(ctx, notification.Notice{
		UserIDs: []string{a.SubjectID},
		Kind:    notification.KindReportReady,
		Title:   "Your report is ready: " + a.Title,
		Body:    "Your feedback report can be downloaded.",
		Link:    "/assessments/" + a.ID + "/report",
	})
	return updated, nil
}

func (svc *service) Report(ctx context.Context, actor rbac.Actor, id string) (upload.File, io.ReadCloser, error) {
	a, err := svc.getReadable(ctx, actor, id)
	if err != nil {
		return upload.File{}, nil, err
	}
	if a.ReportFileID == "" {
		return upload.File{}, nil, ErrReportNotFound
	}
	file, rc, err := svc.uploadSvc.OpenByID(ctx, a.ReportFileID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return upload.File{}, nil, ErrReportNotFound
		}
		return upload.File{}, nil, err
	}
	return file, rc, nil
}
