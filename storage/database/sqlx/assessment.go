package sqlxrepos

import (
	"context"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tos/core/assessment"
	"github.com/trezcool/tos/core/rbac"
)

type assessmentRow struct {
	ID           string      `db:"id"`
	AgencyID     string      `db:"agency_id"`
	TenantID     string      `db:"tenant_id"`
	ProgramID    null.String `db:"program_id"`
	SubjectID    string      `db:"subject_id"`
	Kind         string      `db:"kind"`
	Title        string      `db:"title"`
	Description  string      `db:"description"`
	Status       string      `db:"status"`
	ScaleMax     int         `db:"scale_max"`
	DueAt        null.Time   `db:"due_at"`
	CreatedBy    null.String `db:"created_by"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	OpenedAt     null.Time   `db:"opened_at"`
	ClosedAt     null.Time   `db:"closed_at"`
	ReportFileID null.String `db:"report_file_id"`
}

func newAssessmentRow(a assessment.Assessment) assessmentRow {
	return assessmentRow{
		ID:           a.ID,
		AgencyID:     a.AgencyID,
		TenantID:     a.TenantID,
		ProgramID:    nullString(a.ProgramID),
		SubjectID:    a.SubjectID,
		Kind:         a.Kind,
		Title:        a.Title,
		Description:  a.Description,
		Status:       a.Status,
		ScaleMax:     a.ScaleMax,
		DueAt:        nullTime(a.DueAt),
		CreatedBy:    nullString(a.CreatedBy),
		CreatedAt:    a.CreatedAt.UTC(),
		UpdatedAt:    a.UpdatedAt.UTC(),
		OpenedAt:     nullTime(a.OpenedAt),
		ClosedAt:     nullTime(a.ClosedAt),
		ReportFileID: nullString(a.ReportFileID),
	}
}

func (r assessmentRow) assessment() assessment.Assessment {
	return assessment.Assessment{
		ID:           r.ID,
		AgencyID:     r.AgencyID,
		TenantID:     r.TenantID,
		ProgramID:    r.ProgramID.String,
		SubjectID:    r.SubjectID,
		Kind:         r.Kind,
		Title:        r.Title,
		Description:  r.Description,
		Status:       r.Status,
		ScaleMax:     r.ScaleMax,
		DueAt:        timePtr(r.DueAt),
		Questions:    []assessment.Question{},
		CreatedBy:    r.CreatedBy.String,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		OpenedAt:     timePtr(r.OpenedAt),
		ClosedAt:     timePtr(r.ClosedAt),
		ReportFileID: r.ReportFileID.String,
	}
}

type questionRow struct {
	ID           string `db:"id"`
	AssessmentID string `db:"assessment_id"`
	Text         string `db:"text"`
	Competency   string `db:"competency"`
	Position     int    `db:"position"`
}

func (r questionRow) question() assessment.Question {
	return assessment.Question{ID: r.ID, Text: r.Text, Competency: r.Competency, Position: r.Position}
}

type raterRow struct {
	ID           string    `db:"id"`
	AssessmentID string    `db:"assessment_id"`
	UserID       string    `db:"user_id"`
	Relationship string    `db:"relationship"`
	Status       string    `db:"status"`
	InvitedAt    null.Time `db:"invited_at"`
	SubmittedAt  null.Time `db:"submitted_at"`
}

func newRaterRow(r assessment.Rater) raterRow {
	return raterRow{
		ID:           r.ID,
		AssessmentID: r.AssessmentID,
		UserID:       r.UserID,
		Relationship: r.Relationship,
		Status:       r.Status,
		InvitedAt:    nullTime(r.InvitedAt),
		SubmittedAt:  nullTime(r.SubmittedAt),
	}
}

func (r raterRow) rater() assessment.Rater {
	return assessment.Rater{
		ID:           r.ID,
		AssessmentID: r.AssessmentID,
		UserID:       r.UserID,
		Relationship: r.Relationship,
		Status:       r.Status,
		InvitedAt:    timePtr(r.InvitedAt),
		SubmittedAt:  timePtr(r.SubmittedAt),
	}
}

type responseRow struct {
	RaterID    string `db:"rater_id"`
	QuestionID string `db:"question_id"`
	Score      int    `db:"score"`
	Comment    string `db:"comment"`
}

const (
	assessmentColumns = "id, agency_id, tenant_id, program_id, subject_id, kind, title, description, status, scale_max, " +
		"due_at, created_by, created_at, updated_at, opened_at, closed_at, report_file_id"
	questionColumns = "id, assessment_id, text, competency, position"
	raterColumns    = "id, assessment_id, user_id, relationship, status, invited_at, submitted_at"
)

type assessmentRepository struct {
	db *sqlx.DB
}

var _ assessment.Repository = (*assessmentRepository)(nil)

func NewAssessmentRepository(db *sqlx.DB) assessment.Repository {
	return &assessmentRepository{db: db}
}

func insertQuestions(ctx context.Context, exec sqlx.ExtContext, assessmentID string, questions []assessment.Question) ([]assessment.Question, error) {
	if len(questions) == 0 {
		return []assessment.Question{}, nil
	}
	rows := make([]questionRow, 0, len(questions))
	qs := make([]assessment.Question, 0, len(questions))
	for _, q := range questions {
		q.ID = newID()
		qs = append(qs, q)
		rows = append(rows, questionRow{
			ID:           q.ID,
			AssessmentID: assessmentID,
			Text:         q.Text,
			Competency:   q.Competency,
			Position:     q.Position,
		})
	}
	_, err := sqlx.NamedExecContext(ctx, exec,
		"INSERT INTO assessment_questions ("+questionColumns+") VALUES (:id, :assessment_id, :text, :competency, :position)",
		rows)
	if err != nil {
		return nil, errors.Wrap(err, "inserting questions")
	}
	sortQuestions(qs)
	return qs, nil
}

func sortQuestions(qs []assessment.Question) {
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Position < qs[j].Position })
}

func (repo *assessmentRepository) CreateAssessment(ctx context.Context, a assessment.Assessment) (assessment.Assessment, error) {
	a.ID = newID()
	row := newAssessmentRow(a)
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx,
			"INSERT INTO assessments ("+assessmentColumns+") VALUES "+
				"(:id, :agency_id, :tenant_id, :program_id, :subject_id, :kind, :title, :description, :status, :scale_max, "+
				":due_at, :created_by, :created_at, :updated_at, :opened_at, :closed_at, :report_file_id)",
			row)
		if err != nil {
			return errors.Wrap(err, "inserting assessment")
		}
		a.Questions, err = insertQuestions(ctx, tx, a.ID, a.Questions)
		return err
	})
	if err != nil {
		return assessment.Assessment{}, err
	}
	created := row.assessment()
	created.Questions = a.Questions
	return created, nil
}

// questionsOf returns the questions of the assessments of ids, by assessment.
func (repo *assessmentRepository) questionsOf(ctx context.Context, ids []string) (map[string][]assessment.Question, error) {
	qs := make(map[string][]assessment.Question, len(ids))
	if len(ids) == 0 {
		return qs, nil
	}
	var rows []questionRow
	err := repo.db.SelectContext(ctx, &rows,
		"SELECT "+questionColumns+" FROM assessment_questions WHERE assessment_id::text = ANY($1) ORDER BY position",
		pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "querying questions")
	}
	for _, r := range rows {
		qs[r.AssessmentID] = append(qs[r.AssessmentID], r.question())
	}
	return qs, nil
}

func (repo *assessmentRepository) QueryAssessments(ctx context.Context, vis rbac.Visibility, filter *assessment.QueryFilter) ([]assessment.Assessment, error) {
	var q query
	q.visible(vis, "agency_id", "tenant_id",
		"subject_id = ?",
		"EXISTS (SELECT 1 FROM assessment_raters r WHERE r.assessment_id = assessments.id AND r.user_id = ?)")
	if filter != nil {
		if filter.Status != "" {
			q.where("status = ?", filter.Status)
		}
		if filter.Kind != "" {
			q.where("kind = ?", filter.Kind)
		}
		if filter.SubjectID != "" {
			q.where("subject_id::text = ?", filter.SubjectID)
		}
		if filter.ProgramID != "" {
			q.where("program_id::text = ?", filter.ProgramID)
		}
	}

	var rows []assessmentRow
	if err := q.selectRows(ctx, repo.db, &rows, "SELECT "+assessmentColumns+" FROM assessments", "created_at DESC"); err != nil {
		return nil, errors.Wrap(err, "querying assessments")
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	questions, err := repo.questionsOf(ctx, ids)
	if err != nil {
		return nil, err
	}
	as := make([]assessment.Assessment, 0, len(rows))
	for _, r := range rows {
		a := r.assessment()
		if qs, ok := questions[a.ID]; ok {
			a.Questions = qs
		}
		as = append(as, a)
	}
	return as, nil
}

func (repo *assessmentRepository) GetAssessment(ctx context.Context, id string) (assessment.Assessment, error) {
	if !validID(id) {
		return assessment.Assessment{}, assessment.ErrNotFound
	}
	var row assessmentRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+assessmentColumns+" FROM assessments WHERE id = $1", id); err != nil {
		return assessment.Assessment{}, trapNoRowsErr(err, assessment.ErrNotFound, "getting assessment")
	}
	questions, err := repo.questionsOf(ctx, []string{id})
	if err != nil {
		return assessment.Assessment{}, err
	}
	a := row.assessment()
	if qs, ok := questions[id]; ok {
		a.Questions = qs
	}
	return a, nil
}

func (repo *assessmentRepository) UpdateAssessment(ctx context.Context, a assessment.Assessment) (assessment.Assessment, error) {
	row := newAssessmentRow(a)
	res, err := repo.db.NamedExecContext(ctx,
		`UPDATE assessments SET title = :title, description = :description, status = :status, scale_max = :scale_max,
		due_at = :due_at, updated_at = :updated_at, opened_at = :opened_at, closed_at = :closed_at,
		report_file_id = :report_file_id WHERE id = :id`,
		row)
	if err != nil {
		return assessment.Assessment{}, errors.Wrap(err, "updating assessment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return assessment.Assessment{}, assessment.ErrNotFound
	}
	return repo.GetAssessment(ctx, a.ID)
}

func (repo *assessmentRepository) ReplaceQuestions(ctx context.Context, assessmentID string, questions []assessment.Question) ([]assessment.Question, error) {
	if !validID(assessmentID) {
		return nil, assessment.ErrNotFound
	}
	var qs []assessment.Question
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM assessment_questions WHERE assessment_id = $1", assessmentID); err != nil {
			return errors.Wrap(err, "deleting questions")
		}
		var err error
		qs, err = insertQuestions(ctx, tx, assessmentID, questions)
		return err
	})
	return qs, err
}

func (repo *assessmentRepository) CreateRaters(ctx context.Context, raters []assessment.Rater) ([]assessment.Rater, error) {
	if len(raters) == 0 {
		return []assessment.Rater{}, nil
	}
	rows := make([]raterRow, 0, len(raters))
	created := make([]assessment.Rater, 0, len(raters))
	for _, r := range raters {
		r.ID = newID()
		rows = append(rows, newRaterRow(r))
		created = append(created, r)
	}
	_, err := repo.db.NamedExecContext(ctx,
		"INSERT INTO assessment_raters ("+raterColumns+") VALUES "+
			"(:id, :assessment_id, :user_id, :relationship, :status, :invited_at, :submitted_at)",
		rows)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, assessment.ErrDuplicateRater
		}
		return nil, errors.Wrap(err, "inserting raters")
	}
	return created, nil
}

func (repo *assessmentRepository) QueryRaters(ctx context.Context, assessmentID string) ([]assessment.Rater, error) {
	if !validID(assessmentID) {
		return []assessment.Rater{}, nil
	}
	var rows []raterRow
	err := repo.db.SelectContext(ctx, &rows,
		"SELECT "+raterColumns+" FROM assessment_raters WHERE assessment_id = $1 ORDER BY relationship, id", assessmentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying raters")
	}
	raters := make([]assessment.Rater, 0, len(rows))
	for _, r := range rows {
		raters = append(raters, r.rater())
	}
	return raters, nil
}

func updateRater(ctx context.Context, exec sqlx.ExtContext, rater assessment.Rater) error {
	res, err := sqlx.NamedExecContext(ctx, exec,
		"UPDATE assessment_raters SET status = :status, invited_at = :invited_at, submitted_at = :submitted_at WHERE id = :id",
		newRaterRow(rater))
	if err != nil {
		return errors.Wrap(err, "updating rater")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return assessment.ErrNotFound
	}
	return nil
}

func (repo *assessmentRepository) UpdateRater(ctx context.Context, rater assessment.Rater) (assessment.Rater, error) {
	if err := updateRater(ctx, repo.db, rater); err != nil {
		return assessment.Rater{}, err
	}
	return rater, nil
}

// lockOpenAssessment locks the assessment of raterID until the end of tx; it must still be open.
func lockOpenAssessment(ctx context.Context, tx *sqlx.Tx, raterID string) error {
	var status string
	err := tx.GetContext(ctx, &status,
		`SELECT a.status FROM assessments a JOIN assessment_raters r ON r.assessment_id = a.id
		WHERE r.id = $1 FOR UPDATE OF a`,
		raterID)
	if err != nil {
		return trapNoRowsErr(err, assessment.ErrNotFound, "locking assessment")
	}
	if status != assessment.StatusOpen {
		return assessment.ErrNotOpen
	}
	return nil
}

func (repo *assessmentRepository) SaveResponses(ctx context.Context, rater assessment.Rater, responses []assessment.Response) (assessment.Rater, error) {
	if !validID(rater.ID) {
		return assessment.Rater{}, assessment.ErrNotFound
	}
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if err := lockOpenAssessment(ctx, tx, rater.ID); err != nil {
			return err
		}
		res, err := tx.NamedExecContext(ctx,
			`UPDATE assessment_raters SET status = :status, invited_at = :invited_at, submitted_at = :submitted_at
			WHERE id = :id AND status = '`+assessment.RaterPending+`'`,
			newRaterRow(rater))
		if err != nil {
			return errors.Wrap(err, "updating rater")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return assessment.ErrAlreadySubmitted
		}
		if len(responses) == 0 {
			return nil
		}
		rows := make([]responseRow, 0, len(responses))
		for _, resp := range responses {
			rows = append(rows, responseRow{RaterID: rater.ID, QuestionID: resp.QuestionID, Score: resp.Score, Comment: resp.Comment})
		}
		_, err = tx.NamedExecContext(ctx,
			"INSERT INTO assessment_responses (rater_id, question_id, score, comment) VALUES (:rater_id, :question_id, :score, :comment)",
			rows)
		return errors.Wrap(err, "inserting responses")
	})
	if err != nil {
		return assessment.Rater{}, err
	}
	return rater, nil
}

func (repo *assessmentRepository) QueryResponses(ctx context.Context, assessmentID string) ([]assessment.Response, error) {
	if !validID(assessmentID) {
		return []assessment.Response{}, nil
	}
	var rows []responseRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT resp.rater_id, resp.question_id, resp.score, resp.comment
		FROM assessment_responses resp JOIN assessment_raters r ON r.id = resp.rater_id
		WHERE r.assessment_id = $1`,
		assessmentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying responses")
	}
	responses := make([]assessment.Response, 0, len(rows))
	for _, r := range rows {
		responses = append(responses, assessment.Response(r))
	}
	return responses, nil
}
