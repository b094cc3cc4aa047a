package inmemdb

import (
	"context"

	"github.com/trezcool/tos/core/assessment"
	"github.com/trezcool/tos/core/rbac"
)

type assessmentRepository struct {
	db *DB
}

var _ assessment.Repository = (*assessmentRepository)(nil)

func NewAssessmentRepository(db *DB) assessment.Repository {
	return &assessmentRepository{db: db}
}

func copyAssessment(a assessment.Assessment) assessment.Assessment {
	a.Questions = append([]assessment.Question{}, a.Questions...)
	return a
}

func sortQuestions(qs []assessment.Question) {
	sortByOrderings(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] }, nil, nil,
		func(i, j int) int { return qs[i].Position - qs[j].Position })
}

func (repo *assessmentRepository) CreateAssessment(_ context.Context, a assessment.Assessment) (assessment.Assessment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	a.ID = newID()
	a = copyAssessment(a)
	for i := range a.Questions {
		a.Questions[i].ID = newID()
	}
	sortQuestions(a.Questions)
	repo.db.assessments[a.ID] = &a
	return copyAssessment(a), nil
}

// raterIDs returns the users rating assessmentID; callers hold the lock.
func (repo *assessmentRepository) raterIDs(assessmentID string) []string {
	ids := make([]string, 0)
	for _, r := range repo.db.raters {
		if r.AssessmentID == assessmentID {
			ids = append(ids, r.UserID)
		}
	}
	return ids
}

func (repo *assessmentRepository) QueryAssessments(_ context.Context, vis rbac.Visibility, filter *assessment.QueryFilter) ([]assessment.Assessment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	as := make([]assessment.Assessment, 0)
	for _, a := range repo.db.assessments {
		res := a.Resource()
		if vis.Scope == rbac.ScopeOwn {
			res.OwnerIDs = append(res.OwnerIDs, repo.raterIDs(a.ID)...)
		}
		if !vis.Allows(res) {
			continue
		}
		if filter != nil {
			if filter.Status != "" && a.Status != filter.Status {
				continue
			}
			if filter.Kind != "" && a.Kind != filter.Kind {
				continue
			}
			if filter.SubjectID != "" && a.SubjectID != filter.SubjectID {
				continue
			}
			if filter.ProgramID != "" && a.ProgramID != filter.ProgramID {
				continue
			}
		}
		as = append(as, copyAssessment(*a))
	}
	sortByOrderings(len(as), func(i, j int) { as[i], as[j] = as[j], as[i] }, nil, nil,
		func(i, j int) int { return -cmpTimes(as[i].CreatedAt, as[j].CreatedAt) })
	return as, nil
}

func (repo *assessmentRepository) GetAssessment(_ context.Context, id string) (assessment.Assessment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if a, ok := repo.db.assessments[id]; ok {
		return copyAssessment(*a), nil
	}
	return assessment.Assessment{}, assessment.ErrNotFound
}

func (repo *assessmentRepository) UpdateAssessment(_ context.Context, a assessment.Assessment) (assessment.Assessment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	current, ok := repo.db.assessments[a.ID]
	if !ok {
		return assessment.Assessment{}, assessment.ErrNotFound
	}
	a.Questions = current.Questions
	repo.db.assessments[a.ID] = &a
	return copyAssessment(a), nil
}

func (repo *assessmentRepository) ReplaceQuestions(_ context.Context, assessmentID string, questions []assessment.Question) ([]assessment.Question, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	a, ok := repo.db.assessments[assessmentID]
	if !ok {
		return nil, assessment.ErrNotFound
	}
	qs := append([]assessment.Question{}, questions...)
	for i := range qs {
		qs[i].ID = newID()
	}
	sortQuestions(qs)
	a.Questions = qs
	return append([]assessment.Question{}, qs...), nil
}

func (repo *assessmentRepository) CreateRaters(_ context.Context, raters []assessment.Rater) ([]assessment.Rater, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	created := make([]assessment.Rater, 0, len(raters))
	for _, r := range raters {
		r.ID = newID()
		rater := r
		repo.db.raters[r.ID] = &rater
		created = append(created, r)
	}
	return created, nil
}

func (repo *assessmentRepository) QueryRaters(_ context.Context, assessmentID string) ([]assessment.Rater, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	raters := make([]assessment.Rater, 0)
	for _, r := range repo.db.raters {
		if r.AssessmentID == assessmentID {
			raters = append(raters, *r)
		}
	}
	sortByOrderings(len(raters), func(i, j int) { raters[i], raters[j] = raters[j], raters[i] }, nil, nil,
		func(i, j int) int {
			if c := cmpStrings(raters[i].Relationship, raters[j].Relationship); c != 0 {
				return c
			}
			return cmpStrings(raters[i].ID, raters[j].ID)
		})
	return raters, nil
}

func (repo *assessmentRepository) UpdateRater(_ context.Context, rater assessment.Rater) (assessment.Rater, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.raters[rater.ID]; !ok {
		return assessment.Rater{}, assessment.ErrNotFound
	}
	repo.db.raters[rater.ID] = &rater
	return rater, nil
}

func (repo *assessmentRepository) SaveResponses(_ context.Context, rater assessment.Rater, responses []assessment.Response) (assessment.Rater, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	current, ok := repo.db.raters[rater.ID]
	if !ok {
		return assessment.Rater{}, assessment.ErrNotFound
	}
	if a, ok := repo.db.assessments[current.AssessmentID]; !ok || !a.IsOpen() {
		return assessment.Rater{}, assessment.ErrNotOpen
	}
	if current.HasSubmitted() {
		return assessment.Rater{}, assessment.ErrAlreadySubmitted
	}
	repo.db.responses[rater.ID] = append([]assessment.Response{}, responses...)
	repo.db.raters[rater.ID] = &rater
	return rater, nil
}

func (repo *assessmentRepository) QueryResponses(_ context.Context, assessmentID string) ([]assessment.Response, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	responses := make([]assessment.Response, 0)
	for raterID, resps := range repo.db.responses {
		if r, ok := repo.db.raters[raterID]; ok && r.AssessmentID == assessmentID {
			responses = append(responses, resps...)
		}
	}
	return responses, nil
}
