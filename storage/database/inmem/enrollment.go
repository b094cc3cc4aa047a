package inmemdb

import (
	"context"

	"github.com/trezcool/tos/core/enrollment"
	"github.com/trezcool/tos/core/rbac"
)

type enrollmentRepository struct {
	db *DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(db *DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

func copyEnrollment(e enrollment.Enrollment) enrollment.Enrollment {
	e.CompletedModules = append([]string{}, e.CompletedModules...)
	return e
}

func (repo *enrollmentRepository) CreateEnrollment(_ context.Context, enr enrollment.Enrollment) (enrollment.Enrollment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	enr.ID = newID()
	enr = copyEnrollment(enr)
	repo.db.enrollments[enr.ID] = &enr
	return copyEnrollment(enr), nil
}

func (repo *enrollmentRepository) QueryEnrollments(_ context.Context, vis rbac.Visibility, filter *enrollment.QueryFilter) ([]enrollment.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	enrs := make([]enrollment.Enrollment, 0)
	for _, e := range repo.db.enrollments {
		if !vis.Allows(e.Resource()) {
			continue
		}
		if filter != nil {
			if filter.ProgramID != "" && e.ProgramID != filter.ProgramID {
				continue
			}
			if filter.UserID != "" && e.UserID != filter.UserID {
				continue
			}
			if filter.Status != "" && e.Status != filter.Status {
				continue
			}
		}
		enrs = append(enrs, copyEnrollment(*e))
	}
	sortByOrderings(len(enrs), func(i, j int) { enrs[i], enrs[j] = enrs[j], enrs[i] }, nil, nil,
		func(i, j int) int { return -cmpTimes(enrs[i].EnrolledAt, enrs[j].EnrolledAt) })
	return enrs, nil
}

func (repo *enrollmentRepository) GetEnrollment(_ context.Context, id string) (enrollment.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if e, ok := repo.db.enrollments[id]; ok {
		return copyEnrollment(*e), nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) UpdateEnrollment(_ context.Context, enr enrollment.Enrollment) (enrollment.Enrollment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.enrollments[enr.ID]; !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	enr = copyEnrollment(enr)
	repo.db.enrollments[enr.ID] = &enr
	return copyEnrollment(enr), nil
}

func (repo *enrollmentRepository) EnrollmentExists(_ context.Context, programID, userID string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, e := range repo.db.enrollments {
		if e.ProgramID == programID && e.UserID == userID && e.Status != enrollment.StatusWithdrawn {
			return true, nil
		}
	}
	return false, nil
}
