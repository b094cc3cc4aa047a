package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tos/core/enrollment"
	"github.com/trezcool/tos/core/rbac"
)

type enrollmentRow struct {
	ID               string         `db:"id"`
	ProgramID        string         `db:"program_id"`
	UserID           string         `db:"user_id"`
	AgencyID         string         `db:"agency_id"`
	TenantID         string         `db:"tenant_id"`
	Status           string         `db:"status"`
	EnrolledAt       time.Time      `db:"enrolled_at"`
	CompletedAt      null.Time      `db:"completed_at"`
	CompletedModules pq.StringArray `db:"completed_modules"`
}

func newEnrollmentRow(e enrollment.Enrollment) enrollmentRow {
	modules := e.CompletedModules
	if modules == nil {
		modules = []string{}
	}
	return enrollmentRow{
		ID:               e.ID,
		ProgramID:        e.ProgramID,
		UserID:           e.UserID,
		AgencyID:         e.AgencyID,
		TenantID:         e.TenantID,
		Status:           e.Status,
		EnrolledAt:       e.EnrolledAt.UTC(),
		CompletedAt:      nullTime(e.CompletedAt),
		CompletedModules: modules,
	}
}

func (r enrollmentRow) enrollment() enrollment.Enrollment {
	e := enrollment.Enrollment{
		ID:               r.ID,
		ProgramID:        r.ProgramID,
		UserID:           r.UserID,
		AgencyID:         r.AgencyID,
		TenantID:         r.TenantID,
		Status:           r.Status,
		EnrolledAt:       r.EnrolledAt.UTC(),
		CompletedAt:      timePtr(r.CompletedAt),
		CompletedModules: []string(r.CompletedModules),
	}
	if e.CompletedModules == nil {
		e.CompletedModules = []string{}
	}
	return e
}

const enrollmentColumns = "id, program_id, user_id, agency_id, tenant_id, status, enrolled_at, completed_at, completed_modules"

type enrollmentRepository struct {
	db *sqlx.DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(db *sqlx.DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

func (repo *enrollmentRepository) CreateEnrollment(ctx context.Context, enr enrollment.Enrollment) (enrollment.Enrollment, error) {
	enr.ID = newID()
	row := newEnrollmentRow(enr)
	_, err := repo.db.NamedExecContext(ctx,
		"INSERT INTO enrollments ("+enrollmentColumns+") VALUES "+
			"(:id, :program_id, :user_id, :agency_id, :tenant_id, :status, :enrolled_at, :completed_at, :completed_modules)",
		row)
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return row.enrollment(), nil
}

func (repo *enrollmentRepository) QueryEnrollments(ctx context.Context, vis rbac.Visibility, filter *enrollment.QueryFilter) ([]enrollment.Enrollment, error) {
	var q query
	q.visible(vis, "agency_id", "tenant_id", "user_id = ?")
	if filter != nil {
		if filter.ProgramID != "" {
			q.where("program_id::text = ?", filter.ProgramID)
		}
		if filter.UserID != "" {
			q.where("user_id::text = ?", filter.UserID)
		}
		if filter.Status != "" {
			q.where("status = ?", filter.Status)
		}
	}

	var rows []enrollmentRow
	if err := q.selectRows(ctx, repo.db, &rows, "SELECT "+enrollmentColumns+" FROM enrollments", "enrolled_at DESC"); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	enrs := make([]enrollment.Enrollment, 0, len(rows))
	for _, r := range rows {
		enrs = append(enrs, r.enrollment())
	}
	return enrs, nil
}

func (repo *enrollmentRepository) GetEnrollment(ctx context.Context, id string) (enrollment.Enrollment, error) {
	if !validID(id) {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	var row enrollmentRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+enrollmentColumns+" FROM enrollments WHERE id = $1", id); err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.ErrNotFound, "getting enrollment")
	}
	return row.enrollment(), nil
}

func (repo *enrollmentRepository) UpdateEnrollment(ctx context.Context, enr enrollment.Enrollment) (enrollment.Enrollment, error) {
	row := newEnrollmentRow(enr)
	res, err := repo.db.NamedExecContext(ctx,
		`UPDATE enrollments SET status = :status, completed_at = :completed_at,
		completed_modules = :completed_modules WHERE id = :id`,
		row)
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	return row.enrollment(), nil
}

func (repo *enrollmentRepository) EnrollmentExists(ctx context.Context, programID, userID string) (bool, error) {
	if !validID(programID) || !validID(userID) {
		return false, nil
	}
	var exists bool
	err := repo.db.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM enrollments WHERE program_id = $1 AND user_id = $2 AND status <> $3)",
		programID, userID, enrollment.StatusWithdrawn)
	return exists, errors.Wrap(err, "checking enrollment")
}
