package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tos/core/program"
	"github.com/trezcool/tos/core/rbac"
)

type programRow struct {
	ID          string      `db:"id"`
	AgencyID    string      `db:"agency_id"`
	TenantID    string      `db:"tenant_id"`
	Title       string      `db:"title"`
	Description string      `db:"description"`
	Status      string      `db:"status"`
	CreatedBy   null.String `db:"created_by"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
	PublishedAt null.Time   `db:"published_at"`
}

func newProgramRow(p program.Program) programRow {
	return programRow{
		ID:          p.ID,
		AgencyID:    p.AgencyID,
		TenantID:    p.TenantID,
		Title:       p.Title,
		Description: p.Description,
		Status:      p.Status,
		CreatedBy:   nullString(p.CreatedBy),
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
		PublishedAt: nullTime(p.PublishedAt),
	}
}

func (r programRow) program() program.Program {
	return program.Program{
		ID:          r.ID,
		AgencyID:    r.AgencyID,
		TenantID:    r.TenantID,
		Title:       r.Title,
		Description: r.Description,
		Status:      r.Status,
		CreatedBy:   r.CreatedBy.String,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
		PublishedAt: timePtr(r.PublishedAt),
	}
}

const (
	programColumns = "id, agency_id, tenant_id, title, description, status, created_by, created_at, updated_at, published_at"
	moduleColumns  = "id, program_id, title, content, position, duration_minutes"
)

type moduleRow struct {
	ID              string `db:"id"`
	ProgramID       string `db:"program_id"`
	Title           string `db:"title"`
	Content         string `db:"content"`
	Position        int    `db:"position"`
	DurationMinutes int    `db:"duration_minutes"`
}

func (r moduleRow) module() program.Module {
	return program.Module(r)
}

type programRepository struct {
	db *sqlx.DB
}

var _ program.Repository = (*programRepository)(nil)

func NewProgramRepository(db *sqlx.DB) program.Repository {
	return &programRepository{db: db}
}

func (repo *programRepository) CreateProgram(ctx context.Context, prog program.Program) (program.Program, error) {
	prog.ID = newID()
	prog.Modules = nil
	row := newProgramRow(prog)
	_, err := repo.db.NamedExecContext(ctx,
		"INSERT INTO programs ("+programColumns+") VALUES "+
			"(:id, :agency_id, :tenant_id, :title, :description, :status, :created_by, :created_at, :updated_at, :published_at)",
		row)
	if err != nil {
		return program.Program{}, errors.Wrap(err, "inserting program")
	}
	return row.program(), nil
}

func (repo *programRepository) QueryPrograms(ctx context.Context, vis rbac.Visibility, filter *program.QueryFilter) ([]program.Program, error) {
	var q query
	q.visible(vis, "agency_id", "tenant_id", "created_by = ?")
	if filter != nil {
		if filter.Search != "" {
			val := likePattern(filter.Search)
			q.where("(title ILIKE ? OR description ILIKE ?)", val, val)
		}
		if filter.Status != "" {
			q.where("status = ?", filter.Status)
		}
		if filter.TenantID != "" {
			q.where("tenant_id::text = ?", filter.TenantID)
		}
	}

	var rows []programRow
	if err := q.selectRows(ctx, repo.db, &rows, "SELECT "+programColumns+" FROM programs", "created_at DESC"); err != nil {
		return nil, errors.Wrap(err, "querying programs")
	}
	progs := make([]program.Program, 0, len(rows))
	for _, r := range rows {
		progs = append(progs, r.program())
	}
	return progs, nil
}

func (repo *programRepository) GetProgram(ctx context.Context, id string) (program.Program, error) {
	if !validID(id) {
		return program.Program{}, program.ErrNotFound
	}
	var row programRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+programColumns+" FROM programs WHERE id = $1", id); err != nil {
		return program.Program{}, trapNoRowsErr(err, program.ErrNotFound, "getting program")
	}

	var mods []moduleRow
	err := repo.db.SelectContext(ctx, &mods,
		"SELECT "+moduleColumns+" FROM program_modules WHERE program_id = $1 ORDER BY position", id)
	if err != nil {
		return program.Program{}, errors.Wrap(err, "querying modules")
	}
	prog := row.program()
	prog.Modules = make([]program.Module, 0, len(mods))
	for _, m := range mods {
		prog.Modules = append(prog.Modules, m.module())
	}
	return prog, nil
}

func (repo *programRepository) UpdateProgram(ctx context.Context, prog program.Program) (program.Program, error) {
	// modules are managed separately
	prog.Modules = nil
	row := newProgramRow(prog)
	res, err := repo.db.NamedExecContext(ctx,
		`UPDATE programs SET title = :title, description = :description, status = :status,
		updated_at = :updated_at, published_at = :published_at WHERE id = :id`,
		row)
	if err != nil {
		return program.Program{}, errors.Wrap(err, "updating program")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return program.Program{}, program.ErrNotFound
	}
	return row.program(), nil
}

// DeleteProgram deletes the program; its modules and enrollments cascade.
func (repo *programRepository) DeleteProgram(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, "DELETE FROM programs WHERE id = $1", id)
	return errors.Wrap(err, "deleting program")
}

func (repo *programRepository) CreateModule(ctx context.Context, mod program.Module) (program.Module, error) {
	mod.ID = newID()
	_, err := repo.db.NamedExecContext(ctx,
		"INSERT INTO program_modules ("+moduleColumns+") VALUES (:id, :program_id, :title, :content, :position, :duration_minutes)",
		moduleRow(mod))
	if err != nil {
		return program.Module{}, errors.Wrap(err, "inserting module")
	}
	return mod, nil
}

func (repo *programRepository) UpdateModule(ctx context.Context, mod program.Module) (program.Module, error) {
	res, err := repo.db.NamedExecContext(ctx,
		`UPDATE program_modules SET title = :title, content = :content, position = :position,
		duration_minutes = :duration_minutes WHERE id = :id AND program_id = :program_id`,
		moduleRow(mod))
	if err != nil {
		return program.Module{}, errors.Wrap(err, "updating module")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return program.Module{}, program.ErrModuleNotFound
	}
	return mod, nil
}

func (repo *programRepository) DeleteModule(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, "DELETE FROM program_modules WHERE id = $1", id)
	return errors.Wrap(err, "deleting module")
}

func (repo *programRepository) SetModulePositions(ctx context.Context, programID string, ids []string) error {
	if !validID(programID) {
		return program.ErrNotFound
	}
	positions := make([]int64, 0, len(ids))
	for i := range ids {
		positions = append(positions, int64(i+1))
	}
	_, err := repo.db.ExecContext(ctx,
		`UPDATE program_modules m SET position = p.position
		FROM UNNEST($2::uuid[], $3::int[]) AS p (id, position)
		WHERE m.id = p.id AND m.program_id = $1`,
		programID, pq.Array(ids), pq.Array(positions))
	return errors.Wrap(err, "setting module positions")
}
