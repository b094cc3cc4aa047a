package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tos/core/upload"
)

type fileRow struct {
	ID          string      `db:"id"`
	AgencyID    string      `db:"agency_id"`
	TenantID    null.String `db:"tenant_id"`
	OwnerID     string      `db:"owner_id"`
	Name        string      `db:"name"`
	ContentType string      `db:"content_type"`
	Size        int64       `db:"size"`
	Backend     string      `db:"backend"`
	Key         string      `db:"key"`
	CreatedAt   time.Time   `db:"created_at"`
}

func (r fileRow) file() upload.File {
	return upload.File{
		ID:          r.ID,
		AgencyID:    r.AgencyID,
		TenantID:    r.TenantID.String,
		OwnerID:     r.OwnerID,
		Name:        r.Name,
		ContentType: r.ContentType,
		Size:        r.Size,
		Backend:     r.Backend,
		Key:         r.Key,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

const fileColumns = "id, agency_id, tenant_id, owner_id, name, content_type, size, backend, key, created_at"

type fileRepository struct {
	db *sqlx.DB
}

var _ upload.Repository = (*fileRepository)(nil)

func NewFileRepository(db *sqlx.DB) upload.Repository {
	return &fileRepository{db: db}
}

func (repo *fileRepository) CreateFile(ctx context.Context, file upload.File) (upload.File, error) {
	file.ID = newID()
	row := fileRow{
		ID:          file.ID,
		AgencyID:    file.AgencyID,
		TenantID:    nullString(file.TenantID),
		OwnerID:     file.OwnerID,
		Name:        file.Name,
		ContentType: file.ContentType,
		Size:        file.Size,
		Backend:     file.Backend,
		Key:         file.Key,
		CreatedAt:   file.CreatedAt.UTC(),
	}
	_, err := repo.db.NamedExecContext(ctx,
		"INSERT INTO files ("+fileColumns+") VALUES "+
			"(:id, :agency_id, :tenant_id, :owner_id, :name, :content_type, :size, :backend, :key, :created_at)",
		row)
	if err != nil {
		return upload.File{}, errors.Wrap(err, "inserting file")
	}
	return row.file(), nil
}

func (repo *fileRepository) GetFile(ctx context.Context, id string) (upload.File, error) {
	if !validID(id) {
		return upload.File{}, upload.ErrNotFound
	}
	var row fileRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+fileColumns+" FROM files WHERE id = $1", id); err != nil {
		return upload.File{}, trapNoRowsErr(err, upload.ErrNotFound, "getting file")
	}
	return row.file(), nil
}

// DeleteFile deletes the file; reports referencing it are unset.
func (repo *fileRepository) DeleteFile(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, "DELETE FROM files WHERE id = $1", id)
	return errors.Wrap(err, "deleting file")
}
