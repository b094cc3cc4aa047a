package inmemdb

import (
	"context"

	"github.com/trezcool/tos/core/upload"
)

type fileRepository struct {
	db *DB
}

var _ upload.Repository = (*fileRepository)(nil)

func NewFileRepository(db *DB) upload.Repository {
	return &fileRepository{db: db}
}

func (repo *fileRepository) CreateFile(_ context.Context, file upload.File) (upload.File, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	file.ID = newID()
	repo.db.files[file.ID] = &file
	return file, nil
}

func (repo *fileRepository) GetFile(_ context.Context, id string) (upload.File, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if f, ok := repo.db.files[id]; ok {
		return *f, nil
	}
	return upload.File{}, upload.ErrNotFound
}

func (repo *fileRepository) DeleteFile(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.files, id)
	for _, a := range repo.db.assessments {
		if a.ReportFileID == id {
			a.ReportFileID = ""
		}
	}
	return nil
}
