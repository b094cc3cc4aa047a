package upload_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/rbac"
	"github.com/trezcool/tos/core/upload"
	"github.com/trezcool/tos/tests"
)

const csvData = "name,score\nada,5\nbob,4\n"

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name string
		file string
		data []byte
		want string
	}{
		{name: "csv", file: "scores.CSV", data: []byte(csvData), want: "text/csv"},
		{name: "plain text", file: "notes.txt", data: []byte("hello"), want: "text/plain"},
		{name: "pdf", file: "report.pdf", data: []byte("%PDF-1.4\n%âãÏÓ\n"), want: "application/pdf"},
		{name: "png", file: "logo.png", data: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), want: "image/png"},
		{name: "docx is a zip", file: "plan.docx", data: []byte("PK\x03\x04\x14\x00\x06\x00"), want: "application/zip"},
		{name: "binary", file: "a.bin", data: []byte{0x00, 0x01, 0x02, 0x03}, want: "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, upload.DetectContentType(tt.file, tt.data))
		})
	}
}

func TestService_Upload(t *testing.T) {
	env := testutil.NewTestEnv(t)
	ctx := context.Background()
	agency := env.CreateAgency(t, "Acme")
	tnt := env.CreateTenant(t, agency.ID, "Globex")
	ada := env.CreateUser(t, agency.ID, tnt.ID, "ada", rbac.RoleLearner).Actor()
	bob := env.CreateUser(t, agency.ID, tnt.ID, "bob", rbac.RoleLearner).Actor()
	facilitator := env.CreateUser(t, agency.ID, tnt.ID, "fiona", rbac.RoleFacilitator).Actor()
	admin := env.CreateUser(t, agency.ID, tnt.ID, "tina", rbac.RoleTenantAdmin).Actor()

	file, err := env.UploadSvc.Upload(ctx, ada, "../../etc/scores.csv", strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, "scores.csv", file.Name)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.EqualValues(t, len(csvData), file.Size)
	assert.Equal(t, ada.ID, file.OwnerID)
	assert.Equal(t, tnt.ID, file.TenantID)
	assert.Equal(t, "local", file.Backend)
	assert.Regexp(t, `^`+tnt.ID+`/2024/03/[0-9a-f-]{36}\.csv$`, file.Key)

	got, rc, err := env.UploadSvc.Open(ctx, facilitator, file.ID)
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, csvData, string(content))
	assert.Equal(t, file.ID, got.ID)

	_, err = env.UploadSvc.Get(ctx, bob, file.ID)
	assert.ErrorIs(t, err, upload.ErrNotFound)

	assert.ErrorIs(t, env.UploadSvc.Delete(ctx, facilitator, file.ID), rbac.ErrNoGrant)
	require.NoError(t, env.UploadSvc.Delete(ctx, admin, file.ID))
	_, err = env.UploadSvc.Get(ctx, ada, file.ID)
	assert.ErrorIs(t, err, upload.ErrNotFound)
	_, err = env.Storage.Get(ctx, file.Key)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestService_UploadRejections(t *testing.T) {
	env := testutil.NewTestEnv(t)
	ctx := context.Background()
	agency := env.CreateAgency(t, "Acme")
	tnt := env.CreateTenant(t, agency.ID, "Globex")
	ada := env.CreateUser(t, agency.ID, tnt.ID, "ada", rbac.RoleLearner).Actor()
	root := env.CreateUser(t, "", "", "root", rbac.RolePlatformAdmin).Actor()

	_, err := env.UploadSvc.Upload(ctx, ada, "a.bin", bytes.NewReader([]byte{0x00, 0x01, 0x02, 0x03}))
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "file", verr.Fields[0].Field)

	// zip archives are accepted as office documents only
	zipData := []byte("PK\x03\x04\x14\x00\x06\x00")
	_, err = env.UploadSvc.Upload(ctx, ada, "archive.zip", bytes.NewReader(zipData))
	require.ErrorAs(t, err, &verr)
	file, err := env.UploadSvc.Upload(ctx, ada, "plan.docx", bytes.NewReader(zipData))
	require.NoError(t, err)
	assert.Equal(t, "application/zip", file.ContentType)

	_, err = env.UploadSvc.Upload(ctx, root, "scores.csv", strings.NewReader(csvData))
	assert.ErrorIs(t, err, upload.ErrAgencyRequired)

	env.Conf.Storage.MaxUploadSize = 8
	_, err = env.UploadSvc.Upload(ctx, ada, "scores.csv", strings.NewReader(csvData))
	assert.ErrorIs(t, err, upload.ErrTooLarge)
}

type recordingStorage struct {
	core.FileStorage
	deleted []string
}

func (s *recordingStorage) Name() string { return "recording" }

func (s *recordingStorage) Put(context.Context, string, io.Reader, int64, string) error { return nil }

func (s *recordingStorage) Delete(_ context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	return nil
}

type failingRepository struct {
	upload.Repository
}

func (failingRepository) CreateFile(context.Context, upload.File) (upload.File, error) {
	return upload.File{}, errors.New("db down")
}

func TestService_SaveRemovesOrphanBlob(t *testing.T) {
	env := testutil.NewTestEnv(t)
	storage := new(recordingStorage)
	svc := upload.NewService(env.Conf, failingRepository{}, storage, env.Clock)

	owner := rbac.Actor{ID: "u1", AgencyID: "a1", TenantID: "t1", Roles: []string{rbac.RoleLearner}}
	_, err := svc.Save(context.Background(), owner, "report.pdf", "application/pdf", []byte("%PDF-1.4"))
	require.Error(t, err)
	require.Len(t, storage.deleted, 1)
	assert.True(t, strings.HasPrefix(storage.deleted[0], "t1/2024/03/"))
}
