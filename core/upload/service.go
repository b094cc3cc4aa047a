package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/rbac"
	"github.com/trezcool/tos/services/metrics"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("file not found")
	ErrTooLarge        = errors.New("file too large")
	ErrAgencyRequired  = core.NewForbiddenError("files belong to an agency")
	errUnsupportedType = "unsupported file type"
)

type (
	Repository interface {
		CreateFile(ctx context.Context, file File) (File, error)
		GetFile(ctx context.Context, id string) (File, error)
		DeleteFile(ctx context.Context, id string) error
	}

	Service interface {
		// Upload stores the content of r, at most the configured upload size, as a file of actor.
		Upload(ctx context.Context, actor rbac.Actor, name string, r io.Reader) (File, error)
		// Save stores generated content as a file of owner, without permission checks.
		Save(ctx context.Context, owner rbac.Actor, name, contentType string, data []byte) (File, error)
		Get(ctx context.Context, actor rbac.Actor, id string) (File, error)
		Open(ctx context.Context, actor rbac.Actor, id string) (File, io.ReadCloser, error)
		// OpenByID opens the file id without permission checks.
		OpenByID(ctx context.Context, id string) (File, io.ReadCloser, error)
		Delete(ctx context.Context, actor rbac.Actor, id string) error
	}

	service struct {
		conf    *core.Config
		repo    Repository
		storage core.FileStorage
		clock   clockwork.Clock
	}
)

var _ Service = (*service)(nil)

func NewService(conf *core.Config, repo Repository, storage core.FileStorage, clock clockwork.Clock) Service {
	return &service{conf: conf, repo: repo, storage: storage, clock: clock}
}

// cleanName strips any directory from a client provided file name.
func cleanName(name string) string {
	name = path.Base(strings.ReplaceAll(core.CleanString(name), `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	if len(name) > 255 {
		ext := path.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = name[:255-len(ext)] + ext
	}
	return name
}

// DetectContentType sniffs the media type of data; csv files sniff as plain text.
func DetectContentType(name string, data []byte) string {
	ct, _, err := mime.ParseMediaType(http.DetectContentType(data))
	if err != nil {
		return "application/octet-stream"
	}
	if ct == "text/plain" && strings.EqualFold(path.Ext(name), ".csv") {
		return "text/csv"
	}
	return ct
}

// isOfficeDocument reports whether name is an Office Open XML file, which sniffs as a zip archive.
func isOfficeDocument(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".docx", ".xlsx", ".pptx":
		return true
	}
	return false
}

func (svc *service) makeKey(owner rbac.Actor, name string) string {
	prefix := owner.TenantID
	if prefix == "" {
		prefix = owner.AgencyID
	}
	now := svc.clock.Now().UTC()
	return fmt.Sprintf("%s/%04d/%02d/%s%s", prefix, now.Year(), int(now.Month()), uuid.New().String(), strings.ToLower(path.Ext(name)))
}

func (svc *service) Upload(ctx context.Context, actor rbac.Actor, name string, r io.Reader) (File, error) {
	if actor.AgencyID == "" {
		return File{}, ErrAgencyRequired
	}
	if !actor.Can(rbac.FilesWrite, rbac.Resource{AgencyID: actor.AgencyID, TenantID: actor.TenantID, OwnerIDs: []string{actor.ID}}) {
		return File{}, rbac.ErrNoGrant
	}

	maxSize := svc.conf.Storage.MaxUploadSize
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return File{}, errors.Wrap(err, "reading upload")
	}
	if int64(len(data)) > maxSize {
		return File{}, ErrTooLarge
	}

	name = cleanName(name)
	ct := DetectContentType(name, data)
	if !core.ContainsString(svc.conf.Storage.AllowedContentTypes, ct) || (ct == "application/zip" && !isOfficeDocument(name)) {
		return File{}, core.NewValidationError(nil, core.FieldError{Field: "file", Error: errUnsupportedType})
	}
	return svc.Save(ctx, actor, name, ct, data)
}

func (svc *service) Save(ctx context.Context, owner rbac.Actor, name, contentType string, data []byte) (File, error) {
	if owner.AgencyID == "" {
		return File{}, ErrAgencyRequired
	}
	name = cleanName(name)
	key := svc.makeKey(owner, name)
	size := int64(len(data))

	if err := svc.storage.Put(ctx, key, bytes.NewReader(data), size, contentType); err != nil {
		return File{}, errors.Wrap(err, "storing file")
	}
	metrics.FilesUploadedBytesTotal.WithLabelValues(svc.storage.Name()).Add(float64(size))

	file, err := svc.repo.CreateFile(ctx, File{
		AgencyID:    owner.AgencyID,
		TenantID:    owner.TenantID,
		OwnerID:     owner.ID,
		Name:        name,
		ContentType: contentType,
		Size:        size,
		Backend:     svc.storage.Name(),
		Key:         key,
		CreatedAt:   svc.clock.Now().UTC(),
	})
	if err != nil {
		// no metadata, no blob
		if delErr := svc.storage.Delete(ctx, key); delErr != nil {
			return File{}, errors.Wrapf(err, "creating file (orphan blob %s: %v)", key, delErr)
		}
		return File{}, errors.Wrap(err, "creating file")
	}
	return file, nil
}

func (svc *service) Get(ctx context.Context, actor rbac.Actor, id string) (File, error) {
	file, err := svc.repo.GetFile(ctx, id)
	if err != nil {
		return File{}, err
	}
	if !actor.Can(rbac.FilesRead, file.Resource()) {
		return File{}, ErrNotFound
	}
	return file, nil
}

func (svc *service) open(ctx context.Context, file File) (File, io.ReadCloser, error) {
	rc, err := svc.storage.Get(ctx, file.Key)
	if err != nil {
		return File{}, nil, errors.Wrap(err, "opening file")
	}
	return file, rc, nil
}

func (svc *service) Open(ctx context.Context, actor rbac.Actor, id string) (File, io.ReadCloser, error) {
	file, err := svc.Get(ctx, actor, id)
	if err != nil {
		return File{}, nil, err
	}
	return svc.open(ctx, file)
}

func (svc *service) OpenByID(ctx context.Context, id string) (File, io.ReadCloser, error) {
	file, err := svc.repo.GetFile(ctx, id)
	if err != nil {
		return File{}, nil, err
	}
	return svc.open(ctx, file)
}

func (svc *service) Delete(ctx context.Context, actor rbac.Actor, id string) error {
	file, err := svc.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if !actor.Can(rbac.FilesWrite, file.Resource()) {
		return rbac.ErrNoGrant
	}
	if err = svc.repo.DeleteFile(ctx, file.ID); err != nil {
		return err
	}
	return errors.Wrap(svc.storage.Delete(ctx, file.Key), "deleting blob")
}
