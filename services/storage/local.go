package storagesvc

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/tos/core"
)

var (
	ErrInvalidKey  = errors.New("invalid storage key")
	ErrBlobMissing = core.NewNotFoundError("file content not found")
)

// localStorage keeps blobs as files under a root directory.
type localStorage struct {
	root string
}

var _ core.FileStorage = (*localStorage)(nil)

func NewLocalStorage(root string) (core.FileStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "resolving storage root")
	}
	if err = os.MkdirAll(abs, 0o750); err != nil {
		return nil, errors.Wrap(err, "creating storage root")
	}
	return &localStorage{root: abs}, nil
}

func (s *localStorage) Name() string { return "local" }

// path returns the file path of key, refusing keys that escape the root.
func (s *localStorage) path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", ErrInvalidKey
		}
	}
	fp := filepath.Join(s.root, filepath.FromSlash(key))
	if !strings.HasPrefix(fp, s.root+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return fp, nil
}

func (s *localStorage) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	fp, err := s.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(fp)
	if err = os.MkdirAll(dir, 0o750); err != nil {
		return errors.Wrap(err, "creating directory")
	}

	// write to a temp file, then rename it in place
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err = io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "writing temp file")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temp file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), fp), "renaming temp file")
}

func (s *localStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	fp, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fp)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobMissing
		}
		return nil, errors.Wrap(err, "opening file")
	}
	return f, nil
}

func (s *localStorage) Delete(_ context.Context, key string) error {
	fp, err := s.path(key)
	if err != nil {
		return err
	}
	if err = os.Remove(fp); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing file")
	}
	return nil
}
