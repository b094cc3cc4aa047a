package storagesvc

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tos/core"
)

func readAll(t *testing.T, storage core.FileStorage, key string) string {
	t.Helper()
	rc, err := storage.Get(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()
	storage, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "local", storage.Name())

	key := "tenant/2024/05/file.txt"
	require.NoError(t, storage.Put(ctx, key, strings.NewReader("hello"), 5, "text/plain"))
	assert.Equal(t, "hello", readAll(t, storage, key))

	// overwrite
	require.NoError(t, storage.Put(ctx, key, strings.NewReader("bye"), 3, "text/plain"))
	assert.Equal(t, "bye", readAll(t, storage, key))

	require.NoError(t, storage.Delete(ctx, key))
	_, err = storage.Get(ctx, key)
	assert.ErrorIs(t, err, core.ErrNotFound)
	// deleting twice is fine
	assert.NoError(t, storage.Delete(ctx, key))
}

func TestLocalStorage_InvalidKeys(t *testing.T) {
	ctx := context.Background()
	storage, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	keys := []string{"", "/etc/passwd", "../secret", "a/../../b", "a//b", `a\b`, "a/./b"}
	for _, key := range keys {
		t.Run(key, func(t *testing.T) {
			assert.ErrorIs(t, storage.Put(ctx, key, strings.NewReader("x"), 1, "text/plain"), ErrInvalidKey)
			_, err := storage.Get(ctx, key)
			assert.ErrorIs(t, err, ErrInvalidKey)
			assert.ErrorIs(t, storage.Delete(ctx, key), ErrInvalidKey)
		})
	}
}

// fakeS3 serves path-style object requests from memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = string(data)
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", f.types[r.URL.Path])
		_, _ = io.WriteString(w, data)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3Storage(t *testing.T) {
	fake := &fakeS3{objects: make(map[string]string), types: make(map[string]string)}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client := s3.New(s3.Options{
		Region:       "eu-west-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("key", "secret", ""),
	})
	storage := NewS3Storage(client, "bucket")
	assert.Equal(t, "s3", storage.Name())

	ctx := context.Background()
	key := "tenant/2024/05/report.pdf"
	require.NoError(t, storage.Put(ctx, key, strings.NewReader("%PDF-1.3"), 8, "application/pdf"))

	fake.mu.Lock()
	assert.Equal(t, "%PDF-1.3", fake.objects["/bucket/"+key])
	assert.Equal(t, "application/pdf", fake.types["/bucket/"+key])
	fake.mu.Unlock()

	assert.Equal(t, "%PDF-1.3", readAll(t, storage, key))

	require.NoError(t, storage.Delete(ctx, key))
	_, err := storage.Get(ctx, key)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestNew(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Storage.LocalDir = t.TempDir()

	storage, err := New(context.Background(), conf)
	require.NoError(t, err)
	assert.Equal(t, "local", storage.Name())

	conf.Storage.Backend = "ftp"
	_, err = New(context.Background(), conf)
	assert.Error(t, err)

	conf.Storage.Backend = "s3"
	_, err = New(context.Background(), conf)
	assert.Error(t, err, "a bucket is required")
}
