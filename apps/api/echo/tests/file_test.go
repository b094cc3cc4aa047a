package tests

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tos/core/upload"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// upload posts content as the "file" field of a multipart form; an empty name sends no file.
func (f *fixture) upload(t *testing.T, token, name string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if name != "" {
		part, err := w.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, w.WriteField("note", "no file"))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.app.ServeHTTP(rec, req)
	return rec
}

func TestFileApi_BodyLimit(t *testing.T) {
	f := setup(t)
	adaToken := f.token(t, f.ada)
	tooLarge := marshallObj(t, httpErr{Error: "file too large (max 10.00MiB)"})

	multipartBody := func(size int) (*bytes.Buffer, string) {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		part, err := w.CreateFormFile("file", "big.txt")
		require.NoError(t, err)
		_, err = part.Write(bytes.Repeat([]byte("a"), size))
		require.NoError(t, err)
		require.NoError(t, w.Close())
		return &body, w.FormDataContentType()
	}

	t.Run("declared length", func(t *testing.T) {
		body, contentType := multipartBody(16)
		req := httptest.NewRequest(http.MethodPost, "/api/files", body)
		req.ContentLength = 1 << 34
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+adaToken)
		rec := httptest.NewRecorder()
		f.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusRequestEntityTooLarge, wantData: tooLarge}, rec)
	})

	t.Run("streamed body", func(t *testing.T) {
		body, contentType := multipartBody(12 << 20)
		// a plain reader leaves the length unknown, as with chunked uploads
		req := httptest.NewRequest(http.MethodPost, "/api/files", io.MultiReader(body))
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+adaToken)
		rec := httptest.NewRecorder()
		f.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusRequestEntityTooLarge, wantData: tooLarge}, rec)
	})
}

func TestFileApi_Upload(t *testing.T) {
	f := setup(t)
	adaToken := f.token(t, f.ada)

	tests := []struct {
		name     string
		token    string
		file     string
		content  []byte
		wantCode int
		wantData []byte
	}{
		{
			name:     "missing file",
			token:    adaToken,
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"file": "a file is required"}),
		},
		{
			name:     "unsupported type",
			token:    adaToken,
			file:     "archive.zip",
			content:  []byte("PK\x03\x04\x14\x00\x00\x00\x08\x00"),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"file": "unsupported file type"}),
		},
		{
			name:     "too large",
			token:    adaToken,
			file:     "big.txt",
			content:  bytes.Repeat([]byte("a"), 10<<20+1),
			wantCode: http.StatusRequestEntityTooLarge,
			wantData: marshallObj(t, httpErr{Error: "file too large (max 10.00MiB)"}),
		},
		{
			name:     "platform staff have no agency",
			token:    f.token(t, f.root),
			file:     "notes.txt",
			content:  []byte("hello"),
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: "files belong to an agency"}),
		},
		{
			name:     "csv",
			token:    adaToken,
			file:     "../../scores.CSV",
			content:  []byte("name,score\nada,4\n"),
			wantCode: http.StatusCreated,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.upload(t, tc.token, tc.file, tc.content)
			checkCodeAndData(t, httpTest{wantCode: tc.wantCode, wantData: tc.wantData}, rec)

			if tc.wantCode == http.StatusCreated {
				var file upload.File
				decode(t, rec, &file)
				assert.Equal(t, "scores.CSV", file.Name)
				assert.Equal(t, "text/csv", file.ContentType)
				assert.Equal(t, int64(len(tc.content)), file.Size)
				assert.Equal(t, f.ada.ID, file.OwnerID)
				assert.Equal(t, f.tnt.ID, file.TenantID)
				assert.NotContains(t, rec.Body.String(), "key")
			}
		})
	}
}

func TestFileApi_Access(t *testing.T) {
	f := setup(t)
	adaToken := f.token(t, f.ada)

	rec := f.upload(t, adaToken, "avatar.png", pngHeader)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var file upload.File
	decode(t, rec, &file)
	assert.Equal(t, "image/png", file.ContentType)
	path := "/api/files/" + file.ID

	tests := []httpTest{
		{name: "owner", method: http.MethodGet, path: path, token: adaToken, wantCode: http.StatusOK},
		{name: "facilitator", method: http.MethodGet, path: path, token: f.token(t, f.fiona), wantCode: http.StatusOK},
		{name: "agency admin", method: http.MethodGet, path: path, token: f.token(t, f.admin), wantCode: http.StatusOK},
		{
			name:     "other learner",
			method:   http.MethodGet,
			path:     path,
			token:    f.token(t, f.bob),
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: "file not found"}),
		},
		{name: "other learner content", method: http.MethodGet, path: path + "/content", token: f.token(t, f.bob), wantCode: http.StatusNotFound},
		{name: "facilitator delete", method: http.MethodDelete, path: path, token: f.token(t, f.fiona), wantCode: http.StatusForbidden},
		{name: "unknown", method: http.MethodGet, path: "/api/files/nope", token: adaToken, wantCode: http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f.run(t, tc)
		})
	}

	t.Run("content", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, path+"/content", f.token(t, f.fiona))
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="avatar.png"`, rec.Header().Get("Content-Disposition"))
		assert.Equal(t, pngHeader, rec.Body.Bytes())
	})

	t.Run("delete", func(t *testing.T) {
		f.run(t, httpTest{method: http.MethodDelete, path: path, token: adaToken, wantCode: http.StatusNoContent})
		f.run(t, httpTest{method: http.MethodGet, path: path, token: adaToken, wantCode: http.StatusNotFound})
		f.run(t, httpTest{method: http.MethodGet, path: path + "/content", token: adaToken, wantCode: http.StatusNotFound})
	})
}
