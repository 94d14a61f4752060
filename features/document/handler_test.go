package document_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docsearch/features/document"
	"docsearch/internal/apperr"
	"docsearch/internal/ingest"
	"docsearch/internal/loader"
)

type MockIngester struct {
	mock.Mock
}

func (m *MockIngester) Ingest(ctx context.Context, path string, src ingest.Source) (*ingest.Result, error) {
	args := m.Called(ctx, path, src)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingest.Result), args.Error(1)
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func dirEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestHandler_Upload_Success(t *testing.T) {
	dir := t.TempDir()
	content := []byte("%PDF-1.4 fake body")
	sum := sha256.Sum256(content)

	ing := new(MockIngester)
	ing.On("Ingest", mock.Anything, mock.MatchedBy(func(path string) bool {
		data, err := os.ReadFile(path)
		return err == nil && bytes.Equal(data, content) && strings.HasPrefix(path, dir)
	}), ingest.Source{Filename: "paper.pdf", SHA256: hex.EncodeToString(sum[:])}).
		Return(&ingest.Result{DocumentID: "doc-1", PageCount: 2, ChunksUploaded: 6, OperationStatus: "completed"}, nil)

	h := document.NewHandler(document.NewService(ing, nil, nil, "c", nil), dir, 1<<20)

	body, ct := multipartBody(t, "file", "paper.pdf", content)
	req := httptest.NewRequest(http.MethodPost, "/upload_pdf", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	h.Upload(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp document.UploadResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "PDF uploaded and processed successfully!", resp.Message)
	assert.Equal(t, "completed", resp.OperationStatus)
	assert.Equal(t, 6, resp.ChunksUploaded)
	assert.Equal(t, "doc-1", resp.DocumentID)

	assert.Empty(t, dirEntries(t, dir), "temp upload is removed")
	ing.AssertExpectations(t)
}

func TestHandler_Upload_NotPDF(t *testing.T) {
	dir := t.TempDir()
	ing := new(MockIngester)
	ing.On("Ingest", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperr.E(apperr.KindLoad, "loader.ReadPages", loader.ErrNotPDF))

	h := document.NewHandler(document.NewService(ing, nil, nil, "c", nil), dir, 1<<20)

	body, ct := multipartBody(t, "file", "notes.txt", []byte("plain text"))
	req := httptest.NewRequest(http.MethodPost, "/upload_pdf", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	h.Upload(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "LOAD_ERROR", resp["code"])
	assert.Equal(t, loader.ErrNotPDF.Error(), resp["error"])

	assert.Empty(t, dirEntries(t, dir), "temp upload is removed after failure")
}

func TestHandler_Upload_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"embedding", apperr.E(apperr.KindEmbedding, "openai", errors.New("401")), http.StatusBadGateway},
		{"store", apperr.E(apperr.KindStore, "qdrant", errors.New("unavailable")), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := new(MockIngester)
			ing.On("Ingest", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)
			h := document.NewHandler(document.NewService(ing, nil, nil, "c", nil), t.TempDir(), 1<<20)

			body, ct := multipartBody(t, "file", "a.pdf", []byte("%PDF-"))
			req := httptest.NewRequest(http.MethodPost, "/upload_pdf", body)
			req.Header.Set("Content-Type", ct)
			w := httptest.NewRecorder()
			h.Upload(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestHandler_Upload_MissingFile(t *testing.T) {
	ing := new(MockIngester)
	h := document.NewHandler(document.NewService(ing, nil, nil, "c", nil), t.TempDir(), 1<<20)

	body, ct := multipartBody(t, "attachment", "a.pdf", []byte("%PDF-"))
	req := httptest.NewRequest(http.MethodPost, "/upload_pdf", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	h.Upload(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	ing.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_Upload_NotMultipart(t *testing.T) {
	h := document.NewHandler(document.NewService(new(MockIngester), nil, nil, "c", nil), t.TempDir(), 1<<20)

	req := httptest.NewRequest(http.MethodPost, "/upload_pdf", strings.NewReader(`{"file":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Upload(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Upload_TooLarge(t *testing.T) {
	ing := new(MockIngester)
	h := document.NewHandler(document.NewService(ing, nil, nil, "c", nil), t.TempDir(), 1024)

	body, ct := multipartBody(t, "file", "big.pdf", bytes.Repeat([]byte("x"), 8*1024))
	req := httptest.NewRequest(http.MethodPost, "/upload_pdf", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	h.Upload(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	ing.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything, mock.Anything)
}
