package document

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"docsearch/internal/apperr"
	"docsearch/internal/ingest"
	"docsearch/internal/middleware"
)

const uploadSuccessMessage = "PDF uploaded and processed successfully!"

// multipartMemory is how much of a multipart body is held in memory before
// spilling to disk.
const multipartMemory = 32 << 20

var ErrMissingFile = errors.New("multipart field \"file\" is required")

type Handler struct {
	service   *Service
	uploadDir string
	maxBytes  int64
}

func NewHandler(service *Service, uploadDir string, maxBytes int64) *Handler {
	return &Handler{service: service, uploadDir: uploadDir, maxBytes: maxBytes}
}

type UploadResponse struct {
	Message         string `json:"message"`
	OperationStatus string `json:"operation_status"`
	ChunksUploaded  int    `json:"chunks_uploaded"`
	DocumentID      string `json:"document_id"`
}

// Upload streams the multipart "file" field into a private temp file,
// ingests it and removes the temp file on every path.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(ctx, w, apperr.Errorf(apperr.KindTooLarge, "document.Upload", "upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		middleware.WriteError(ctx, w, apperr.E(apperr.KindValidation, "document.Upload", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(ctx, w, apperr.E(apperr.KindValidation, "document.Upload", ErrMissingFile))
		return
	}
	defer file.Close()

	path, digest, err := h.spool(file)
	if path != "" {
		defer func() {
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				slog.WarnContext(ctx, "failed to remove temp upload", "error", rmErr, "path", path)
			}
		}()
	}
	if err != nil {
		middleware.WriteError(ctx, w, err)
		return
	}

	res, err := h.service.Ingest(ctx, path, ingest.Source{
		Filename: filepath.Base(header.Filename),
		SHA256:   digest,
	})
	if err != nil {
		middleware.WriteError(ctx, w, err)
		return
	}

	middleware.WriteJSON(ctx, w, http.StatusOK, UploadResponse{
		Message:         uploadSuccessMessage,
		OperationStatus: res.OperationStatus,
		ChunksUploaded:  res.ChunksUploaded,
		DocumentID:      res.DocumentID,
	})
}

// spool copies src into a new temp file and hashes it on the way. The
// returned path is set whenever a file was created, even on error.
func (h *Handler) spool(src io.Reader) (path, digest string, err error) {
	if err := os.MkdirAll(h.uploadDir, 0o750); err != nil {
		return "", "", apperr.E(apperr.KindIO, "document.spool", err)
	}
	dst, err := os.CreateTemp(h.uploadDir, "upload-*.pdf")
	if err != nil {
		return "", "", apperr.E(apperr.KindIO, "document.spool", err)
	}
	path = dst.Name()

	hash := sha256.New()
	if _, err := io.Copy(io.MultiWriter(dst, hash), src); err != nil {
		dst.Close()
		return path, "", apperr.E(apperr.KindIO, "document.spool", err)
	}
	if err := dst.Close(); err != nil {
		return path, "", apperr.E(apperr.KindIO, "document.spool", err)
	}
	return path, hex.EncodeToString(hash.Sum(nil)), nil
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.List(r.Context())
	if err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}

	// Ensure we return [] instead of null for empty list
	if docs == nil {
		docs = []Document{}
	}

	middleware.WriteJSON(r.Context(), w, http.StatusOK, map[string]interface{}{
		"data": docs,
		"meta": map[string]int{"count": len(docs)},
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}
	middleware.WriteJSON(r.Context(), w, http.StatusOK, map[string]interface{}{"data": doc})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.service.Delete(r.Context(), id); err != nil {
		middleware.WriteError(r.Context(), w, err)
		return
	}
	middleware.WriteJSON(r.Context(), w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"id": id, "deleted": true},
	})
}
