package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/couplegram/couplegram/internal/models"
	"github.com/couplegram/couplegram/internal/service"
)

// multipartSlack is the allowance for multipart framing on top of the
// file size limit.
const multipartSlack = 1 << 20

// FileService defines the storage operations required by FileHandler.
type FileService interface {
	CreateFile(ctx context.Context, name string, r io.Reader) (*models.StoredFile, error)
	FilePreview(ctx context.Context, id string) (string, error)
	Content(ctx context.Context, id string) (*models.StoredFile, []byte, error)
	DeleteFile(ctx context.Context, id string) error
}

// FileHandler serves the file bucket.
type FileHandler struct {
	FileService FileService
}

// FileInfo describes a stored file and where its preview is served.
type FileInfo struct {
	ID         string `json:"id"`
	PreviewURL string `json:"previewUrl"`
}

// Create handles POST /v1/files. The upload is read from the "file" part
// of a multipart body.
func (h *FileHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxFileSize+multipartSlack)
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "expected multipart body", http.StatusBadRequest)
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			http.Error(w, `missing "file" part`, http.StatusBadRequest)
			return
		}
		if err != nil {
			http.Error(w, "invalid multipart body", http.StatusBadRequest)
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		f, err := h.FileService.CreateFile(r.Context(), part.FileName(), part)
		_ = part.Close()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, f)
		return
	}
}

// Get handles GET /v1/files/{id}.
func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	url, err := h.FileService.FilePreview(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FileInfo{ID: id, PreviewURL: url})
}

// Preview handles GET /v1/files/{id}/preview. Resize parameters are
// accepted and the stored image is served as is.
func (h *FileHandler) Preview(w http.ResponseWriter, r *http.Request) {
	meta, data, err := h.FileService.Content(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	_, _ = w.Write(data)
}

func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.FileService.DeleteFile(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
