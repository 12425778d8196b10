package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/models"
)

// MaxFileSize caps a single upload.
const MaxFileSize = 10 << 20

// FileRepository persists blobs.
type FileRepository interface {
	CreateFile(ctx context.Context, meta *models.StoredFile, data []byte) error
	GetFile(ctx context.Context, id string) (*models.StoredFile, []byte, error)
	FileExists(ctx context.Context, id string) (bool, error)
	DeleteFile(ctx context.Context, id string) error
}

// FileService stores uploaded images and derives their preview URLs.
type FileService struct {
	repo      FileRepository
	publicURL string
	now       func() time.Time
}

// NewFileService constructs a FileService whose preview URLs point at
// publicURL.
func NewFileService(repo FileRepository, publicURL string) *FileService {
	return &FileService{repo: repo, publicURL: strings.TrimRight(publicURL, "/"), now: time.Now}
}

// CreateFile stores the image read from r.
func (s *FileService) CreateFile(ctx context.Context, name string, r io.Reader) (*models.StoredFile, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	switch {
	case len(data) == 0:
		return nil, gateway.Invalidf("empty file")
	case len(data) > MaxFileSize:
		return nil, gateway.Invalidf("file exceeds %d bytes", MaxFileSize)
	}
	ct := http.DetectContentType(data)
	if !strings.HasPrefix(ct, "image/") {
		return nil, gateway.Invalidf("unsupported content type %s", ct)
	}
	meta := &models.StoredFile{
		ID:          uuid.NewString(),
		Name:        path.Base(name),
		ContentType: ct,
		Size:        int64(len(data)),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.CreateFile(ctx, meta, data); err != nil {
		return nil, err
	}
	return meta, nil
}

// FilePreview returns the preview URL of a stored file.
func (s *FileService) FilePreview(ctx context.Context, id string) (string, error) {
	ok, err := s.repo.FileExists(ctx, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("file %s: %w", id, gateway.ErrNotFound)
	}
	return gateway.PreviewURL(s.publicURL, id), nil
}

// Content returns a stored file and its bytes.
func (s *FileService) Content(ctx context.Context, id string) (*models.StoredFile, []byte, error) {
	return s.repo.GetFile(ctx, id)
}

// DeleteFile removes a stored file.
func (s *FileService) DeleteFile(ctx context.Context, id string) error {
	if id == "" {
		return gateway.Invalidf("missing file id")
	}
	return s.repo.DeleteFile(ctx, id)
}
