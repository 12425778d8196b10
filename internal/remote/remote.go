// Package remote implements the client's remote operations: one method per
// backend capability, each forwarding to the gateway and returning a value or
// an error whose kind stays matchable with errors.Is.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/models"
)

// Listing sizes.
const (
	RecentPostsLimit = 20
	InfinitePageSize = 10
	DefaultUserLimit = 10
)

// ErrNoCurrentUser is returned by GetCurrentUser when there is no session or
// the session account has no profile.
var ErrNoCurrentUser = errors.New("no current user")

// Ops exposes the remote operations over an injected gateway.
type Ops struct {
	gw  gateway.Gateway
	log *zap.Logger
}

// New constructs Ops. A nil logger disables logging.
func New(gw gateway.Gateway, log *zap.Logger) *Ops {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ops{gw: gw, log: log}
}

// fail logs a failed operation and wraps err with its name.
func (o *Ops) fail(op string, err error) error {
	o.log.Warn("remote operation failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, err)
}

// ParseTags turns the raw tag input into a list: all spaces are removed and
// the rest is split on commas. Empty segments are dropped.
func ParseTags(raw string) []string {
	raw = strings.ReplaceAll(raw, " ", "")
	tags := make([]string, 0)
	for _, t := range strings.Split(raw, ",") {
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// uploadImage stores f and derives its preview URL. If the preview cannot be
// derived the upload is removed again.
func (o *Ops) uploadImage(ctx context.Context, f models.File) (*models.StoredFile, string, error) {
	if f.Reader == nil {
		return nil, "", gateway.Invalidf("missing file")
	}
	stored, err := o.gw.CreateFile(ctx, f.Name, f.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("upload file: %w", err)
	}
	url, err := o.gw.FilePreview(ctx, stored.ID)
	if err != nil {
		o.discardFile(ctx, stored.ID)
		return nil, "", fmt.Errorf("file preview: %w", err)
	}
	return stored, url, nil
}

// discardFile deletes a file best-effort; failures are only logged.
func (o *Ops) discardFile(ctx context.Context, id string) {
	if id == "" {
		return
	}
	if err := o.gw.DeleteFile(ctx, id); err != nil {
		o.log.Warn("failed to delete file", zap.String("file_id", id), zap.Error(err))
	}
}
