package remote

import (
	"context"

	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/models"
)

// ListUsers returns the newest profiles. A non-positive limit means
// DefaultUserLimit.
func (o *Ops) ListUsers(ctx context.Context, limit int) ([]models.UserProfile, error) {
	if limit <= 0 {
		limit = DefaultUserLimit
	}
	users, err := o.gw.ListUsers(ctx, gateway.NewQuery(
		gateway.Limit(limit),
		gateway.OrderDesc(gateway.FieldCreatedAt),
	))
	if err != nil {
		return nil, o.fail("list users", err)
	}
	return users, nil
}

// GetUserByID fetches a profile.
func (o *Ops) GetUserByID(ctx context.Context, id string) (*models.UserProfile, error) {
	if id == "" {
		return nil, o.fail("get user", gateway.Invalidf("missing user id"))
	}
	u, err := o.gw.GetUser(ctx, id)
	if err != nil {
		return nil, o.fail("get user", err)
	}
	return u, nil
}

// UpdateUser edits a profile with the same image discipline as UpdatePost:
// without a new file the image reference is written back unchanged and no
// file is touched.
func (o *Ops) UpdateUser(ctx context.Context, u models.UpdateUser) (*models.UserProfile, error) {
	const op = "update user"
	if u.UserID == "" {
		return nil, o.fail(op, gateway.Invalidf("missing user id"))
	}
	imageURL, imageID := u.ImageURL, u.ImageID
	if u.File != nil {
		stored, url, err := o.uploadImage(ctx, *u.File)
		if err != nil {
			return nil, o.fail(op, err)
		}
		imageURL, imageID = url, stored.ID
	}

	updated, err := o.gw.UpdateUser(ctx, &models.UserProfile{
		ID:       u.UserID,
		Name:     u.Name,
		Username: u.Username,
		Email:    u.Email,
		Bio:      u.Bio,
		ImageURL: imageURL,
		ImageID:  imageID,
	})
	if err != nil {
		if u.File != nil {
			o.discardFile(ctx, imageID)
		}
		return nil, o.fail(op, err)
	}
	if u.File != nil && u.ImageID != imageID {
		o.discardFile(ctx, u.ImageID)
	}
	return updated, nil
}
