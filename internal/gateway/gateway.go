// Package gateway defines the backend capabilities couplegram consumes:
// accounts and sessions, the users/posts/saves document collections, file
// storage and avatars. Implementations live in the memory and httpgw
// subpackages; the server exposes the same contract over HTTP.
package gateway

import (
	"context"
	"io"

	"github.com/couplegram/couplegram/internal/models"
)

// CurrentSession addresses the session the client is signed in with.
const CurrentSession = "current"

// Preview parameters applied to every file preview URL.
const (
	PreviewWidth   = 2000
	PreviewHeight  = 2000
	PreviewGravity = "top"
	PreviewQuality = 100
)

// Accounts manages identities and sessions.
type Accounts interface {
	CreateAccount(ctx context.Context, email, password, name string) (*models.Account, error)
	// DeleteAccount removes an account; used to compensate a failed sign-up.
	DeleteAccount(ctx context.Context, id string) error
	// GetAccount returns the account of the current session.
	GetAccount(ctx context.Context) (*models.Account, error)
	CreateEmailSession(ctx context.Context, email, password string) (*models.Session, error)
	// DeleteSession deletes a session by id, or the current one for CurrentSession.
	DeleteSession(ctx context.Context, id string) error
}

// Users is the user profile collection.
type Users interface {
	CreateUser(ctx context.Context, u *models.UserProfile) (*models.UserProfile, error)
	GetUser(ctx context.Context, id string) (*models.UserProfile, error)
	UpdateUser(ctx context.Context, u *models.UserProfile) (*models.UserProfile, error)
	ListUsers(ctx context.Context, q Query) ([]models.UserProfile, error)
}

// Posts is the post collection.
type Posts interface {
	CreatePost(ctx context.Context, p *models.Post) (*models.Post, error)
	GetPost(ctx context.Context, id string) (*models.Post, error)
	UpdatePost(ctx context.Context, p *models.Post) (*models.Post, error)
	DeletePost(ctx context.Context, id string) error
	ListPosts(ctx context.Context, q Query) ([]models.Post, error)
	// UpdateLikes replaces the liker list. A zero revision writes
	// unconditionally; otherwise the write only succeeds while the post is
	// still at that revision and fails with ErrConflict when it is not.
	UpdateLikes(ctx context.Context, postID string, likerIDs []string, revision int64) (*models.Post, error)
}

// Saves is the save record collection.
type Saves interface {
	CreateSave(ctx context.Context, userID, postID string) (*models.SaveRecord, error)
	DeleteSave(ctx context.Context, id string) error
	ListSaves(ctx context.Context, q Query) ([]models.SaveRecord, error)
}

// Storage is the file bucket.
type Storage interface {
	CreateFile(ctx context.Context, name string, r io.Reader) (*models.StoredFile, error)
	// FilePreview derives the preview URL of a stored file.
	FilePreview(ctx context.Context, id string) (string, error)
	DeleteFile(ctx context.Context, id string) error
}

// Avatars renders generated profile images.
type Avatars interface {
	InitialsURL(name string) string
}

// Gateway is the full backend surface.
type Gateway interface {
	Accounts
	Users
	Posts
	Saves
	Storage
	Avatars
}

// Fields lists what a collection may be filtered, ordered and searched by.
type Fields struct {
	Equal  []string
	Order  []string
	Search []string
}

var (
	UserFields = Fields{
		Equal:  []string{FieldAccountID, "username"},
		Order:  []string{FieldCreatedAt, FieldUpdatedAt},
		Search: []string{"name", "username"},
	}
	PostFields = Fields{
		Equal:  []string{FieldCreator, FieldLikes},
		Order:  []string{FieldCreatedAt, FieldUpdatedAt},
		Search: []string{FieldCaption},
	}
	SaveFields = Fields{
		Equal: []string{FieldUser, FieldPost},
		Order: []string{FieldCreatedAt},
	}
)

// Check validates q against the collection fields.
func (f Fields) Check(q Query) error {
	return q.Validate(f.Equal, f.Order, f.Search)
}

// DedupIDs removes empty and repeated ids, keeping first occurrence order.
func DedupIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
