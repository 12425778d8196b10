// Package models defines the core data structures shared by the gateway
// server and the client: accounts, sessions, profiles, posts, saves and files.
package models

import (
	"io"
	"slices"
	"time"
)

// Account is an authentication identity.
type Account struct {
	// ID is the unique identifier for the account.
	ID string `json:"id" db:"id"`
	// Email is the login address of the account.
	Email string `json:"email" db:"email"`
	// Name is the display name given at sign-up.
	Name string `json:"name" db:"name"`
	// PasswordHash is the hashed password. It never leaves the server.
	PasswordHash []byte `json:"-" db:"password_hash"`
	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Session is a credential proving an authenticated Account.
type Session struct {
	// ID is the session identifier, also embedded in the token.
	ID string `json:"id" db:"id"`
	// AccountID references the authenticated account.
	AccountID string `json:"accountId" db:"account_id"`
	// Token is the bearer token presented on every request.
	Token string `json:"token" db:"-"`
	// ExpiresAt is the moment the session stops being accepted.
	ExpiresAt time.Time `json:"expiresAt" db:"expires_at"`
	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// UserProfile is the public profile attached 1:1 to an Account.
type UserProfile struct {
	ID        string    `json:"id" db:"id"`
	AccountID string    `json:"accountId" db:"account_id"`
	Name      string    `json:"name" db:"name"`
	Username  string    `json:"username" db:"username"`
	Email     string    `json:"email" db:"email"`
	Bio       string    `json:"bio" db:"bio"`
	ImageURL  string    `json:"imageUrl" db:"image_url"`
	ImageID   string    `json:"imageId" db:"image_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Post is a published image with caption, location, tags and likes.
type Post struct {
	// ID is the unique identifier for the post.
	ID string `json:"id"`
	// CreatorID references the authoring UserProfile.
	CreatorID string `json:"creatorId"`
	// Caption is the free text shown under the image.
	Caption string `json:"caption"`
	// ImageURL is the preview URL of the stored image.
	ImageURL string `json:"imageUrl"`
	// ImageID references the StoredFile holding the image.
	ImageID string `json:"imageId"`
	// Location is an optional free-text place.
	Location string `json:"location"`
	// Tags are the parsed hashtags.
	Tags []string `json:"tags"`
	// LikerIDs lists the profiles that liked the post, without duplicates.
	LikerIDs []string `json:"likerIds"`
	// Revision increments on every write and backs compare-and-swap updates.
	Revision int64 `json:"revision"`
	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is the last write timestamp.
	UpdatedAt time.Time `json:"updatedAt"`
}

// LikedBy reports whether userID is among the post likers.
func (p *Post) LikedBy(userID string) bool {
	return slices.Contains(p.LikerIDs, userID)
}

// SaveRecord is the join entity for "user bookmarked post".
type SaveRecord struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	PostID    string    `json:"postId" db:"post_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// StoredFile is an opaque blob kept by the gateway file storage.
type StoredFile struct {
	// ID is the unique identifier for the file.
	ID string `json:"id" db:"id"`
	// Name is the original file name.
	Name string `json:"name" db:"name"`
	// ContentType is the detected MIME type.
	ContentType string `json:"contentType" db:"content_type"`
	// Size is the blob size in bytes.
	Size int64 `json:"size" db:"size"`
	// CreatedAt is the upload timestamp.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// PostPage is one page of a cursor-paginated post listing.
type PostPage struct {
	// Documents holds the posts of the page; empty marks the end.
	Documents []Post `json:"documents"`
	// NextCursor is the id of the last document, or empty on the last page.
	NextCursor string `json:"nextCursor"`
}

// File is an upload supplied by the caller.
type File struct {
	Name   string
	Reader io.Reader
}

// NewUser carries the sign-up form.
type NewUser struct {
	Name     string
	Username string
	Email    string
	Password string
}

// NewPost carries the create-post form. Tags is the raw comma separated input.
type NewPost struct {
	CreatorID string
	File      File
	Caption   string
	Location  string
	Tags      string
}

// UpdatePost carries the edit-post form. File is optional; when nil the
// previous image reference is kept.
type UpdatePost struct {
	PostID   string
	File     *File
	Caption  string
	Location string
	Tags     string
	ImageURL string
	ImageID  string
}

// UpdateUser carries the edit-profile form. File is optional; when nil the
// previous image reference is kept.
type UpdateUser struct {
	UserID   string
	Name     string
	Username string
	Email    string
	Bio      string
	File     *File
	ImageURL string
	ImageID  string
}
