package httpgw

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/models"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type accountCreated struct {
	Account *models.Account `json:"account"`
	Session *models.Session `json:"session"`
}

type documentList[T any] struct {
	Total     int `json:"total"`
	Documents []T `json:"documents"`
}

type likesRequest struct {
	LikerIDs []string `json:"likerIds"`
	Revision int64    `json:"revision"`
}

type saveRequest struct {
	UserID string `json:"userId"`
	PostID string `json:"postId"`
}

type fileInfo struct {
	ID         string `json:"id"`
	PreviewURL string `json:"previewUrl"`
}

// CreateAccount signs up and adopts the session the server opens for the
// new account.
func (c *Client) CreateAccount(ctx context.Context, email, password, name string) (*models.Account, error) {
	var out accountCreated
	if err := c.do(ctx, http.MethodPost, "/v1/account", nil, credentials{email, password, name}, &out); err != nil {
		return nil, err
	}
	if out.Session != nil {
		c.adopt(out.Session.Token, out.Session.ID)
	}
	return out.Account, nil
}

func (c *Client) DeleteAccount(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/account/"+escape(id), nil, nil, nil)
}

func (c *Client) GetAccount(ctx context.Context) (*models.Account, error) {
	if c.Token() == "" {
		return nil, fmt.Errorf("get account: %w", gateway.ErrUnauthorized)
	}
	var out models.Account
	if err := c.do(ctx, http.MethodGet, "/v1/account", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateEmailSession signs in and adopts the new session.
func (c *Client) CreateEmailSession(ctx context.Context, email, password string) (*models.Session, error) {
	var out models.Session
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", nil, credentials{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	c.adopt(out.Token, out.ID)
	return &out, nil
}

// DeleteSession deletes a session. Deleting the current one also forgets
// its token, even when the server no longer knew it.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/v1/sessions/"+escape(id), nil, nil, nil)
	c.mu.Lock()
	current := id == gateway.CurrentSession || (c.sessionID != "" && id == c.sessionID)
	if current && (err == nil || gateway.Kind(err) == gateway.ErrUnauthorized) {
		c.token, c.sessionID = "", ""
	}
	c.mu.Unlock()
	return err
}

func (c *Client) CreateUser(ctx context.Context, u *models.UserProfile) (*models.UserProfile, error) {
	var out models.UserProfile
	if err := c.do(ctx, http.MethodPost, "/v1/users", nil, u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetUser(ctx context.Context, id string) (*models.UserProfile, error) {
	var out models.UserProfile
	if err := c.do(ctx, http.MethodGet, "/v1/users/"+escape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateUser(ctx context.Context, u *models.UserProfile) (*models.UserProfile, error) {
	var out models.UserProfile
	if err := c.do(ctx, http.MethodPatch, "/v1/users/"+escape(u.ID), nil, u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListUsers(ctx context.Context, q gateway.Query) ([]models.UserProfile, error) {
	var out documentList[models.UserProfile]
	if err := c.do(ctx, http.MethodGet, "/v1/users", q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

func (c *Client) CreatePost(ctx context.Context, p *models.Post) (*models.Post, error) {
	var out models.Post
	if err := c.do(ctx, http.MethodPost, "/v1/posts", nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var out models.Post
	if err := c.do(ctx, http.MethodGet, "/v1/posts/"+escape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePost(ctx context.Context, p *models.Post) (*models.Post, error) {
	var out models.Post
	if err := c.do(ctx, http.MethodPatch, "/v1/posts/"+escape(p.ID), nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeletePost(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/posts/"+escape(id), nil, nil, nil)
}

func (c *Client) ListPosts(ctx context.Context, q gateway.Query) ([]models.Post, error) {
	var out documentList[models.Post]
	if err := c.do(ctx, http.MethodGet, "/v1/posts", q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

func (c *Client) UpdateLikes(ctx context.Context, postID string, likerIDs []string, revision int64) (*models.Post, error) {
	var out models.Post
	req := likesRequest{LikerIDs: gateway.DedupIDs(likerIDs), Revision: revision}
	if err := c.do(ctx, http.MethodPut, "/v1/posts/"+escape(postID)+"/likes", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateSave(ctx context.Context, userID, postID string) (*models.SaveRecord, error) {
	var out models.SaveRecord
	if err := c.do(ctx, http.MethodPost, "/v1/saves", nil, saveRequest{userID, postID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteSave(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/saves/"+escape(id), nil, nil, nil)
}

func (c *Client) ListSaves(ctx context.Context, q gateway.Query) ([]models.SaveRecord, error) {
	var out documentList[models.SaveRecord]
	if err := c.do(ctx, http.MethodGet, "/v1/saves", q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

// CreateFile streams r as the "file" part of a multipart upload.
func (c *Client) CreateFile(ctx context.Context, name string, r io.Reader) (*models.StoredFile, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", name)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/v1/files", nil), pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out models.StoredFile
	if err := c.send(req, &out); err != nil {
		_ = pr.CloseWithError(err)
		return nil, err
	}
	return &out, nil
}

func (c *Client) FilePreview(ctx context.Context, id string) (string, error) {
	var out fileInfo
	if err := c.do(ctx, http.MethodGet, "/v1/files/"+escape(id), nil, nil, &out); err != nil {
		return "", err
	}
	return out.PreviewURL, nil
}

func (c *Client) DeleteFile(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/files/"+escape(id), nil, nil, nil)
}

// InitialsURL is served by the same origin and needs no round trip.
func (c *Client) InitialsURL(name string) string {
	return gateway.InitialsURL(c.baseURL, name)
}
