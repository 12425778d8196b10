package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/models"
	"github.com/couplegram/couplegram/internal/service"
)

// PostService defines the post operations required by PostHandler.
type PostService interface {
	CreatePost(ctx context.Context, caller service.Identity, p *models.Post) (*models.Post, error)
	GetPost(ctx context.Context, id string) (*models.Post, error)
	UpdatePost(ctx context.Context, caller service.Identity, p *models.Post) (*models.Post, error)
	DeletePost(ctx context.Context, caller service.Identity, id string) error
	ListPosts(ctx context.Context, q gateway.Query) ([]models.Post, error)
	UpdateLikes(ctx context.Context, caller service.Identity, postID string, likers []string, revision int64) (*models.Post, error)
}

// PostHandler serves the posts collection.
type PostHandler struct {
	PostService PostService
}

// LikesRequest replaces the liker list of a post. A zero Revision writes
// unconditionally.
type LikesRequest struct {
	LikerIDs []string `json:"likerIds"`
	Revision int64    `json:"revision"`
}

func (h *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	q, ok := parseQuery(w, r)
	if !ok {
		return
	}
	posts, err := h.PostService.ListPosts(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(posts))
}

func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var p models.Post
	if !decodeJSON(w, r, &p) {
		return
	}
	created, err := h.PostService.CreatePost(r.Context(), id, &p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.PostService.GetPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PostHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var p models.Post
	if !decodeJSON(w, r, &p) {
		return
	}
	p.ID = chi.URLParam(r, "id")
	updated, err := h.PostService.UpdatePost(r.Context(), id, &p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.PostService.DeletePost(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateLikes handles PUT /v1/posts/{id}/likes.
func (h *PostHandler) UpdateLikes(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req LikesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.PostService.UpdateLikes(r.Context(), id, chi.URLParam(r, "id"), req.LikerIDs, req.Revision)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
