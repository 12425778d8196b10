package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/models"
	"github.com/couplegram/couplegram/internal/service"
)

// DocumentList is the envelope of every list response.
type DocumentList[T any] struct {
	Total     int `json:"total"`
	Documents []T `json:"documents"`
}

func newList[T any](docs []T) DocumentList[T] {
	if docs == nil {
		docs = []T{}
	}
	return DocumentList[T]{Total: len(docs), Documents: docs}
}

// UserService defines the profile operations required by UserHandler.
type UserService interface {
	CreateUser(ctx context.Context, caller service.Identity, u *models.UserProfile) (*models.UserProfile, error)
	GetUser(ctx context.Context, id string) (*models.UserProfile, error)
	UpdateUser(ctx context.Context, caller service.Identity, u *models.UserProfile) (*models.UserProfile, error)
	ListUsers(ctx context.Context, q gateway.Query) ([]models.UserProfile, error)
}

// UserHandler serves the users collection.
type UserHandler struct {
	UserService UserService
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	q, ok := parseQuery(w, r)
	if !ok {
		return
	}
	users, err := h.UserService.ListUsers(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(users))
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var u models.UserProfile
	if !decodeJSON(w, r, &u) {
		return
	}
	created, err := h.UserService.CreateUser(r.Context(), id, &u)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.UserService.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Update handles PATCH /v1/users/{id}. The path id wins over the body.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var u models.UserProfile
	if !decodeJSON(w, r, &u) {
		return
	}
	u.ID = chi.URLParam(r, "id")
	updated, err := h.UserService.UpdateUser(r.Context(), id, &u)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
