// Package http provides the HTTP handlers of the couplegram gateway server:
// accounts and sessions, the users/posts/saves collections, file storage
// and generated avatars.
package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/couplegram/couplegram/internal/models"
	"github.com/couplegram/couplegram/internal/service"
)

// AuthService defines the account and session operations
// required by the HTTP handlers.
type AuthService interface {
	CreateAccount(ctx context.Context, email, password, name string) (*models.Account, *models.Session, error)
	DeleteAccount(ctx context.Context, caller service.Identity, id string) error
	GetAccount(ctx context.Context, caller service.Identity) (*models.Account, error)
	CreateSession(ctx context.Context, email, password string) (*models.Session, error)
	DeleteSession(ctx context.Context, caller service.Identity, id string) error
}

// AuthHandler handles account and session requests.
type AuthHandler struct {
	AuthService AuthService
}

// Credentials is the JSON payload of sign-up and sign-in.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// AccountCreated is the response of a sign-up: the account and the first
// session opened for it.
type AccountCreated struct {
	Account *models.Account `json:"account"`
	Session *models.Session `json:"session"`
}

// CreateAccount handles POST /v1/account.
func (h *AuthHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req Credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	acc, sess, err := h.AuthService.CreateAccount(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, AccountCreated{Account: acc, Session: sess})
}

// GetAccount handles GET /v1/account.
func (h *AuthHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	acc, err := h.AuthService.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// DeleteAccount handles DELETE /v1/account/{id}.
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.AuthService.DeleteAccount(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateSession handles POST /v1/sessions.
func (h *AuthHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req Credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.AuthService.CreateSession(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// DeleteSession handles DELETE /v1/sessions/{id}; "current" names the
// session of the request.
func (h *AuthHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.AuthService.DeleteSession(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
