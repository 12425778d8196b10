package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/models"
	"github.com/couplegram/couplegram/internal/service"
)

// SaveService defines the bookmark operations required by SaveHandler.
type SaveService interface {
	CreateSave(ctx context.Context, caller service.Identity, userID, postID string) (*models.SaveRecord, error)
	DeleteSave(ctx context.Context, caller service.Identity, id string) error
	ListSaves(ctx context.Context, q gateway.Query) ([]models.SaveRecord, error)
}

// SaveHandler serves the saves collection.
type SaveHandler struct {
	SaveService SaveService
}

// SaveRequest bookmarks PostID for UserID.
type SaveRequest struct {
	UserID string `json:"userId"`
	PostID string `json:"postId"`
}

func (h *SaveHandler) List(w http.ResponseWriter, r *http.Request) {
	q, ok := parseQuery(w, r)
	if !ok {
		return
	}
	saves, err := h.SaveService.ListSaves(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(saves))
}

func (h *SaveHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req SaveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.SaveService.CreateSave(r.Context(), id, req.UserID, req.PostID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *SaveHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.SaveService.DeleteSave(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
