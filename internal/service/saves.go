package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/couplegram/couplegram/internal/cache"
	"github.com/couplegram/couplegram/internal/events"
	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/models"
)

// SaveRepository persists save records.
type SaveRepository interface {
	CreateSave(ctx context.Context, s *models.SaveRecord) error
	GetSave(ctx context.Context, id string) (*models.SaveRecord, error)
	DeleteSave(ctx context.Context, id string) error
	ListSaves(ctx context.Context, q gateway.Query) ([]models.SaveRecord, error)
}

// SaveService manages bookmarks.
type SaveService struct {
	repo     SaveRepository
	profiles ProfileLookup
	pub      events.Publisher
	log      *zap.Logger
	now      func() time.Time
}

// NewSaveService constructs a SaveService. pub and log may be nil.
func NewSaveService(repo SaveRepository, profiles ProfileLookup, pub events.Publisher, log *zap.Logger) *SaveService {
	s := &SaveService{repo: repo, profiles: profiles}
	s.pub, s.log, s.now = defaults(pub, log, nil)
	return s
}

// CreateSave bookmarks postID for the caller's profile userID.
func (s *SaveService) CreateSave(ctx context.Context, caller Identity, userID, postID string) (*models.SaveRecord, error) {
	if userID == "" || postID == "" {
		return nil, gateway.Invalidf("user and post are required")
	}
	if err := s.ownsProfile(ctx, caller, userID); err != nil {
		return nil, err
	}
	rec := &models.SaveRecord{ID: uuid.NewString(), UserID: userID, PostID: postID, CreatedAt: s.now().UTC()}
	if err := s.repo.CreateSave(ctx, rec); err != nil {
		return nil, err
	}
	publish(ctx, s.pub, s.log, events.Event{Kind: cache.MutSavePost, Subject: userID, Actor: caller.AccountID, At: rec.CreatedAt})
	return rec, nil
}

// DeleteSave removes a bookmark of the caller.
func (s *SaveService) DeleteSave(ctx context.Context, caller Identity, id string) error {
	rec, err := s.repo.GetSave(ctx, id)
	if err != nil {
		return err
	}
	if err := s.ownsProfile(ctx, caller, rec.UserID); err != nil {
		return err
	}
	if err := s.repo.DeleteSave(ctx, id); err != nil {
		return err
	}
	publish(ctx, s.pub, s.log, events.Event{Kind: cache.MutDeleteSavePost, Subject: rec.UserID, Actor: caller.AccountID, At: s.now().UTC()})
	return nil
}

// ListSaves runs q over the save records.
func (s *SaveService) ListSaves(ctx context.Context, q gateway.Query) ([]models.SaveRecord, error) {
	if err := gateway.SaveFields.Check(q); err != nil {
		return nil, err
	}
	return s.repo.ListSaves(ctx, q)
}

func (s *SaveService) ownsProfile(ctx context.Context, caller Identity, userID string) error {
	p, err := s.profiles.ProfileOf(ctx, caller.AccountID)
	if err != nil {
		return err
	}
	if p.ID != userID {
		return ErrForbidden
	}
	return nil
}
