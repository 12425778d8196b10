package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/couplegram/couplegram/internal/cache"
	"github.com/couplegram/couplegram/internal/events"
	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/models"
)

// UserRepository persists user profiles.
type UserRepository interface {
	CreateUser(ctx context.Context, u *models.UserProfile) error
	GetUser(ctx context.Context, id string) (*models.UserProfile, error)
	UpdateUser(ctx context.Context, u *models.UserProfile) (*models.UserProfile, error)
	ListUsers(ctx context.Context, q gateway.Query) ([]models.UserProfile, error)
}

// UserService manages user profiles. Each account owns at most one.
type UserService struct {
	repo UserRepository
	pub  events.Publisher
	log  *zap.Logger
	now  func() time.Time
}

// NewUserService constructs a UserService. pub and log may be nil.
func NewUserService(repo UserRepository, pub events.Publisher, log *zap.Logger) *UserService {
	s := &UserService{repo: repo}
	s.pub, s.log, s.now = defaults(pub, log, nil)
	return s
}

// CreateUser attaches a profile to the caller's account.
func (s *UserService) CreateUser(ctx context.Context, caller Identity, u *models.UserProfile) (*models.UserProfile, error) {
	if u.AccountID == "" {
		u.AccountID = caller.AccountID
	}
	if u.AccountID != caller.AccountID {
		return nil, ErrForbidden
	}
	if err := validateProfile(u); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	out := *u
	out.ID = uuid.NewString()
	out.CreatedAt, out.UpdatedAt = now, now
	if err := s.repo.CreateUser(ctx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUser fetches a profile.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.UserProfile, error) {
	if id == "" {
		return nil, gateway.Invalidf("missing user id")
	}
	return s.repo.GetUser(ctx, id)
}

// UpdateUser edits the caller's own profile.
func (s *UserService) UpdateUser(ctx context.Context, caller Identity, u *models.UserProfile) (*models.UserProfile, error) {
	cur, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if cur.AccountID != caller.AccountID {
		return nil, ErrForbidden
	}
	next := *cur
	next.Name, next.Username, next.Email, next.Bio = u.Name, u.Username, u.Email, u.Bio
	next.ImageURL, next.ImageID = u.ImageURL, u.ImageID
	if err := validateProfile(&next); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now().UTC()

	out, err := s.repo.UpdateUser(ctx, &next)
	if err != nil {
		return nil, err
	}
	publish(ctx, s.pub, s.log, events.Event{Kind: cache.MutUpdateUser, Subject: out.ID, Actor: caller.AccountID, At: next.UpdatedAt})
	return out, nil
}

// ListUsers runs q over the profiles.
func (s *UserService) ListUsers(ctx context.Context, q gateway.Query) ([]models.UserProfile, error) {
	if err := gateway.UserFields.Check(q); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx, q)
}

// ProfileOf returns the profile of accountID. An account without one
// cannot author posts or saves.
func (s *UserService) ProfileOf(ctx context.Context, accountID string) (*models.UserProfile, error) {
	users, err := s.repo.ListUsers(ctx, gateway.NewQuery(gateway.Equal(gateway.FieldAccountID, accountID), gateway.Limit(1)))
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, gateway.Invalidf("account %s has no profile", accountID)
	}
	return &users[0], nil
}

func validateProfile(u *models.UserProfile) error {
	u.Name = strings.TrimSpace(u.Name)
	u.Username = strings.TrimSpace(u.Username)
	if u.Name == "" {
		return gateway.Invalidf("name is required")
	}
	if !usernamePattern.MatchString(u.Username) {
		return gateway.Invalidf("username %q must be 2-30 letters, digits, dots or underscores", u.Username)
	}
	if err := checkLen("name", u.Name, MaxNameLen); err != nil {
		return err
	}
	return checkLen("bio", u.Bio, MaxBioLen)
}
