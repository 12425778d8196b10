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
	"github.com/couplegram/couplegram/internal/timeline"
)

// PostRepository persists posts.
type PostRepository interface {
	CreatePost(ctx context.Context, p *models.Post) error
	GetPost(ctx context.Context, id string) (*models.Post, error)
	UpdatePost(ctx context.Context, p *models.Post) (*models.Post, error)
	DeletePost(ctx context.Context, id string) error
	ListPosts(ctx context.Context, q gateway.Query) ([]models.Post, error)
	GetPostsByIDs(ctx context.Context, ids []string) ([]models.Post, error)
	UpdateLikes(ctx context.Context, id string, likers []string, revision int64, now time.Time) (*models.Post, error)
}

// Timeline indexes the newest posts.
type Timeline interface {
	Add(ctx context.Context, entries ...timeline.Entry) error
	Remove(ctx context.Context, postID string) error
	Recent(ctx context.Context, limit int) ([]string, error)
	Replace(ctx context.Context, entries ...timeline.Entry) error
}

// PostService manages posts and their likes.
type PostService struct {
	repo     PostRepository
	profiles ProfileLookup
	timeline Timeline
	pub      events.Publisher
	log      *zap.Logger
	now      func() time.Time
}

// NewPostService constructs a PostService. tl, pub and log may be nil;
// without a timeline every listing goes to the repository.
func NewPostService(repo PostRepository, profiles ProfileLookup, tl Timeline, pub events.Publisher, log *zap.Logger) *PostService {
	s := &PostService{repo: repo, profiles: profiles, timeline: tl}
	s.pub, s.log, s.now = defaults(pub, log, nil)
	return s
}

// CreatePost stores p authored by the caller's profile.
func (s *PostService) CreatePost(ctx context.Context, caller Identity, p *models.Post) (*models.Post, error) {
	author, err := s.profiles.ProfileOf(ctx, caller.AccountID)
	if err != nil {
		return nil, err
	}
	if p.CreatorID == "" {
		p.CreatorID = author.ID
	}
	if p.CreatorID != author.ID {
		return nil, ErrForbidden
	}
	out := *p
	if err := validatePost(&out); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	out.ID = uuid.NewString()
	out.LikerIDs = gateway.DedupIDs(p.LikerIDs)
	out.Revision = 1
	out.CreatedAt, out.UpdatedAt = now, now
	if err := s.repo.CreatePost(ctx, &out); err != nil {
		return nil, err
	}

	if s.timeline != nil {
		if err := s.timeline.Add(ctx, timeline.Entry{PostID: out.ID, CreatedAt: out.CreatedAt}); err != nil {
			s.log.Warn("failed to index post", zap.String("post_id", out.ID), zap.Error(err))
		}
	}
	publish(ctx, s.pub, s.log, events.Event{Kind: cache.MutCreatePost, Subject: out.ID, Actor: caller.AccountID, At: now})
	return &out, nil
}

// GetPost fetches a post.
func (s *PostService) GetPost(ctx context.Context, id string) (*models.Post, error) {
	if id == "" {
		return nil, gateway.Invalidf("missing post id")
	}
	return s.repo.GetPost(ctx, id)
}

// UpdatePost edits a post of the caller.
func (s *PostService) UpdatePost(ctx context.Context, caller Identity, p *models.Post) (*models.Post, error) {
	cur, err := s.owned(ctx, caller, p.ID)
	if err != nil {
		return nil, err
	}
	next := *cur
	next.Caption, next.Location, next.Tags = p.Caption, p.Location, p.Tags
	next.ImageURL, next.ImageID = p.ImageURL, p.ImageID
	if err := validatePost(&next); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now().UTC()

	out, err := s.repo.UpdatePost(ctx, &next)
	if err != nil {
		return nil, err
	}
	publish(ctx, s.pub, s.log, events.Event{Kind: cache.MutUpdatePost, Subject: out.ID, Actor: caller.AccountID, At: next.UpdatedAt})
	return out, nil
}

// DeletePost removes a post of the caller. The image file is left to the
// client, or to the orphan sweep.
func (s *PostService) DeletePost(ctx context.Context, caller Identity, id string) error {
	if _, err := s.owned(ctx, caller, id); err != nil {
		return err
	}
	if err := s.repo.DeletePost(ctx, id); err != nil {
		return err
	}
	if s.timeline != nil {
		if err := s.timeline.Remove(ctx, id); err != nil {
			s.log.Warn("failed to unindex post", zap.String("post_id", id), zap.Error(err))
		}
	}
	publish(ctx, s.pub, s.log, events.Event{Kind: cache.MutDeletePost, Subject: id, Actor: caller.AccountID, At: s.now().UTC()})
	return nil
}

// ListPosts runs q over the posts. The plain newest-first listing is served
// from the timeline when one is configured and holds enough entries.
func (s *PostService) ListPosts(ctx context.Context, q gateway.Query) ([]models.Post, error) {
	if err := gateway.PostFields.Check(q); err != nil {
		return nil, err
	}
	if n, ok := recentLimit(q); ok && s.timeline != nil {
		if posts, ok := s.fromTimeline(ctx, n); ok {
			return posts, nil
		}
		posts, err := s.repo.ListPosts(ctx, q)
		if err != nil {
			return nil, err
		}
		s.reindex(ctx, posts)
		return posts, nil
	}
	return s.repo.ListPosts(ctx, q)
}

// UpdateLikes replaces the liker list of a post. A non-zero revision makes
// the write conditional.
func (s *PostService) UpdateLikes(ctx context.Context, caller Identity, postID string, likers []string, revision int64) (*models.Post, error) {
	if postID == "" {
		return nil, gateway.Invalidf("missing post id")
	}
	if revision < 0 {
		return nil, gateway.Invalidf("negative revision")
	}
	now := s.now().UTC()
	out, err := s.repo.UpdateLikes(ctx, postID, gateway.DedupIDs(likers), revision, now)
	if err != nil {
		return nil, err
	}
	publish(ctx, s.pub, s.log, events.Event{Kind: cache.MutLikePost, Subject: postID, Actor: caller.AccountID, At: now})
	return out, nil
}

func (s *PostService) owned(ctx context.Context, caller Identity, postID string) (*models.Post, error) {
	cur, err := s.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	author, err := s.profiles.ProfileOf(ctx, caller.AccountID)
	if err != nil {
		return nil, err
	}
	if cur.CreatorID != author.ID {
		return nil, ErrForbidden
	}
	return cur, nil
}

func (s *PostService) fromTimeline(ctx context.Context, n int) ([]models.Post, bool) {
	ids, err := s.timeline.Recent(ctx, n)
	if err != nil {
		s.log.Warn("timeline unavailable", zap.Error(err))
		return nil, false
	}
	if len(ids) < n {
		return nil, false
	}
	posts, err := s.repo.GetPostsByIDs(ctx, ids)
	if err != nil || len(posts) < n {
		return nil, false
	}
	return posts, true
}

func (s *PostService) reindex(ctx context.Context, posts []models.Post) {
	entries := make([]timeline.Entry, 0, len(posts))
	for _, p := range posts {
		entries = append(entries, timeline.Entry{PostID: p.ID, CreatedAt: p.CreatedAt})
	}
	if err := s.timeline.Replace(ctx, entries...); err != nil {
		s.log.Warn("failed to rebuild timeline", zap.Error(err))
	}
}

// recentLimit reports whether q is exactly "newest by creation, limit n".
func recentLimit(q gateway.Query) (int, bool) {
	if len(q) != 2 || q.Order() != gateway.FieldCreatedAt {
		return 0, false
	}
	n := q.LimitOr(0)
	return n, n > 0
}

func validatePost(p *models.Post) error {
	if err := checkLen("caption", p.Caption, MaxCaptionLen); err != nil {
		return err
	}
	if err := checkLen("location", p.Location, MaxLocationLen); err != nil {
		return err
	}
	tags, err := cleanTags(p.Tags)
	if err != nil {
		return err
	}
	p.Tags = tags
	return nil
}
