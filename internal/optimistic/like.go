// Package optimistic keeps the like and save state a client shows for a post
// ahead of the backend: toggles apply locally at once, are replaced by the
// authoritative state when the write succeeds and are rolled back when it
// fails.
package optimistic

import (
	"context"
	"slices"
	"sync"

	"github.com/couplegram/couplegram/internal/models"
)

// LikeFunc sets whether userID likes postID and returns the stored post.
type LikeFunc func(ctx context.Context, postID, userID string, liked bool) (*models.Post, error)

type pendingLike struct {
	liked bool
	seq   uint64
}

// LikeState is the liker list of one post: the last authoritative list plus
// an overlay of toggles still in flight.
type LikeState struct {
	postID string
	like   LikeFunc

	mu      sync.Mutex
	base    []string
	pending map[string]pendingLike
	seq     uint64
}

// NewLikeState starts from the likers of post.
func NewLikeState(post *models.Post, like LikeFunc) *LikeState {
	return &LikeState{
		postID:  post.ID,
		like:    like,
		base:    slices.Clone(post.LikerIDs),
		pending: make(map[string]pendingLike),
	}
}

// Liked reports whether userID is shown as liking the post.
func (s *LikeState) Liked(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liked(userID)
}

func (s *LikeState) liked(userID string) bool {
	if p, ok := s.pending[userID]; ok {
		return p.liked
	}
	return slices.Contains(s.base, userID)
}

// Likers returns the list shown to the user.
func (s *LikeState) Likers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.DeleteFunc(slices.Clone(s.base), func(id string) bool {
		p, ok := s.pending[id]
		return ok && !p.liked
	})
	for id, p := range s.pending {
		if p.liked && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// Count is the number of likers shown.
func (s *LikeState) Count() int {
	return len(s.Likers())
}

// Toggle flips userID's like locally and writes it. On success the
// authoritative liker list replaces the base; on failure the local flip is
// dropped and the error returned.
func (s *LikeState) Toggle(ctx context.Context, userID string) error {
	s.mu.Lock()
	want := !s.liked(userID)
	s.seq++
	seq := s.seq
	s.pending[userID] = pendingLike{liked: want, seq: seq}
	s.mu.Unlock()

	post, err := s.like(ctx, s.postID, userID, want)

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[userID]; ok && p.seq == seq {
		delete(s.pending, userID)
	}
	if err != nil {
		return err
	}
	s.base = slices.Clone(post.LikerIDs)
	return nil
}

// Reconcile replaces the base with a freshly fetched post.
func (s *LikeState) Reconcile(post *models.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base = slices.Clone(post.LikerIDs)
}
