package optimistic

import (
	"context"
	"errors"
	"sync"

	"github.com/couplegram/couplegram/internal/models"
)

// ErrPending is returned by SaveState.Toggle while a previous toggle has not
// completed.
var ErrPending = errors.New("save toggle already in flight")

type (
	// SaveFunc bookmarks postID for userID.
	SaveFunc func(ctx context.Context, postID, userID string) (*models.SaveRecord, error)
	// UnsaveFunc removes a bookmark.
	UnsaveFunc func(ctx context.Context, saveRecordID string) error
)

// SaveState is the saved flag of one post for one user. The authoritative
// flag is whether the user's save records reference the post.
type SaveState struct {
	postID string
	userID string
	save   SaveFunc
	unsave UnsaveFunc

	mu       sync.Mutex
	record   *models.SaveRecord
	inFlight bool
	shown    bool
}

// NewSaveState derives the flag from the user's save records.
func NewSaveState(postID, userID string, records []models.SaveRecord, save SaveFunc, unsave UnsaveFunc) *SaveState {
	s := &SaveState{postID: postID, userID: userID, save: save, unsave: unsave}
	s.reconcile(records)
	return s
}

// Saved reports the flag shown to the user.
func (s *SaveState) Saved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shown
}

// Toggle flips the flag locally and saves or unsaves the post. The flag is
// restored when the write fails.
func (s *SaveState) Toggle(ctx context.Context) error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return ErrPending
	}
	s.inFlight = true
	rec := s.record
	s.shown = rec == nil
	s.mu.Unlock()

	var (
		saved *models.SaveRecord
		err   error
	)
	if rec != nil {
		err = s.unsave(ctx, rec.ID)
	} else {
		saved, err = s.save(ctx, s.postID, s.userID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if err != nil {
		s.shown = rec != nil
		return err
	}
	s.record = saved
	s.shown = saved != nil
	return nil
}

// Reconcile recomputes the flag from freshly fetched save records. It is
// ignored while a toggle is in flight.
func (s *SaveState) Reconcile(records []models.SaveRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return
	}
	s.reconcile(records)
}

func (s *SaveState) reconcile(records []models.SaveRecord) {
	s.record = nil
	for i := range records {
		if records[i].PostID == s.postID && records[i].UserID == s.userID {
			r := records[i]
			s.record = &r
			break
		}
	}
	s.shown = s.record != nil
}
