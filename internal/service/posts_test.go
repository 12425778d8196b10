package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/couplegram/couplegram/internal/cache"
	"github.com/couplegram/couplegram/internal/events"
	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/models"
	"github.com/couplegram/couplegram/internal/timeline"
)

type mockPostRepo struct {
	CreatePostFunc    func(ctx context.Context, p *models.Post) error
	GetPostFunc       func(ctx context.Context, id string) (*models.Post, error)
	UpdatePostFunc    func(ctx context.Context, p *models.Post) (*models.Post, error)
	DeletePostFunc    func(ctx context.Context, id string) error
	ListPostsFunc     func(ctx context.Context, q gateway.Query) ([]models.Post, error)
	GetPostsByIDsFunc func(ctx context.Context, ids []string) ([]models.Post, error)
	UpdateLikesFunc   func(ctx context.Context, id string, likers []string, revision int64, now time.Time) (*models.Post, error)
}

func (m *mockPostRepo) CreatePost(ctx context.Context, p *models.Post) error {
	return m.CreatePostFunc(ctx, p)
}
func (m *mockPostRepo) GetPost(ctx context.Context, id string) (*models.Post, error) {
	return m.GetPostFunc(ctx, id)
}
func (m *mockPostRepo) UpdatePost(ctx context.Context, p *models.Post) (*models.Post, error) {
	return m.UpdatePostFunc(ctx, p)
}
func (m *mockPostRepo) DeletePost(ctx context.Context, id string) error {
	return m.DeletePostFunc(ctx, id)
}
func (m *mockPostRepo) ListPosts(ctx context.Context, q gateway.Query) ([]models.Post, error) {
	return m.ListPostsFunc(ctx, q)
}
func (m *mockPostRepo) GetPostsByIDs(ctx context.Context, ids []string) ([]models.Post, error) {
	return m.GetPostsByIDsFunc(ctx, ids)
}
func (m *mockPostRepo) UpdateLikes(ctx context.Context, id string, likers []string, revision int64, now time.Time) (*models.Post, error) {
	return m.UpdateLikesFunc(ctx, id, likers, revision, now)
}

// profiles maps account ids to profile ids.
type profiles map[string]string

func (p profiles) ProfileOf(ctx context.Context, accountID string) (*models.UserProfile, error) {
	id, ok := p[accountID]
	if !ok {
		return nil, gateway.Invalidf("account %s has no profile", accountID)
	}
	return &models.UserProfile{ID: id, AccountID: accountID}, nil
}

type recordingPublisher struct {
	events []events.Event
}

func (r *recordingPublisher) Publish(ctx context.Context, ev events.Event) error {
	r.events = append(r.events, ev)
	return nil
}

type fakeTimeline struct {
	ids      []string
	replaced []timeline.Entry
	added    []timeline.Entry
	removed  []string
	err      error
}

func (f *fakeTimeline) Add(ctx context.Context, entries ...timeline.Entry) error {
	f.added = append(f.added, entries...)
	return f.err
}
func (f *fakeTimeline) Remove(ctx context.Context, postID string) error {
	f.removed = append(f.removed, postID)
	return f.err
}
func (f *fakeTimeline) Recent(ctx context.Context, limit int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.ids) > limit {
		return f.ids[:limit], nil
	}
	return f.ids, nil
}
func (f *fakeTimeline) Replace(ctx context.Context, entries ...timeline.Entry) error {
	f.replaced = entries
	return f.err
}

var (
	alice        = Identity{AccountID: "acc-alice", SessionID: "s1"}
	bob          = Identity{AccountID: "acc-bob", SessionID: "s2"}
	testProfiles = profiles{"acc-alice": "u-alice", "acc-bob": "u-bob"}
)

func TestCreatePost(t *testing.T) {
	var stored *models.Post
	repo := &mockPostRepo{CreatePostFunc: func(ctx context.Context, p *models.Post) error {
		stored = p
		return nil
	}}
	pub := &recordingPublisher{}
	tl := &fakeTimeline{}
	svc := NewPostService(repo, testProfiles, tl, pub, nil)

	got, err := svc.CreatePost(context.Background(), alice, &models.Post{
		Caption:  "sunset",
		Tags:     []string{" travel", "", "food "},
		LikerIDs: []string{"u-bob", "u-bob"},
	})
	if err != nil {
		t.Fatalf("CreatePost returned error: %v", err)
	}
	if stored == nil || stored.CreatorID != "u-alice" || stored.Revision != 1 {
		t.Fatalf("unexpected stored post: %+v", stored)
	}
	if strings.Join(got.Tags, ",") != "travel,food" {
		t.Errorf("tags = %v; want [travel food]", got.Tags)
	}
	if len(got.LikerIDs) != 1 {
		t.Errorf("likers = %v; want deduplicated", got.LikerIDs)
	}
	if len(tl.added) != 1 || tl.added[0].PostID != got.ID {
		t.Errorf("timeline adds = %+v", tl.added)
	}
	if len(pub.events) != 1 || pub.events[0].Kind != cache.MutCreatePost || pub.events[0].Subject != got.ID {
		t.Errorf("events = %+v", pub.events)
	}
}

func TestCreatePost_Rejects(t *testing.T) {
	repo := &mockPostRepo{CreatePostFunc: func(ctx context.Context, p *models.Post) error {
		t.Fatal("repository must not be reached")
		return nil
	}}
	svc := NewPostService(repo, testProfiles, nil, nil, nil)
	ctx := context.Background()

	if _, err := svc.CreatePost(ctx, alice, &models.Post{CreatorID: "u-bob"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign creator error = %v; want ErrForbidden", err)
	}
	long := strings.Repeat("x", MaxCaptionLen+1)
	if _, err := svc.CreatePost(ctx, alice, &models.Post{Caption: long}); !errors.Is(err, gateway.ErrInvalid) {
		t.Errorf("long caption error = %v; want ErrInvalid", err)
	}
	if _, err := svc.CreatePost(ctx, Identity{AccountID: "acc-nobody"}, &models.Post{}); !errors.Is(err, gateway.ErrInvalid) {
		t.Errorf("no profile error = %v; want ErrInvalid", err)
	}
}

func TestCreatePost_CaptionLimitCountsRunes(t *testing.T) {
	repo := &mockPostRepo{CreatePostFunc: func(ctx context.Context, p *models.Post) error { return nil }}
	svc := NewPostService(repo, testProfiles, nil, nil, nil)

	caption := strings.Repeat("é", MaxCaptionLen)
	if _, err := svc.CreatePost(context.Background(), alice, &models.Post{Caption: caption}); err != nil {
		t.Errorf("caption of %d runes rejected: %v", MaxCaptionLen, err)
	}
}

func TestUpdateAndDeletePost_Ownership(t *testing.T) {
	post := &models.Post{ID: "p1", CreatorID: "u-alice", Caption: "old", Revision: 2}
	deleted := ""
	repo := &mockPostRepo{
		GetPostFunc: func(ctx context.Context, id string) (*models.Post, error) {
			if id != "p1" {
				return nil, gateway.ErrNotFound
			}
			cp := *post
			return &cp, nil
		},
		UpdatePostFunc: func(ctx context.Context, p *models.Post) (*models.Post, error) {
			cp := *p
			cp.Revision++
			return &cp, nil
		},
		DeletePostFunc: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	tl := &fakeTimeline{}
	pub := &recordingPublisher{}
	svc := NewPostService(repo, testProfiles, tl, pub, nil)
	ctx := context.Background()

	if _, err := svc.UpdatePost(ctx, bob, &models.Post{ID: "p1", Caption: "mine now"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("update by other user error = %v; want ErrForbidden", err)
	}
	got, err := svc.UpdatePost(ctx, alice, &models.Post{ID: "p1", Caption: "new", Tags: []string{"a"}})
	if err != nil {
		t.Fatalf("UpdatePost returned error: %v", err)
	}
	if got.Caption != "new" || got.CreatorID != "u-alice" || got.Revision != 3 {
		t.Errorf("unexpected post: %+v", got)
	}

	if err := svc.DeletePost(ctx, bob, "p1"); !errors.Is(err, ErrForbidden) {
		t.Errorf("delete by other user error = %v; want ErrForbidden", err)
	}
	if err := svc.DeletePost(ctx, alice, "missing"); !errors.Is(err, gateway.ErrNotFound) {
		t.Errorf("delete missing error = %v; want ErrNotFound", err)
	}
	if err := svc.DeletePost(ctx, alice, "p1"); err != nil {
		t.Fatalf("DeletePost returned error: %v", err)
	}
	if deleted != "p1" || len(tl.removed) != 1 {
		t.Errorf("deleted = %q, timeline removals = %v", deleted, tl.removed)
	}
	if n := len(pub.events); n != 2 {
		t.Errorf("published %d events; want 2", n)
	}
}

func TestUpdateLikes(t *testing.T) {
	var gotLikers []string
	var gotRevision int64
	repo := &mockPostRepo{UpdateLikesFunc: func(ctx context.Context, id string, likers []string, revision int64, now time.Time) (*models.Post, error) {
		gotLikers, gotRevision = likers, revision
		return &models.Post{ID: id, LikerIDs: likers}, nil
	}}
	pub := &recordingPublisher{}
	svc := NewPostService(repo, testProfiles, nil, pub, nil)

	_, err := svc.UpdateLikes(context.Background(), bob, "p1", []string{"u-bob", "u-alice", "u-bob", ""}, 4)
	if err != nil {
		t.Fatalf("UpdateLikes returned error: %v", err)
	}
	if strings.Join(gotLikers, ",") != "u-bob,u-alice" || gotRevision != 4 {
		t.Errorf("repo got likers %v at revision %d", gotLikers, gotRevision)
	}
	if len(pub.events) != 1 || pub.events[0].Kind != cache.MutLikePost || pub.events[0].Actor != bob.AccountID {
		t.Errorf("events = %+v", pub.events)
	}

	if _, err := svc.UpdateLikes(context.Background(), bob, "", nil, 0); !errors.Is(err, gateway.ErrInvalid) {
		t.Errorf("missing id error = %v; want ErrInvalid", err)
	}
}

func TestListPosts_Timeline(t *testing.T) {
	recent := gateway.NewQuery(gateway.OrderDesc(gateway.FieldCreatedAt), gateway.Limit(2))
	sqlPosts := []models.Post{{ID: "p3"}, {ID: "p2"}}

	t.Run("served from timeline", func(t *testing.T) {
		repo := &mockPostRepo{
			GetPostsByIDsFunc: func(ctx context.Context, ids []string) ([]models.Post, error) {
				return []models.Post{{ID: ids[0]}, {ID: ids[1]}}, nil
			},
			ListPostsFunc: func(ctx context.Context, q gateway.Query) ([]models.Post, error) {
				t.Fatal("sql listing must not be used")
				return nil, nil
			},
		}
		svc := NewPostService(repo, testProfiles, &fakeTimeline{ids: []string{"p3", "p2", "p1"}}, nil, nil)
		posts, err := svc.ListPosts(context.Background(), recent)
		if err != nil {
			t.Fatalf("ListPosts returned error: %v", err)
		}
		if len(posts) != 2 || posts[0].ID != "p3" {
			t.Errorf("unexpected posts: %+v", posts)
		}
	})

	t.Run("short timeline falls back and rebuilds", func(t *testing.T) {
		repo := &mockPostRepo{ListPostsFunc: func(ctx context.Context, q gateway.Query) ([]models.Post, error) {
			return sqlPosts, nil
		}}
		tl := &fakeTimeline{ids: []string{"p3"}}
		svc := NewPostService(repo, testProfiles, tl, nil, nil)
		posts, err := svc.ListPosts(context.Background(), recent)
		if err != nil {
			t.Fatalf("ListPosts returned error: %v", err)
		}
		if len(posts) != 2 || len(tl.replaced) != 2 {
			t.Errorf("posts = %+v, replaced = %+v", posts, tl.replaced)
		}
	})

	t.Run("timeline down", func(t *testing.T) {
		repo := &mockPostRepo{ListPostsFunc: func(ctx context.Context, q gateway.Query) ([]models.Post, error) {
			return sqlPosts, nil
		}}
		svc := NewPostService(repo, testProfiles, &fakeTimeline{err: errors.New("redis down")}, nil, nil)
		if posts, err := svc.ListPosts(context.Background(), recent); err != nil || len(posts) != 2 {
			t.Errorf("ListPosts = %v, %v; want sql result", posts, err)
		}
	})

	t.Run("filtered queries skip timeline", func(t *testing.T) {
		called := false
		repo := &mockPostRepo{ListPostsFunc: func(ctx context.Context, q gateway.Query) ([]models.Post, error) {
			called = true
			return nil, nil
		}}
		tl := &fakeTimeline{ids: []string{"p1", "p2"}}
		svc := NewPostService(repo, testProfiles, tl, nil, nil)
		q := gateway.NewQuery(gateway.Equal(gateway.FieldCreator, "u-alice"), gateway.OrderDesc(gateway.FieldCreatedAt), gateway.Limit(2))
		if _, err := svc.ListPosts(context.Background(), q); err != nil {
			t.Fatalf("ListPosts returned error: %v", err)
		}
		if !called || tl.replaced != nil {
			t.Errorf("called = %v, replaced = %v", called, tl.replaced)
		}
	})

	t.Run("invalid query", func(t *testing.T) {
		svc := NewPostService(&mockPostRepo{}, testProfiles, nil, nil, nil)
		_, err := svc.ListPosts(context.Background(), gateway.NewQuery(gateway.Equal("password", "x")))
		if !errors.Is(err, gateway.ErrInvalid) {
			t.Errorf("error = %v; want ErrInvalid", err)
		}
	})
}
