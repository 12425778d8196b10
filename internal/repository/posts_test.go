package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/models"
)

var postRowColumns = []string{
	"id", "creator_id", "caption", "image_url", "image_id", "location",
	"tags", "likers", "revision", "created_at", "updated_at",
}

func setupPostMock(t *testing.T) (*PostgresPostRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	return NewPostgresPostRepository(db), mock, func() { db.Close() }
}

func TestCreatePost(t *testing.T) {
	repo, mock, cleanup := setupPostMock(t)
	defer cleanup()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	p := &models.Post{
		ID: "p1", CreatorID: "u1", Caption: "hello", ImageURL: "http://img", ImageID: "f1",
		Tags: []string{"go"}, LikerIDs: []string{}, CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO posts (` + postColumns + `)`)).
		WithArgs("p1", "u1", "hello", "http://img", "f1", "", sqlmock.AnyArg(), sqlmock.AnyArg(), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.CreatePost(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreatePost_UnknownCreator(t *testing.T) {
	repo, mock, cleanup := setupPostMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO posts`)).
		WillReturnError(&pq.Error{Code: foreignKeyViolation, Message: "violates foreign key constraint"})

	err := repo.CreatePost(context.Background(), &models.Post{ID: "p1", CreatorID: "ghost"})
	if !errors.Is(err, gateway.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != foreignKeyViolation {
		t.Errorf("driver error lost from chain: %v", err)
	}
}

func TestGetPost_ScansArrays(t *testing.T) {
	repo, mock, cleanup := setupPostMock(t)
	defer cleanup()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ` + postColumns + ` FROM posts WHERE id = $1`)).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(postRowColumns).
			AddRow("p1", "u1", "hello", "http://img", "f1", "Lisbon", "{go,gopher}", "{u2}", int64(3), now, now))

	p, err := repo.GetPost(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Tags) != 2 || p.Tags[1] != "gopher" {
		t.Errorf("tags = %v; want [go gopher]", p.Tags)
	}
	if !p.LikedBy("u2") || p.Revision != 3 || p.Location != "Lisbon" {
		t.Errorf("unexpected post: %+v", p)
	}
}

func TestDeletePost_NotFound(t *testing.T) {
	repo, mock, cleanup := setupPostMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM posts WHERE id = $1`)).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.DeletePost(context.Background(), "missing"); !errors.Is(err, gateway.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListPosts_UnknownCursor(t *testing.T) {
	repo, mock, cleanup := setupPostMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1)`)).
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := repo.ListPosts(context.Background(), gateway.NewQuery(gateway.CursorAfter("gone")))
	if !errors.Is(err, gateway.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestListPosts(t *testing.T) {
	repo, mock, cleanup := setupPostMock(t)
	defer cleanup()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM posts WHERE creator_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`)).
		WithArgs("u1", 2).
		WillReturnRows(sqlmock.NewRows(postRowColumns).
			AddRow("p2", "u1", "b", "", "f2", "", "{}", "{}", int64(1), now.Add(time.Minute), now).
			AddRow("p1", "u1", "a", "", "f1", "", "{}", "{}", int64(1), now, now))

	posts, err := repo.ListPosts(context.Background(), gateway.NewQuery(
		gateway.Equal(gateway.FieldCreator, "u1"),
		gateway.OrderDesc(gateway.FieldCreatedAt),
		gateway.Limit(2),
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 2 || posts[0].ID != "p2" {
		t.Errorf("unexpected posts: %+v", posts)
	}
	if posts[1].Tags == nil || posts[1].LikerIDs == nil {
		t.Errorf("empty arrays should not decode as nil: %+v", posts[1])
	}
}

func TestGetPostsByIDs_KeepsRequestOrder(t *testing.T) {
	repo, mock, cleanup := setupPostMock(t)
	defer cleanup()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM posts WHERE id = ANY($1)`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(postRowColumns).
			AddRow("p1", "u1", "a", "", "f1", "", "{}", "{}", int64(1), now, now).
			AddRow("p3", "u1", "c", "", "f3", "", "{}", "{}", int64(1), now, now))

	posts, err := repo.GetPostsByIDs(context.Background(), []string{"p3", "p2", "p1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 2 || posts[0].ID != "p3" || posts[1].ID != "p1" {
		t.Errorf("unexpected order: %+v", posts)
	}
}

func TestUpdateLikes(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("matching revision", func(t *testing.T) {
		repo, mock, cleanup := setupPostMock(t)
		defer cleanup()

		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE posts`)).
			WithArgs("p1", sqlmock.AnyArg(), now, int64(2)).
			WillReturnRows(sqlmock.NewRows(postRowColumns).
				AddRow("p1", "u1", "a", "", "f1", "", "{}", "{u2}", int64(3), now, now))

		p, err := repo.UpdateLikes(context.Background(), "p1", []string{"u2"}, 2, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Revision != 3 || !p.LikedBy("u2") {
			t.Errorf("unexpected post: %+v", p)
		}
	})

	t.Run("stale revision", func(t *testing.T) {
		repo, mock, cleanup := setupPostMock(t)
		defer cleanup()

		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE posts`)).
			WillReturnRows(sqlmock.NewRows(postRowColumns))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1)`)).
			WithArgs("p1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := repo.UpdateLikes(context.Background(), "p1", nil, 2, now)
		if !errors.Is(err, gateway.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("missing post", func(t *testing.T) {
		repo, mock, cleanup := setupPostMock(t)
		defer cleanup()

		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE posts`)).
			WillReturnRows(sqlmock.NewRows(postRowColumns))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := repo.UpdateLikes(context.Background(), "p1", nil, 2, now)
		if !errors.Is(err, gateway.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("unconditional on missing post", func(t *testing.T) {
		repo, mock, cleanup := setupPostMock(t)
		defer cleanup()

		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE posts`)).
			WillReturnRows(sqlmock.NewRows(postRowColumns))

		_, err := repo.UpdateLikes(context.Background(), "p1", nil, 0, now)
		if !errors.Is(err, gateway.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
	})
}
