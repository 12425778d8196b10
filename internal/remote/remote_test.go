package remote_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/gateway/memory"
	"github.com/couplegram/couplegram/internal/models"
	"github.com/couplegram/couplegram/internal/remote"
)

// tickingClock advances one second per reading so documents get distinct,
// strictly increasing timestamps.
func tickingClock() func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

type fixture struct {
	gw   *memory.Gateway
	ops  *remote.Ops
	user *models.UserProfile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gw := memory.New(memory.WithClock(tickingClock()))
	ops := remote.New(gw, nil)
	ctx := context.Background()

	user, err := ops.CreateAccount(ctx, models.NewUser{
		Name: "Ada Lovelace", Username: "ada", Email: "ada@example.com", Password: "correct-horse",
	})
	require.NoError(t, err)
	_, err = ops.SignIn(ctx, "ada@example.com", "correct-horse")
	require.NoError(t, err)
	return &fixture{gw: gw, ops: ops, user: user}
}

func image(name string) models.File {
	return models.File{Name: name, Reader: strings.NewReader("\x89PNG fake image " + name)}
}

func (f *fixture) post(t *testing.T, caption string) *models.Post {
	t.Helper()
	p, err := f.ops.CreatePost(context.Background(), models.NewPost{
		CreatorID: f.user.ID,
		File:      image(caption + ".png"),
		Caption:   caption,
		Tags:      "a,b",
	})
	require.NoError(t, err)
	return p
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"travel, food,Japan", []string{"travel", "food", "Japan"}},
		{"", []string{}},
		{" solo ", []string{"solo"}},
		{"a,,b, ,", []string{"a", "b"}},
		{"new york,la", []string{"newyork", "la"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, remote.ParseTags(tt.in))
		})
	}
}

func TestCreateAccount_CurrentUserMatchesAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acc, err := f.gw.GetAccount(ctx)
	require.NoError(t, err)

	me, err := f.ops.GetCurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, me.AccountID)
	assert.Equal(t, "ada", me.Username)
	assert.Contains(t, me.ImageURL, "/v1/avatars/initials")
}

func TestGetCurrentUser_SignedOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ops.SignOut(ctx))

	_, err := f.ops.GetCurrentUser(ctx)
	assert.ErrorIs(t, err, remote.ErrNoCurrentUser)
}

func TestCreateAccount_ProfileFailureRemovesAccount(t *testing.T) {
	gw := memory.New()
	ops := remote.New(gw, nil)
	ctx := context.Background()

	gw.FailNext("CreateUser", fmt.Errorf("%w: username taken", gateway.ErrConflict))
	_, err := ops.CreateAccount(ctx, models.NewUser{
		Name: "Bob", Username: "bob", Email: "bob@example.com", Password: "hunter2hunter2",
	})
	require.ErrorIs(t, err, gateway.ErrConflict)
	assert.Equal(t, 1, gw.Calls("DeleteAccount"))

	_, err = ops.SignIn(ctx, "bob@example.com", "hunter2hunter2")
	assert.ErrorIs(t, err, gateway.ErrUnauthorized)
}

func TestCreatePost(t *testing.T) {
	f := newFixture(t)
	p, err := f.ops.CreatePost(context.Background(), models.NewPost{
		CreatorID: f.user.ID,
		File:      image("tokyo.png"),
		Caption:   "ramen night",
		Location:  "Tokyo",
		Tags:      "travel, food,Japan",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"travel", "food", "Japan"}, p.Tags)
	assert.NotEmpty(t, p.ImageID)
	assert.Contains(t, p.ImageURL, p.ImageID)
	assert.Equal(t, 1, f.gw.FileCount())
}

func TestCreatePost_Cleanup(t *testing.T) {
	tests := []struct {
		name   string
		method string
	}{
		{"document create fails", "CreatePost"},
		{"preview derivation fails", "FilePreview"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.gw.FailNext(tt.method, gateway.ErrTransient)

			_, err := f.ops.CreatePost(context.Background(), models.NewPost{
				CreatorID: f.user.ID, File: image("x.png"), Caption: "x",
			})
			require.ErrorIs(t, err, gateway.ErrTransient)
			assert.Equal(t, 0, f.gw.FileCount(), "uploaded file must be removed")
		})
	}
}

func TestUpdatePost(t *testing.T) {
	t.Run("new image replaces previous", func(t *testing.T) {
		f := newFixture(t)
		p := f.post(t, "before")
		ctx := context.Background()

		newImage := image("after.png")
		updated, err := f.ops.UpdatePost(ctx, models.UpdatePost{
			PostID: p.ID, File: &newImage, Caption: "after", Tags: "x, y",
			ImageURL: p.ImageURL, ImageID: p.ImageID,
		})
		require.NoError(t, err)
		assert.NotEqual(t, p.ImageID, updated.ImageID)
		assert.Equal(t, []string{"x", "y"}, updated.Tags)
		assert.Equal(t, 1, f.gw.FileCount())

		_, err = f.gw.FilePreview(ctx, p.ImageID)
		assert.ErrorIs(t, err, gateway.ErrNotFound)
	})

	t.Run("failed update keeps previous image", func(t *testing.T) {
		f := newFixture(t)
		p := f.post(t, "before")
		ctx := context.Background()
		f.gw.FailNext("UpdatePost", gateway.ErrTransient)

		newImage := image("after.png")
		_, err := f.ops.UpdatePost(ctx, models.UpdatePost{
			PostID: p.ID, File: &newImage, Caption: "after",
			ImageURL: p.ImageURL, ImageID: p.ImageID,
		})
		require.Error(t, err)
		assert.Equal(t, 1, f.gw.FileCount())
		_, err = f.gw.FilePreview(ctx, p.ImageID)
		assert.NoError(t, err)
	})

	t.Run("no file keeps image reference", func(t *testing.T) {
		f := newFixture(t)
		p := f.post(t, "before")

		updated, err := f.ops.UpdatePost(context.Background(), models.UpdatePost{
			PostID: p.ID, Caption: "after", ImageURL: p.ImageURL, ImageID: p.ImageID,
		})
		require.NoError(t, err)
		assert.Equal(t, p.ImageURL, updated.ImageURL)
		assert.Equal(t, p.ImageID, updated.ImageID)
		assert.Equal(t, 0, f.gw.Calls("DeleteFile"))
	})
}

func TestDeletePost(t *testing.T) {
	f := newFixture(t)
	p := f.post(t, "bye")
	ctx := context.Background()

	require.NoError(t, f.ops.DeletePost(ctx, p.ID, p.ImageID))

	_, err := f.ops.GetPostByID(ctx, p.ID)
	assert.ErrorIs(t, err, gateway.ErrNotFound)
	_, err = f.gw.FilePreview(ctx, p.ImageID)
	assert.ErrorIs(t, err, gateway.ErrNotFound)

	assert.ErrorIs(t, f.ops.DeletePost(ctx, "", p.ImageID), gateway.ErrInvalid)
}

func TestDeletePost_FileFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	p := f.post(t, "bye")
	f.gw.FailNext("DeleteFile", gateway.ErrTransient)

	assert.NoError(t, f.ops.DeletePost(context.Background(), p.ID, p.ImageID))
}

func TestLikePost_PersistsListWithoutDuplicates(t *testing.T) {
	f := newFixture(t)
	p := f.post(t, "likes")

	got, err := f.ops.LikePost(context.Background(), p.ID, []string{"u1", "u2", "u1", "u3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, got.LikerIDs)

	got, err = f.ops.LikePost(context.Background(), p.ID, []string{"u3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u3"}, got.LikerIDs)
}

func TestSetLiked_ConcurrentLikersAreAllKept(t *testing.T) {
	f := newFixture(t)
	p := f.post(t, "popular")
	ctx := context.Background()

	const n = 6
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.ops.SetLiked(ctx, p.ID, fmt.Sprintf("user-%d", i), true)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := f.ops.GetPostByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, got.LikerIDs, n)
}

func TestToggleLike(t *testing.T) {
	f := newFixture(t)
	p := f.post(t, "toggle")
	ctx := context.Background()

	got, err := f.ops.ToggleLike(ctx, p.ID, f.user.ID)
	require.NoError(t, err)
	assert.True(t, got.LikedBy(f.user.ID))

	got, err = f.ops.ToggleLike(ctx, p.ID, f.user.ID)
	require.NoError(t, err)
	assert.False(t, got.LikedBy(f.user.ID))

	liked, err := f.ops.GetLikedPosts(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, liked)
}

func TestSetLiked_PermanentErrorStopsRetrying(t *testing.T) {
	f := newFixture(t)
	_, err := f.ops.SetLiked(context.Background(), "missing", f.user.ID, true)
	require.ErrorIs(t, err, gateway.ErrNotFound)
	assert.Equal(t, 1, f.gw.Calls("GetPost"))
}

func TestSaveThenUnsave(t *testing.T) {
	f := newFixture(t)
	p := f.post(t, "keeper")
	ctx := context.Background()

	rec, err := f.ops.SavePost(ctx, p.ID, f.user.ID)
	require.NoError(t, err)

	_, err = f.ops.SavePost(ctx, p.ID, f.user.ID)
	assert.ErrorIs(t, err, gateway.ErrConflict)

	saved, err := f.ops.GetSavedPosts(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, p.ID, saved[0].ID)

	require.NoError(t, f.ops.DeleteSavePost(ctx, rec.ID))

	records, err := f.ops.GetSaveRecords(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
	saved, err = f.ops.GetSavedPosts(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestListInfinitePosts_DisjointDescendingPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 23; i++ {
		f.post(t, fmt.Sprintf("post %d", i))
	}

	seen := map[string]bool{}
	var last time.Time
	cursor := ""
	pages := 0
	for {
		page, err := f.ops.ListInfinitePosts(ctx, cursor)
		require.NoError(t, err)
		pages++
		if len(page.Documents) == 0 {
			assert.Empty(t, page.NextCursor)
			break
		}
		assert.LessOrEqual(t, len(page.Documents), remote.InfinitePageSize)
		for _, p := range page.Documents {
			assert.False(t, seen[p.ID], "post %s returned twice", p.ID)
			seen[p.ID] = true
			if !last.IsZero() {
				assert.True(t, p.UpdatedAt.Before(last), "pages must be strictly descending")
			}
			last = p.UpdatedAt
		}
		cursor = page.NextCursor
		require.Less(t, pages, 10)
	}
	assert.Len(t, seen, 23)
	assert.Equal(t, 4, pages)
}

func TestListRecentPostsAndUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		f.post(t, fmt.Sprintf("p%d", i))
	}
	recent, err := f.ops.ListRecentPosts(ctx)
	require.NoError(t, err)
	require.Len(t, recent, remote.RecentPostsLimit)
	assert.Equal(t, "p24", recent[0].Caption)

	users, err := f.ops.ListUsers(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	mine, err := f.ops.GetUserPosts(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 25)
	related, err := f.ops.GetRelatedPosts(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, mine, related)
}

func TestSearchPosts(t *testing.T) {
	f := newFixture(t)
	f.post(t, "Sunset over Kyoto")
	f.post(t, "breakfast")
	ctx := context.Background()

	got, err := f.ops.SearchPosts(ctx, "kyoto")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Sunset over Kyoto", got[0].Caption)

	_, err = f.ops.SearchPosts(ctx, "")
	assert.ErrorIs(t, err, gateway.ErrInvalid)
}

func TestUpdateUser_WithoutFileKeepsImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	updated, err := f.ops.UpdateUser(ctx, models.UpdateUser{
		UserID: f.user.ID, Name: "Ada L.", Username: "ada", Email: f.user.Email, Bio: "engines",
		ImageURL: f.user.ImageURL, ImageID: f.user.ImageID,
	})
	require.NoError(t, err)
	assert.Equal(t, f.user.ImageURL, updated.ImageURL)
	assert.Equal(t, f.user.ImageID, updated.ImageID)
	assert.Equal(t, "engines", updated.Bio)
	assert.Equal(t, 0, f.gw.Calls("DeleteFile"))
	assert.Equal(t, 0, f.gw.Calls("CreateFile"))
}

func TestUpdateUser_NewImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := image("me.png")
	u1, err := f.ops.UpdateUser(ctx, models.UpdateUser{
		UserID: f.user.ID, Name: "Ada", Username: "ada", File: &first,
		ImageURL: f.user.ImageURL, ImageID: f.user.ImageID,
	})
	require.NoError(t, err)
	require.NotEmpty(t, u1.ImageID)

	second := image("me2.png")
	u2, err := f.ops.UpdateUser(ctx, models.UpdateUser{
		UserID: f.user.ID, Name: "Ada", Username: "ada", File: &second,
		ImageURL: u1.ImageURL, ImageID: u1.ImageID,
	})
	require.NoError(t, err)
	assert.NotEqual(t, u1.ImageID, u2.ImageID)
	assert.Equal(t, 1, f.gw.FileCount())
}

func TestOperationsKeepErrorKinds(t *testing.T) {
	f := newFixture(t)
	_, err := f.ops.GetUserByID(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, gateway.ErrNotFound))
	assert.Contains(t, err.Error(), "get user")
}
