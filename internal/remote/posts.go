package remote

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/models"
)

// maxLikeAttempts bounds the compare-and-swap retries of SetLiked.
const maxLikeAttempts = 8

// CreatePost uploads the image, then stores the post document. Any failure
// after the upload removes the uploaded file.
func (o *Ops) CreatePost(ctx context.Context, p models.NewPost) (*models.Post, error) {
	const op = "create post"
	if p.CreatorID == "" {
		return nil, o.fail(op, gateway.Invalidf("missing creator"))
	}
	stored, url, err := o.uploadImage(ctx, p.File)
	if err != nil {
		return nil, o.fail(op, err)
	}

	post, err := o.gw.CreatePost(ctx, &models.Post{
		CreatorID: p.CreatorID,
		Caption:   p.Caption,
		ImageURL:  url,
		ImageID:   stored.ID,
		Location:  p.Location,
		Tags:      ParseTags(p.Tags),
	})
	if err != nil {
		o.discardFile(ctx, stored.ID)
		return nil, o.fail(op, err)
	}
	return post, nil
}

// GetPostByID fetches a single post.
func (o *Ops) GetPostByID(ctx context.Context, id string) (*models.Post, error) {
	if id == "" {
		return nil, o.fail("get post", gateway.Invalidf("missing post id"))
	}
	p, err := o.gw.GetPost(ctx, id)
	if err != nil {
		return nil, o.fail("get post", err)
	}
	return p, nil
}

// UpdatePost edits caption, location and tags, and replaces the image when a
// new file is supplied. The previous file is deleted only once the post
// references the new one; if the document update fails the new upload is
// removed and the previous image is left in place.
func (o *Ops) UpdatePost(ctx context.Context, p models.UpdatePost) (*models.Post, error) {
	const op = "update post"
	if p.PostID == "" {
		return nil, o.fail(op, gateway.Invalidf("missing post id"))
	}
	imageURL, imageID := p.ImageURL, p.ImageID
	if p.File != nil {
		stored, url, err := o.uploadImage(ctx, *p.File)
		if err != nil {
			return nil, o.fail(op, err)
		}
		imageURL, imageID = url, stored.ID
	}

	post, err := o.gw.UpdatePost(ctx, &models.Post{
		ID:       p.PostID,
		Caption:  p.Caption,
		Location: p.Location,
		Tags:     ParseTags(p.Tags),
		ImageURL: imageURL,
		ImageID:  imageID,
	})
	if err != nil {
		if p.File != nil {
			o.discardFile(ctx, imageID)
		}
		return nil, o.fail(op, err)
	}
	if p.File != nil && p.ImageID != imageID {
		o.discardFile(ctx, p.ImageID)
	}
	return post, nil
}

// DeletePost deletes the post and then, best-effort, its image. It succeeds
// when the document was deleted.
func (o *Ops) DeletePost(ctx context.Context, postID, imageID string) error {
	const op = "delete post"
	if postID == "" || imageID == "" {
		return o.fail(op, gateway.Invalidf("post id and image id are required"))
	}
	if err := o.gw.DeletePost(ctx, postID); err != nil {
		return o.fail(op, err)
	}
	o.discardFile(ctx, imageID)
	return nil
}

// LikePost replaces the whole liker list of a post. Duplicates are dropped
// before the write. Concurrent writers race; SetLiked does not.
func (o *Ops) LikePost(ctx context.Context, postID string, likerIDs []string) (*models.Post, error) {
	p, err := o.gw.UpdateLikes(ctx, postID, gateway.DedupIDs(likerIDs), 0)
	if err != nil {
		return nil, o.fail("like post", err)
	}
	return p, nil
}

// ToggleLike flips userID's like on the authoritative post.
func (o *Ops) ToggleLike(ctx context.Context, postID, userID string) (*models.Post, error) {
	p, err := o.gw.GetPost(ctx, postID)
	if err != nil {
		return nil, o.fail("toggle like", err)
	}
	return o.SetLiked(ctx, postID, userID, !p.LikedBy(userID))
}

// SetLiked adds or removes userID from the likers of a post with a
// compare-and-swap on the post revision, re-reading and retrying when
// another writer got there first. It is idempotent.
func (o *Ops) SetLiked(ctx context.Context, postID, userID string, liked bool) (*models.Post, error) {
	const op = "set liked"
	if postID == "" || userID == "" {
		return nil, o.fail(op, gateway.Invalidf("post id and user id are required"))
	}

	var result *models.Post
	attempt := func() error {
		cur, err := o.gw.GetPost(ctx, postID)
		if err != nil {
			if gateway.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if cur.LikedBy(userID) == liked {
			result = cur
			return nil
		}
		likers := slices.DeleteFunc(slices.Clone(cur.LikerIDs), func(id string) bool { return id == userID })
		if liked {
			likers = append(likers, userID)
		}
		updated, err := o.gw.UpdateLikes(ctx, postID, likers, cur.Revision)
		switch {
		case err == nil:
			result = updated
			return nil
		case errors.Is(err, gateway.ErrConflict), gateway.IsRetryable(err):
			o.log.Debug("like write lost the race, retrying", zap.String("post_id", postID))
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(o.likeBackOff(), maxLikeAttempts-1), ctx)
	if err := backoff.Retry(attempt, b); err != nil {
		return nil, o.fail(op, err)
	}
	return result, nil
}

func (o *Ops) likeBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 3 * time.Second
	return b
}

// SavePost bookmarks a post for a user.
func (o *Ops) SavePost(ctx context.Context, postID, userID string) (*models.SaveRecord, error) {
	s, err := o.gw.CreateSave(ctx, userID, postID)
	if err != nil {
		return nil, o.fail("save post", err)
	}
	return s, nil
}

// DeleteSavePost removes a bookmark.
func (o *Ops) DeleteSavePost(ctx context.Context, saveRecordID string) error {
	if saveRecordID == "" {
		return o.fail("delete saved post", gateway.Invalidf("missing save record id"))
	}
	if err := o.gw.DeleteSave(ctx, saveRecordID); err != nil {
		return o.fail("delete saved post", err)
	}
	return nil
}

// ListRecentPosts returns the newest posts.
func (o *Ops) ListRecentPosts(ctx context.Context) ([]models.Post, error) {
	posts, err := o.gw.ListPosts(ctx, gateway.NewQuery(
		gateway.OrderDesc(gateway.FieldCreatedAt),
		gateway.Limit(RecentPostsLimit),
	))
	if err != nil {
		return nil, o.fail("list recent posts", err)
	}
	return posts, nil
}

// ListInfinitePosts returns the page after cursor, most recently updated
// first. An empty cursor starts from the top; an empty page ends the listing.
func (o *Ops) ListInfinitePosts(ctx context.Context, cursor string) (*models.PostPage, error) {
	q := gateway.NewQuery(gateway.OrderDesc(gateway.FieldUpdatedAt), gateway.Limit(InfinitePageSize))
	if cursor != "" {
		q = append(q, gateway.CursorAfter(cursor))
	}
	posts, err := o.gw.ListPosts(ctx, q)
	if err != nil {
		return nil, o.fail("list posts", err)
	}
	page := &models.PostPage{Documents: posts}
	if len(posts) > 0 {
		page.NextCursor = posts[len(posts)-1].ID
	}
	return page, nil
}

// SearchPosts runs a caption search.
func (o *Ops) SearchPosts(ctx context.Context, term string) ([]models.Post, error) {
	if term == "" {
		return nil, o.fail("search posts", gateway.Invalidf("empty search term"))
	}
	posts, err := o.gw.ListPosts(ctx, gateway.NewQuery(gateway.Search(gateway.FieldCaption, term)))
	if err != nil {
		return nil, o.fail("search posts", err)
	}
	return posts, nil
}

// GetUserPosts returns the posts authored by userID, newest first.
func (o *Ops) GetUserPosts(ctx context.Context, userID string) ([]models.Post, error) {
	return o.postsByCreator(ctx, "get user posts", userID)
}

// GetRelatedPosts returns the other posts of a post's author, newest first.
func (o *Ops) GetRelatedPosts(ctx context.Context, userID string) ([]models.Post, error) {
	return o.postsByCreator(ctx, "get related posts", userID)
}

func (o *Ops) postsByCreator(ctx context.Context, op, userID string) ([]models.Post, error) {
	if userID == "" {
		return nil, o.fail(op, gateway.Invalidf("missing user id"))
	}
	posts, err := o.gw.ListPosts(ctx, gateway.NewQuery(
		gateway.Equal(gateway.FieldCreator, userID),
		gateway.OrderDesc(gateway.FieldCreatedAt),
	))
	if err != nil {
		return nil, o.fail(op, err)
	}
	return posts, nil
}

// GetSaveRecords returns the save records of a user, newest first.
func (o *Ops) GetSaveRecords(ctx context.Context, userID string) ([]models.SaveRecord, error) {
	if userID == "" {
		return nil, o.fail("get save records", gateway.Invalidf("missing user id"))
	}
	saves, err := o.gw.ListSaves(ctx, gateway.NewQuery(
		gateway.Equal(gateway.FieldUser, userID),
		gateway.OrderDesc(gateway.FieldCreatedAt),
	))
	if err != nil {
		return nil, o.fail("get save records", err)
	}
	return saves, nil
}

// GetSavedPosts returns the posts a user saved, most recently saved first.
// Posts deleted since they were saved are skipped.
func (o *Ops) GetSavedPosts(ctx context.Context, userID string) ([]models.Post, error) {
	saves, err := o.GetSaveRecords(ctx, userID)
	if err != nil {
		return nil, err
	}
	posts := make([]models.Post, 0, len(saves))
	for _, s := range saves {
		p, err := o.gw.GetPost(ctx, s.PostID)
		if errors.Is(err, gateway.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, o.fail("get saved posts", err)
		}
		posts = append(posts, *p)
	}
	return posts, nil
}

// GetLikedPosts returns the posts a user liked, newest first.
func (o *Ops) GetLikedPosts(ctx context.Context, userID string) ([]models.Post, error) {
	if userID == "" {
		return nil, o.fail("get liked posts", gateway.Invalidf("missing user id"))
	}
	posts, err := o.gw.ListPosts(ctx, gateway.NewQuery(
		gateway.Equal(gateway.FieldLikes, userID),
		gateway.OrderDesc(gateway.FieldCreatedAt),
	))
	if err != nil {
		return nil, o.fail("get liked posts", err)
	}
	return posts, nil
}
