package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/models"
)

const postColumns = "id, creator_id, caption, image_url, image_id, location, tags, likers, revision, created_at, updated_at"

type postRow struct {
	ID        string         `db:"id"`
	CreatorID string         `db:"creator_id"`
	Caption   string         `db:"caption"`
	ImageURL  string         `db:"image_url"`
	ImageID   string         `db:"image_id"`
	Location  string         `db:"location"`
	Tags      pq.StringArray `db:"tags"`
	Likers    pq.StringArray `db:"likers"`
	Revision  int64          `db:"revision"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r postRow) model() models.Post {
	return models.Post{
		ID:        r.ID,
		CreatorID: r.CreatorID,
		Caption:   r.Caption,
		ImageURL:  r.ImageURL,
		ImageID:   r.ImageID,
		Location:  r.Location,
		Tags:      append([]string{}, r.Tags...),
		LikerIDs:  append([]string{}, r.Likers...),
		Revision:  r.Revision,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// PostgresPostRepository stores posts.
type PostgresPostRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sqlx.DB
}

// NewPostgresPostRepository creates a new PostgresPostRepository.
func NewPostgresPostRepository(db *sql.DB) *PostgresPostRepository {
	return &PostgresPostRepository{DB: sqlx.NewDb(db, "postgres")}
}

// CreatePost inserts p at revision 1.
func (r *PostgresPostRepository) CreatePost(ctx context.Context, p *models.Post) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO posts (`+postColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)
	`, p.ID, p.CreatorID, p.Caption, p.ImageURL, p.ImageID, p.Location,
		pq.Array(p.Tags), pq.Array(p.LikerIDs), p.CreatedAt, p.UpdatedAt)
	return classify("create post", err)
}

// GetPost fetches a post by id.
func (r *PostgresPostRepository) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var row postRow
	if err := r.DB.GetContext(ctx, &row, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id); err != nil {
		return nil, classify("get post", err)
	}
	p := row.model()
	return &p, nil
}

// UpdatePost writes caption, location, tags and image reference, bumping
// the revision.
func (r *PostgresPostRepository) UpdatePost(ctx context.Context, p *models.Post) (*models.Post, error) {
	var row postRow
	err := r.DB.GetContext(ctx, &row, `
		UPDATE posts
		   SET caption = $2, location = $3, tags = $4, image_url = $5, image_id = $6,
		       revision = revision + 1, updated_at = $7
		 WHERE id = $1
		RETURNING `+postColumns,
		p.ID, p.Caption, p.Location, pq.Array(p.Tags), p.ImageURL, p.ImageID, p.UpdatedAt)
	if err != nil {
		return nil, classify("update post", err)
	}
	out := row.model()
	return &out, nil
}

// DeletePost removes a post; its save records go with it.
func (r *PostgresPostRepository) DeletePost(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return classify("delete post", err)
	}
	return affected("delete post", res)
}

// ListPosts runs q over the posts.
func (r *PostgresPostRepository) ListPosts(ctx context.Context, q gateway.Query) ([]models.Post, error) {
	if err := cursorExists(ctx, r.DB, "posts", q); err != nil {
		return nil, err
	}
	stmt, args, err := postListing.build(q)
	if err != nil {
		return nil, err
	}
	return r.selectPosts(ctx, "list posts", stmt, args...)
}

// GetPostsByIDs returns the posts with the given ids in the order of ids,
// skipping ids that no longer exist.
func (r *PostgresPostRepository) GetPostsByIDs(ctx context.Context, ids []string) ([]models.Post, error) {
	if len(ids) == 0 {
		return []models.Post{}, nil
	}
	posts, err := r.selectPosts(ctx, "get posts by ids",
		`SELECT `+postColumns+` FROM posts WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Post, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
	}
	out := make([]models.Post, 0, len(posts))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// UpdateLikes replaces the liker list. A non-zero revision makes the write
// conditional on the stored revision; a mismatch yields ErrConflict.
func (r *PostgresPostRepository) UpdateLikes(ctx context.Context, id string, likers []string, revision int64, now time.Time) (*models.Post, error) {
	var row postRow
	err := r.DB.GetContext(ctx, &row, `
		UPDATE posts
		   SET likers = $2, revision = revision + 1, updated_at = $3
		 WHERE id = $1 AND ($4 = 0 OR revision = $4)
		RETURNING `+postColumns,
		id, pq.Array(likers), now, revision)
	if err == nil {
		p := row.model()
		return &p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) || revision == 0 {
		return nil, classify("update likes", err)
	}

	var exists bool
	if err := r.DB.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1)`, id); err != nil {
		return nil, classify("update likes", err)
	}
	if !exists {
		return nil, fmt.Errorf("update likes: %w", gateway.ErrNotFound)
	}
	return nil, fmt.Errorf("update likes: %w: post %s moved past revision %d", gateway.ErrConflict, id, revision)
}

func (r *PostgresPostRepository) selectPosts(ctx context.Context, op, stmt string, args ...any) ([]models.Post, error) {
	var rows []postRow
	if err := r.DB.SelectContext(ctx, &rows, stmt, args...); err != nil {
		return nil, classify(op, err)
	}
	posts := make([]models.Post, 0, len(rows))
	for _, row := range rows {
		posts = append(posts, row.model())
	}
	return posts, nil
}
