package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/models"
)

const userColumns = "id, account_id, name, username, email, bio, image_url, image_id, created_at, updated_at"

// PostgresUserRepository stores user profiles.
type PostgresUserRepository struct {
	DB *sqlx.DB
}

// NewPostgresUserRepository creates a new PostgresUserRepository.
func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{DB: sqlx.NewDb(db, "postgres")}
}

// CreateUser inserts u. A taken username or account yields ErrConflict.
func (r *PostgresUserRepository) CreateUser(ctx context.Context, u *models.UserProfile) error {
	_, err := r.DB.NamedExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (:id, :account_id, :name, :username, :email, :bio, :image_url, :image_id, :created_at, :updated_at)
	`, u)
	return classify("create user", err)
}

// GetUser fetches a profile by id.
func (r *PostgresUserRepository) GetUser(ctx context.Context, id string) (*models.UserProfile, error) {
	var u models.UserProfile
	if err := r.DB.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		return nil, classify("get user", err)
	}
	return &u, nil
}

// UpdateUser writes the editable fields of u and returns the stored row.
func (r *PostgresUserRepository) UpdateUser(ctx context.Context, u *models.UserProfile) (*models.UserProfile, error) {
	var out models.UserProfile
	err := r.DB.GetContext(ctx, &out, `
		UPDATE users
		   SET name = $2, username = $3, email = $4, bio = $5, image_url = $6, image_id = $7, updated_at = $8
		 WHERE id = $1
		RETURNING `+userColumns,
		u.ID, u.Name, u.Username, u.Email, u.Bio, u.ImageURL, u.ImageID, u.UpdatedAt)
	if err != nil {
		return nil, classify("update user", err)
	}
	return &out, nil
}

// ListUsers runs q over the profiles.
func (r *PostgresUserRepository) ListUsers(ctx context.Context, q gateway.Query) ([]models.UserProfile, error) {
	if err := cursorExists(ctx, r.DB, "users", q); err != nil {
		return nil, err
	}
	stmt, args, err := userListing.build(q)
	if err != nil {
		return nil, err
	}
	users := make([]models.UserProfile, 0)
	if err := r.DB.SelectContext(ctx, &users, stmt, args...); err != nil {
		return nil, classify("list users", err)
	}
	return users, nil
}

// cursorExists rejects a cursor naming a row that is not in table.
func cursorExists(ctx context.Context, db *sqlx.DB, table string, q gateway.Query) error {
	cursor := q.Cursor()
	if cursor == "" {
		return nil
	}
	var ok bool
	if err := db.GetContext(ctx, &ok, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, cursor); err != nil {
		return classify("check cursor", err)
	}
	if !ok {
		return gateway.Invalidf("cursor %q not found", cursor)
	}
	return nil
}
