// Package repository provides the PostgreSQL persistence of the gateway
// server: accounts and sessions, profiles, posts, saves and stored files.
package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/couplegram/couplegram/internal/models"
)

// PostgresAuthRepository stores accounts and their sessions.
type PostgresAuthRepository struct {
	// DB is the database handle for executing queries.
	DB *sqlx.DB
}

// NewPostgresAuthRepository creates a new PostgresAuthRepository with the
// given database connection.
func NewPostgresAuthRepository(db *sql.DB) *PostgresAuthRepository {
	return &PostgresAuthRepository{DB: sqlx.NewDb(db, "postgres")}
}

// CreateAccount inserts a. A taken email yields gateway.ErrConflict.
func (r *PostgresAuthRepository) CreateAccount(ctx context.Context, a *models.Account) error {
	_, err := r.DB.NamedExecContext(ctx, `
		INSERT INTO accounts (id, email, name, password_hash, created_at)
		VALUES (:id, :email, :name, :password_hash, :created_at)
	`, a)
	return classify("create account", err)
}

// DeleteAccount removes an account together with its sessions and profile.
func (r *PostgresAuthRepository) DeleteAccount(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return classify("delete account", err)
	}
	return affected("delete account", res)
}

// GetAccount fetches an account by id.
func (r *PostgresAuthRepository) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var a models.Account
	err := r.DB.GetContext(ctx, &a, `
		SELECT id, email, name, password_hash, created_at FROM accounts WHERE id = $1
	`, id)
	if err != nil {
		return nil, classify("get account", err)
	}
	return &a, nil
}

// GetAccountByEmail fetches an account by its login address.
func (r *PostgresAuthRepository) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var a models.Account
	err := r.DB.GetContext(ctx, &a, `
		SELECT id, email, name, password_hash, created_at FROM accounts WHERE email = $1
	`, email)
	if err != nil {
		return nil, classify("get account by email", err)
	}
	return &a, nil
}

// CreateSession inserts s.
func (r *PostgresAuthRepository) CreateSession(ctx context.Context, s *models.Session) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO sessions (id, account_id, expires_at, created_at) VALUES ($1, $2, $3, $4)
	`, s.ID, s.AccountID, s.ExpiresAt, s.CreatedAt)
	return classify("create session", err)
}

// GetSession fetches a session by id.
func (r *PostgresAuthRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	err := r.DB.GetContext(ctx, &s, `
		SELECT id, account_id, expires_at, created_at FROM sessions WHERE id = $1
	`, id)
	if err != nil {
		return nil, classify("get session", err)
	}
	return &s, nil
}

// DeleteSession removes a session.
func (r *PostgresAuthRepository) DeleteSession(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return classify("delete session", err)
	}
	return affected("delete session", res)
}
