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

func setupAuthMock(t *testing.T) (*PostgresAuthRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	repo := NewPostgresAuthRepository(db)
	cleanup := func() { db.Close() }
	return repo, mock, cleanup
}

func TestCreateAccount(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a := &models.Account{ID: "a1", Email: "alice@example.com", Name: "Alice", PasswordHash: []byte("hash"), CreatedAt: now}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO accounts (id, email, name, password_hash, created_at)`)).
		WithArgs("a1", "alice@example.com", "Alice", []byte("hash"), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateAccount_DuplicateEmail(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO accounts`)).
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "accounts_email_key"})

	err := repo.CreateAccount(context.Background(), &models.Account{ID: "a1", Email: "alice@example.com"})
	if !errors.Is(err, gateway.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		t.Errorf("driver error lost from chain: %v", err)
	}
}

func TestDeleteAccount_NotFound(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM accounts WHERE id = $1`)).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.DeleteAccount(context.Background(), "missing"); !errors.Is(err, gateway.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetAccountByEmail(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, email, name, password_hash, created_at FROM accounts WHERE email = $1`)).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "created_at"}).
			AddRow("a1", "alice@example.com", "Alice", []byte("hash"), now))

	a, err := repo.GetAccountByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID != "a1" || string(a.PasswordHash) != "hash" || !a.CreatedAt.Equal(now) {
		t.Errorf("unexpected account: %+v", a)
	}
}

func TestGetAccount_NotFound(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM accounts WHERE id = $1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "created_at"}))

	if _, err := repo.GetAccount(context.Background(), "missing"); !errors.Is(err, gateway.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := &models.Session{ID: "s1", AccountID: "a1", Token: "secret", ExpiresAt: now.Add(time.Hour), CreatedAt: now}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO sessions (id, account_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`)).
		WithArgs("s1", "a1", now.Add(time.Hour), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, account_id, expires_at, created_at FROM sessions WHERE id = $1`)).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "expires_at", "created_at"}).
			AddRow("s1", "a1", now.Add(time.Hour), now))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sessions WHERE id = $1`)).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	if err := repo.CreateSession(ctx, s); err != nil {
		t.Fatalf("create session: %v", err)
	}
	got, err := repo.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.AccountID != "a1" || got.Token != "" {
		t.Errorf("unexpected session: %+v", got)
	}
	if err := repo.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
