package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/models"
)

// AuthRepository defines the persistence operations
// required by the authentication service.
type AuthRepository interface {
	CreateAccount(ctx context.Context, a *models.Account) error
	DeleteAccount(ctx context.Context, id string) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

const (
	// DefaultSessionTTL is how long a session token stays valid.
	DefaultSessionTTL = 365 * 24 * time.Hour
	minPasswordLen    = 8
	maxPasswordLen    = 72
)

var errBadCredentials = fmt.Errorf("%w: invalid credentials", gateway.ErrUnauthorized)

// AuthOptions tunes an AuthService. Zero values pick the defaults.
type AuthOptions struct {
	SessionTTL time.Duration
	BcryptCost int
	Now        func() time.Time
}

// AuthService manages accounts and the sessions proving them. A session
// token is an HS256 JWT whose jti is the session id, so deleting the session
// row revokes the token.
type AuthService struct {
	repo   AuthRepository
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

// NewAuthService constructs a new AuthService signing tokens with secret.
func NewAuthService(repo AuthRepository, secret []byte, opts AuthOptions) *AuthService {
	s := &AuthService{repo: repo, secret: secret, ttl: opts.SessionTTL, cost: opts.BcryptCost, now: opts.Now}
	if s.ttl <= 0 {
		s.ttl = DefaultSessionTTL
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CreateAccount registers an account and opens a first session for it, so
// the caller can attach a profile right away.
func (s *AuthService) CreateAccount(ctx context.Context, email, password, name string) (*models.Account, *models.Session, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, nil, gateway.Invalidf("invalid email %q", email)
	}
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return nil, nil, gateway.Invalidf("password must be %d to %d bytes", minPasswordLen, maxPasswordLen)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, gateway.Invalidf("name is required")
	}
	if err := checkLen("name", name, MaxNameLen); err != nil {
		return nil, nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}
	a := &models.Account{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateAccount(ctx, a); err != nil {
		return nil, nil, err
	}
	sess, err := s.openSession(ctx, a.ID)
	if err != nil {
		return nil, nil, err
	}
	a.PasswordHash = nil
	return a, sess, nil
}

// DeleteAccount removes the caller's own account.
func (s *AuthService) DeleteAccount(ctx context.Context, caller Identity, id string) error {
	if id != caller.AccountID {
		return ErrForbidden
	}
	return s.repo.DeleteAccount(ctx, id)
}

// GetAccount returns the caller's account.
func (s *AuthService) GetAccount(ctx context.Context, caller Identity) (*models.Account, error) {
	a, err := s.repo.GetAccount(ctx, caller.AccountID)
	if errors.Is(err, gateway.ErrNotFound) {
		return nil, gateway.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	a.PasswordHash = nil
	return a, nil
}

// CreateSession checks email and password and opens a session.
func (s *AuthService) CreateSession(ctx context.Context, email, password string) (*models.Session, error) {
	a, err := s.repo.GetAccountByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, gateway.ErrNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(password)) != nil {
		return nil, errBadCredentials
	}
	return s.openSession(ctx, a.ID)
}

// DeleteSession revokes a session of the caller. gateway.CurrentSession
// names the session the request was made with.
func (s *AuthService) DeleteSession(ctx context.Context, caller Identity, id string) error {
	if id == gateway.CurrentSession {
		id = caller.SessionID
	}
	sess, err := s.repo.GetSession(ctx, id)
	if errors.Is(err, gateway.ErrNotFound) {
		return gateway.ErrUnauthorized
	}
	if err != nil {
		return err
	}
	if sess.AccountID != caller.AccountID {
		return ErrForbidden
	}
	return s.repo.DeleteSession(ctx, id)
}

// Verify resolves a bearer token to the identity it proves.
func (s *AuthService) Verify(ctx context.Context, token string) (Identity, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", gateway.ErrUnauthorized, err)
	}

	sess, err := s.repo.GetSession(ctx, claims.ID)
	if errors.Is(err, gateway.ErrNotFound) {
		return Identity{}, fmt.Errorf("%w: session revoked", gateway.ErrUnauthorized)
	}
	if err != nil {
		return Identity{}, err
	}
	if sess.AccountID != claims.Subject || !s.now().Before(sess.ExpiresAt) {
		return Identity{}, fmt.Errorf("%w: session expired", gateway.ErrUnauthorized)
	}
	return Identity{AccountID: sess.AccountID, SessionID: sess.ID}, nil
}

func (s *AuthService) openSession(ctx context.Context, accountID string) (*models.Session, error) {
	now := s.now().UTC()
	sess := &models.Session{
		ID:        uuid.NewString(),
		AccountID: accountID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        sess.ID,
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	sess.Token = signed
	return sess, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
