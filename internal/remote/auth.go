package remote

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/models"
)

// CreateAccount registers an account and its profile. When the profile
// cannot be stored the account is deleted again so no orphan remains.
func (o *Ops) CreateAccount(ctx context.Context, u models.NewUser) (*models.UserProfile, error) {
	const op = "create account"
	if u.Username == "" || u.Name == "" {
		return nil, o.fail(op, gateway.Invalidf("name and username are required"))
	}
	acc, err := o.gw.CreateAccount(ctx, u.Email, u.Password, u.Name)
	if err != nil {
		return nil, o.fail(op, err)
	}

	profile, err := o.gw.CreateUser(ctx, &models.UserProfile{
		AccountID: acc.ID,
		Name:      acc.Name,
		Email:     acc.Email,
		Username:  u.Username,
		ImageURL:  o.gw.InitialsURL(acc.Name),
	})
	if err != nil {
		if derr := o.gw.DeleteAccount(ctx, acc.ID); derr != nil {
			o.log.Error("orphaned account after failed sign-up",
				zap.String("account_id", acc.ID), zap.Error(derr))
		}
		return nil, o.fail(op, err)
	}
	return profile, nil
}

// SignIn opens an email/password session.
func (o *Ops) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	s, err := o.gw.CreateEmailSession(ctx, email, password)
	if err != nil {
		return nil, o.fail("sign in", err)
	}
	return s, nil
}

// SignOut destroys the current session.
func (o *Ops) SignOut(ctx context.Context) error {
	if err := o.gw.DeleteSession(ctx, gateway.CurrentSession); err != nil {
		return o.fail("sign out", err)
	}
	return nil
}

// GetCurrentUser resolves the session account to its profile. It returns
// ErrNoCurrentUser when signed out or when no profile matches the account.
func (o *Ops) GetCurrentUser(ctx context.Context) (*models.UserProfile, error) {
	const op = "get current user"
	acc, err := o.gw.GetAccount(ctx)
	if errors.Is(err, gateway.ErrUnauthorized) {
		return nil, ErrNoCurrentUser
	}
	if err != nil {
		return nil, o.fail(op, err)
	}
	users, err := o.gw.ListUsers(ctx, gateway.NewQuery(gateway.Equal(gateway.FieldAccountID, acc.ID)))
	if err != nil {
		return nil, o.fail(op, err)
	}
	if len(users) == 0 {
		return nil, ErrNoCurrentUser
	}
	return &users[0], nil
}
