// Package middleware provides HTTP middlewares for authentication, logging
// and metrics.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/service"
)

type ctxKey string

const identityKey ctxKey = "identity"

// Verifier resolves a bearer token to the identity it proves.
type Verifier interface {
	Verify(ctx context.Context, token string) (service.Identity, error)
}

// SessionAuth is a middleware that enforces bearer session authentication.
//
// It reads the "Authorization: Bearer <token>" header, verifies the token
// and stores the resulting identity in the request context, so it can be
// used downstream as the authenticated caller.
func SessionAuth(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearer(r)
			if !ok {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			id, err := v.Verify(r.Context(), token)
			if errors.Is(err, gateway.ErrUnauthorized) {
				http.Error(w, "invalid session", http.StatusUnauthorized)
				return
			}
			if err != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id service.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext extracts the identity stored by SessionAuth.
func IdentityFromContext(ctx context.Context) (service.Identity, bool) {
	id, ok := ctx.Value(identityKey).(service.Identity)
	return id, ok
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
