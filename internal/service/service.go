// Package service holds the business logic of the gateway server. Services
// validate input, enforce ownership and delegate persistence to repository
// interfaces; successful writes are announced through an events.Publisher.
package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/couplegram/couplegram/internal/events"
	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/models"
)

// ErrForbidden is returned when an authenticated caller touches a record it
// does not own. It matches gateway.ErrUnauthorized.
var ErrForbidden = fmt.Errorf("%w: not allowed for this account", gateway.ErrUnauthorized)

// Validation limits.
const (
	MaxCaptionLen  = 2200
	MaxBioLen      = 500
	MaxNameLen     = 100
	MaxLocationLen = 200
	MaxTags        = 30
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.]{2,30}$`)

// Identity is the authenticated caller of a request.
type Identity struct {
	AccountID string
	SessionID string
}

// ProfileLookup resolves the profile attached to an account.
type ProfileLookup interface {
	ProfileOf(ctx context.Context, accountID string) (*models.UserProfile, error)
}

func publish(ctx context.Context, pub events.Publisher, log *zap.Logger, ev events.Event) {
	if err := pub.Publish(ctx, ev); err != nil {
		log.Warn("failed to publish event",
			zap.String("kind", string(ev.Kind)),
			zap.String("subject", ev.Subject),
			zap.Error(err))
	}
}

func checkLen(field, v string, max int) error {
	if utf8.RuneCountInString(v) > max {
		return gateway.Invalidf("%s exceeds %d characters", field, max)
	}
	return nil
}

// cleanTags trims tags and drops empty ones.
func cleanTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	if len(out) > MaxTags {
		return nil, gateway.Invalidf("at most %d tags", MaxTags)
	}
	return out, nil
}

func defaults(pub events.Publisher, log *zap.Logger, now func() time.Time) (events.Publisher, *zap.Logger, func() time.Time) {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return pub, log, now
}
