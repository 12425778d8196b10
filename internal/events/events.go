// Package events carries mutation notices between the gateway server and
// connected clients over NATS. Clients turn each notice into the cache
// invalidations the same mutation would cause locally.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/couplegram/couplegram/internal/cache"
)

// SubjectPrefix prefixes every published subject; the mutation name follows.
const SubjectPrefix = "couplegram.events."

// Event is one successful server-side mutation.
type Event struct {
	Kind    cache.Mutation `json:"kind"`
	Subject string         `json:"subject,omitempty"`
	Actor   string         `json:"actor,omitempty"`
	At      time.Time      `json:"at"`
}

// Publisher announces events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// msgPublisher is the part of *nats.Conn the publisher needs.
type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSPublisher publishes events as JSON messages.
type NATSPublisher struct {
	nc  msgPublisher
	log *zap.Logger
}

// NewNATSPublisher wraps an established connection.
func NewNATSPublisher(nc *nats.Conn, log *zap.Logger) *NATSPublisher {
	return &NATSPublisher{nc: nc, log: log}
}

func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	msg, err := encode(ev)
	if err != nil {
		return err
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	p.log.Debug("event published", zap.String("subject", msg.Subject), zap.String("id", ev.Subject))
	return nil
}

// NopPublisher drops every event. It stands in when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

func encode(ev Event) (*nats.Msg, error) {
	if ev.Kind == "" {
		return nil, fmt.Errorf("event without kind")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	msg := nats.NewMsg(SubjectPrefix + string(ev.Kind))
	msg.Header.Set("Content-Type", "application/json")
	msg.Data = data
	return msg, nil
}

func decode(msg *nats.Msg) (Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if ev.Kind == "" {
		ev.Kind = cache.Mutation(strings.TrimPrefix(msg.Subject, SubjectPrefix))
	}
	return ev, nil
}
