package events

import (
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/couplegram/couplegram/internal/cache"
)

// Listener applies received events to a cache coordinator.
type Listener struct {
	cache *cache.Coordinator
	log   *zap.Logger
	// self skips events the local client caused; they were applied already.
	self func() string
}

// NewListener returns a listener invalidating c. self reports the signed-in
// account id, or empty when signed out.
func NewListener(c *cache.Coordinator, self func() string, log *zap.Logger) *Listener {
	if self == nil {
		self = func() string { return "" }
	}
	return &Listener{cache: c, log: log, self: self}
}

// Subscribe starts receiving every couplegram event on nc.
func (l *Listener) Subscribe(nc *nats.Conn) (*nats.Subscription, error) {
	return nc.Subscribe(SubjectPrefix+">", l.Handle)
}

// Handle applies one message.
func (l *Listener) Handle(msg *nats.Msg) {
	ev, err := decode(msg)
	if err != nil {
		l.log.Warn("dropping malformed event", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	if _, ok := cache.Invalidations[ev.Kind]; !ok {
		l.log.Debug("ignoring unknown event", zap.String("kind", string(ev.Kind)))
		return
	}
	if me := l.self(); me != "" && ev.Actor == me {
		return
	}
	l.cache.Apply(ev.Kind, ev.Subject)
}
