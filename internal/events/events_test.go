package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/couplegram/couplegram/internal/cache"
)

type recordingConn struct {
	msgs []*nats.Msg
	err  error
}

func (c *recordingConn) PublishMsg(m *nats.Msg) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, m)
	return nil
}

func TestPublish(t *testing.T) {
	conn := &recordingConn{}
	p := &NATSPublisher{nc: conn, log: zap.NewNop()}
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, p.Publish(context.Background(), Event{Kind: cache.MutLikePost, Subject: "p1", Actor: "a1", At: at}))
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "couplegram.events.like-post", conn.msgs[0].Subject)
	assert.Equal(t, "application/json", conn.msgs[0].Header.Get("Content-Type"))

	ev, err := decode(conn.msgs[0])
	require.NoError(t, err)
	assert.Equal(t, Event{Kind: cache.MutLikePost, Subject: "p1", Actor: "a1", At: at}, ev)
}

func TestPublish_Errors(t *testing.T) {
	p := &NATSPublisher{nc: &recordingConn{err: nats.ErrConnectionClosed}, log: zap.NewNop()}

	err := p.Publish(context.Background(), Event{Kind: cache.MutCreatePost})
	assert.True(t, errors.Is(err, nats.ErrConnectionClosed))
	assert.Error(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), Event{}))
}

func TestDecode_KindFromSubject(t *testing.T) {
	ev, err := decode(&nats.Msg{Subject: SubjectPrefix + "delete-post", Data: []byte(`{"subject":"p9"}`)})
	require.NoError(t, err)
	assert.Equal(t, cache.MutDeletePost, ev.Kind)
	assert.Equal(t, "p9", ev.Subject)

	_, err = decode(&nats.Msg{Subject: SubjectPrefix + "x", Data: []byte("{")})
	assert.Error(t, err)
}

func TestListener_Handle(t *testing.T) {
	c := cache.New(cache.Options{})
	ctx := context.Background()
	key := cache.NewKey(cache.OpPostByID, "p1")
	fetches := 0
	fetch := func(context.Context) (int, error) { fetches++; return fetches, nil }

	_, err := cache.Query(ctx, c, key, fetch)
	require.NoError(t, err)
	require.False(t, c.IsStale(key))

	l := NewListener(c, func() string { return "me" }, zap.NewNop())

	msg, err := encode(Event{Kind: cache.MutLikePost, Subject: "p1", Actor: "me"})
	require.NoError(t, err)
	l.Handle(msg)
	assert.False(t, c.IsStale(key), "own events are already applied")

	msg, err = encode(Event{Kind: cache.MutLikePost, Subject: "p1", Actor: "someone"})
	require.NoError(t, err)
	l.Handle(msg)
	assert.True(t, c.IsStale(key))

	v, err := cache.Query(ctx, c, key, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestListener_IgnoresUnknownAndMalformed(t *testing.T) {
	c := cache.New(cache.Options{})
	l := NewListener(c, nil, zap.NewNop())

	l.Handle(&nats.Msg{Subject: SubjectPrefix + "reindex", Data: []byte(`{}`)})
	l.Handle(&nats.Msg{Subject: SubjectPrefix + "like-post", Data: []byte(`not json`)})
	assert.Zero(t, c.Stats().Invalidations)
}
