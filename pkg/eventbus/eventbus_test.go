package eventbus

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type created struct {
	id int64
}

type rejected struct{}

func newTestBus() (EventBus, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	log := logrus.New()
	log.SetOutput(buf)
	log.SetLevel(logrus.WarnLevel)
	return NewEventPublisher(log), buf
}

func TestPublish_NoMatchingSubscribers(t *testing.T) {
	bus, buf := newTestBus()
	bus.Subscribe(func(e *created) {
		t.Error("should not be called")
	})
	bus.Publish(&rejected{})

	require.True(t, strings.Contains(buf.String(), "no matching subscribers"), buf.String())
}

func TestPublish_DeliversToMatchingSubscriber(t *testing.T) {
	bus, _ := newTestBus()
	var got int64
	bus.Subscribe(func(e *created) {
		got = e.id
	})
	bus.Publish(&created{id: 7})
	require.Equal(t, int64(7), got)
}

func TestPublish_RecoversFromPanic(t *testing.T) {
	bus, buf := newTestBus()
	secondCalled := false
	bus.Subscribe(func(e *created) { panic("boom") })
	bus.Subscribe(func(e *created) { secondCalled = true })

	require.NotPanics(t, func() { bus.Publish(&created{}) })
	require.True(t, secondCalled)
	require.Contains(t, buf.String(), "panicked")
}

func TestPublishE(t *testing.T) {
	bus, _ := newTestBus()
	require.ErrorIs(t, bus.PublishE(&created{}), ErrNoSubscribers)

	boom := errors.New("boom")
	bus.Subscribe(func(ctx context.Context, e *created) error { return boom })
	bus.Subscribe(func(ctx context.Context, e *created) error { return nil })

	err := bus.PublishE(context.Background(), &created{})
	require.ErrorIs(t, err, boom)

	bus.Subscribe(func(ctx context.Context, e *created) int { return 1 })
	err = bus.PublishE(context.Background(), &created{})
	require.ErrorIs(t, err, ErrInvalidHandlerReturn)
}

func TestUnsubscribeAndClear(t *testing.T) {
	bus, _ := newTestBus()
	handler := func(e *created) {}
	bus.Subscribe(handler)
	bus.Subscribe(func(e *rejected) {})
	require.Equal(t, 2, bus.SubscribersCount())

	bus.Unsubscribe(handler)
	require.Equal(t, 1, bus.SubscribersCount())

	bus.Clear()
	require.Equal(t, 0, bus.SubscribersCount())
}

func TestMatchSignature(t *testing.T) {
	require.True(t, MatchSignature(func(e *created) {}, []any{&created{}}))
	require.False(t, MatchSignature(func(e *created) {}, []any{&rejected{}}))
	require.False(t, MatchSignature(func(e *created) {}, []any{}))
	require.True(t, MatchSignature(func(ctx context.Context) {}, []any{context.Background()}))
	require.True(t, MatchSignature(func(e *created) {}, []any{nil}))
	require.False(t, MatchSignature("not a func", []any{}))
}
