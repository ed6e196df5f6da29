package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan *LocalMessage) *LocalMessage {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func assertSilent(t *testing.T, ch <-chan *LocalMessage) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message on %s: %s", msg.Channel, msg.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPubSub_UserChannelsAreIsolated(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	u1, cancel1, err := ps.Subscribe(ctx, "notify:u1")
	require.NoError(t, err)
	defer cancel1()
	u2, cancel2, err := ps.Subscribe(ctx, "notify:u2")
	require.NoError(t, err)
	defer cancel2()

	require.NoError(t, ps.Publish(ctx, "notify:u1", `{"kind":"level_up"}`))

	msg := recv(t, u1)
	assert.Equal(t, "notify:u1", msg.Channel)
	assert.Equal(t, `{"kind":"level_up"}`, msg.Payload)
	assertSilent(t, u2)
}

func TestPubSub_FanOutToEveryInstance(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	a, cancelA, _ := ps.Subscribe(ctx, "rollover")
	b, cancelB, _ := ps.Subscribe(ctx, "rollover")
	defer cancelA()
	defer cancelB()

	require.NoError(t, ps.Publish(ctx, "rollover", "2026-10-16"))
	assert.Equal(t, "2026-10-16", recv(t, a).Payload)
	assert.Equal(t, "2026-10-16", recv(t, b).Payload)
}

func TestPubSub_SeveralChannelsOneSubscription(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "rollover", "notify:u1")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "notify:u1", "n"))
	require.NoError(t, ps.Publish(ctx, "rollover", "r"))
	assert.Equal(t, "notify:u1", recv(t, ch).Channel)
	assert.Equal(t, "rollover", recv(t, ch).Channel)
}

func TestPubSub_SlowSubscriberDrops(t *testing.T) {
	ps := NewPubSub(1)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "notify:u1")
	require.NoError(t, err)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 5 {
			_ = ps.Publish(ctx, "notify:u1", "x")
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a full subscriber")
	}
	recv(t, ch)
	assertSilent(t, ch)
}

func TestPubSub_Unsubscribe(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "notify:u1")
	require.NoError(t, err)
	cancel()
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after cancel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	assert.NoError(t, ps.Publish(ctx, "notify:u1", "msg"))
}

func TestPubSub_ContextCancel(t *testing.T) {
	ps := NewPubSub(4)
	ctx, cancelCtx := context.WithCancel(context.Background())

	ch, cancel, err := ps.Subscribe(ctx, "notify:u1")
	require.NoError(t, err)
	defer cancel()

	cancelCtx()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed on context cancel")
	}
	require.NoError(t, ps.Publish(context.Background(), "notify:u1", "x"))
}
