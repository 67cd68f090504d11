package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamchat/internal/storage"
)

type page struct {
	IDs []string `json:"ids"`
}

func set(t *testing.T, c *Client, key string, val any, topics ...string) {
	t.Helper()
	snap, err := c.Snapshot(context.Background(), topics...)
	require.NoError(t, err)
	stored, err := c.SetCached(context.Background(), key, val, time.Minute, snap)
	require.NoError(t, err)
	require.True(t, stored)
}

func TestCacheExpiresAndInvalidates(t *testing.T) {
	c := New()
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	set(t, c, "feed:c1", page{IDs: []string{"a"}}, "channel:c1")
	set(t, c, "feed:c2", page{IDs: []string{"b"}}, "channel:c2")

	var got page
	hit, err := c.GetCached(ctx, "feed:c1", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"a"}, got.IDs)

	require.NoError(t, c.Invalidate(ctx, storage.Event{Topic: "channel:c1", Kind: "message_created"}))
	hit, err = c.GetCached(ctx, "feed:c1", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	now = now.Add(2 * time.Minute)
	hit, err = c.GetCached(ctx, "feed:c2", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestSubscribeAndClose(t *testing.T) {
	c := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := c.Subscribe(ctx)
	require.NoError(t, err)
	second, err := c.Subscribe(context.Background())
	require.NoError(t, err)

	ev := storage.Event{Topic: "workspace:w1", Kind: "member_joined", ID: "m1"}
	require.NoError(t, c.Invalidate(context.Background(), ev))
	assert.Equal(t, ev, <-first)
	assert.Equal(t, ev, <-second)

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-first:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close())
	_, ok := <-second
	assert.False(t, ok)

	late, err := c.Subscribe(context.Background())
	require.NoError(t, err)
	_, ok = <-late
	assert.False(t, ok)
}

func TestSetCachedAfterInvalidationIsDropped(t *testing.T) {
	c := New()
	ctx := context.Background()

	snap, err := c.Snapshot(ctx, "channel:c1", "workspace:w1")
	require.NoError(t, err)
	// запись в workspace:w1 произошла, пока читатель грузил данные
	require.NoError(t, c.Invalidate(ctx, storage.Event{Topic: "workspace:w1", Kind: "message_created"}))

	stored, err := c.SetCached(ctx, "feed:c1", page{IDs: []string{"old"}}, time.Minute, snap)
	require.NoError(t, err)
	assert.False(t, stored)

	var got page
	hit, err := c.GetCached(ctx, "feed:c1", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	snap, err = c.Snapshot(ctx, "channel:c1", "workspace:w1")
	require.NoError(t, err)
	assert.Equal(t, storage.Snapshot{"channel:c1": 0, "workspace:w1": 1}, snap)
	stored, err = c.SetCached(ctx, "feed:c1", page{IDs: []string{"new"}}, time.Minute, snap)
	require.NoError(t, err)
	assert.True(t, stored)
}
