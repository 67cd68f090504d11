package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamchat/internal/storage"
)

type page struct {
	IDs []string `json:"ids"`
}

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	client, err := New(context.Background(), "redis://"+s.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, s
}

func set(t *testing.T, c *Client, key string, val any, ttl time.Duration, topics ...string) {
	t.Helper()
	snap, err := c.Snapshot(context.Background(), topics...)
	require.NoError(t, err)
	stored, err := c.SetCached(context.Background(), key, val, ttl, snap)
	require.NoError(t, err)
	require.True(t, stored)
}

func TestNewBadURL(t *testing.T) {
	_, err := New(context.Background(), "://nope")
	assert.Error(t, err)
}

func TestCacheRoundTrip(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	var got page
	hit, err := client.GetCached(ctx, "messages:c1", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	set(t, client, "messages:c1", page{IDs: []string{"a", "b"}}, time.Minute, "channel:c1")

	hit, err = client.GetCached(ctx, "messages:c1", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"a", "b"}, got.IDs)
}

func TestCacheExpires(t *testing.T) {
	client, s := setupTestRedis(t)
	ctx := context.Background()

	set(t, client, "k", page{IDs: []string{"x"}}, time.Second, "channel:c1")
	s.FastForward(2 * time.Second)

	var got page
	hit, err := client.GetCached(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestInvalidateDropsTaggedKeysOnly(t *testing.T) {
	client, s := setupTestRedis(t)
	ctx := context.Background()

	set(t, client, "feed:c1:first", page{}, time.Minute, "channel:c1")
	set(t, client, "msg:m1", page{}, time.Minute, "channel:c1", "workspace:w1")
	set(t, client, "feed:c2:first", page{}, time.Minute, "channel:c2")

	require.NoError(t, client.Invalidate(ctx, storage.Event{Topic: "channel:c1", Kind: "message_created"}))

	assert.False(t, s.Exists(cachePrefix+"feed:c1:first"))
	assert.False(t, s.Exists(cachePrefix+"msg:m1"))
	assert.False(t, s.Exists(tagPrefix+"channel:c1"))
	assert.True(t, s.Exists(cachePrefix+"feed:c2:first"))
}

func TestSubscribeReceivesInvalidations(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := client.Subscribe(ctx)
	require.NoError(t, err)

	want := storage.Event{Topic: "conversation:x", Kind: "message_updated", ID: "m9"}
	require.NoError(t, client.Invalidate(context.Background(), want))

	select {
	case got := <-events:
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no invalidation event received")
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			// допускается одно запоздавшее событие, затем канал закрывается
			_, ok = <-events
		}
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed after cancel")
	}
}

func TestSetCachedAfterInvalidationIsDropped(t *testing.T) {
	client, s := setupTestRedis(t)
	ctx := context.Background()

	snap, err := client.Snapshot(ctx, "channel:c1", "workspace:w1")
	require.NoError(t, err)
	assert.Equal(t, storage.Snapshot{"channel:c1": 0, "workspace:w1": 0}, snap)

	// запись в channel:c1 произошла, пока читатель грузил данные
	require.NoError(t, client.Invalidate(ctx, storage.Event{Topic: "channel:c1", Kind: "message_created"}))

	stored, err := client.SetCached(ctx, "feed:c1", page{IDs: []string{"old"}}, time.Minute, snap)
	require.NoError(t, err)
	assert.False(t, stored)
	assert.False(t, s.Exists(cachePrefix+"feed:c1"))
	assert.False(t, s.Exists(tagPrefix+"workspace:w1"))

	snap, err = client.Snapshot(ctx, "channel:c1", "workspace:w1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap["channel:c1"])
	stored, err = client.SetCached(ctx, "feed:c1", page{IDs: []string{"new"}}, time.Minute, snap)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.True(t, s.Exists(cachePrefix+"feed:c1"))
}
