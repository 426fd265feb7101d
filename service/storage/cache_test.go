package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"PPRealtime/module/event"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis, *clock) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	c := New(rdb, DefaultOptions())
	c.now = clk.now
	return c, mr, clk
}

func msg(id, room string) event.Payload {
	return event.Payload{"_id": id, "channelId": room, "content": "hello " + id}
}

func TestCacheMessage_BoundedNewestFirst(t *testing.T) {
	req := require.New(t)
	c, mr, _ := newTestCache(t)
	ctx := context.Background()

	// Given 150 distinct messages cached for one room
	for i := 0; i < 150; i++ {
		req.True(c.CacheMessage(ctx, "c-1", msg(fmt.Sprintf("m-%d", i), "c-1")))
	}

	// Then the list holds exactly the newest 100
	list, err := mr.List("messages:c-1")
	req.NoError(err)
	req.Len(list, 100)

	all := c.GetMessagesByChannel(ctx, "c-1", 500)
	req.Len(all, 100)
	req.Equal("m-149", all[0]["_id"])
	req.Equal("m-50", all[99]["_id"])

	req.Len(c.GetMessagesByChannel(ctx, "c-1", 0), 50)
	req.Len(c.GetMessagesByChannel(ctx, "c-1", 10), 10)
	req.Equal(time.Hour, mr.TTL("message:m-149"))
}

func TestCacheMessage_ReplayDoesNotDuplicate(t *testing.T) {
	req := require.New(t)
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	m := msg("m-1", "c-1")
	req.True(c.CacheMessage(ctx, "c-1", m))
	req.True(c.CacheMessage(ctx, "c-1", m))

	got := c.GetMessagesByChannel(ctx, "c-1", 10)
	req.Len(got, 1)
	req.Equal("hello m-1", got[0]["content"])
}

func TestCacheMessage_WithoutID(t *testing.T) {
	req := require.New(t)
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	req.True(c.CacheMessage(ctx, "conv-1", event.Payload{"content": "a"}))
	req.True(c.CacheMessage(ctx, "conv-1", event.Payload{"content": "b"}))
	req.False(c.CacheMessage(ctx, "", event.Payload{"content": "c"}))

	got := c.GetMessagesByChannel(ctx, "conv-1", 10)
	req.Len(got, 2)
	req.Equal("b", got[0]["content"])
}

func TestPresence_ExpiresWithTTL(t *testing.T) {
	req := require.New(t)
	c, mr, clk := newTestCache(t)
	ctx := context.Background()

	// Given two users active in a channel
	req.True(c.SetActiveUser(ctx, "u-1", "c-1", event.Payload{"userId": "u-1", "username": "ann"}))
	req.True(c.SetActiveUser(ctx, "u-2", "c-1", event.Payload{"userId": "u-2", "username": "bob"}))
	req.Len(c.GetActiveUsers(ctx, "c-1"), 2)
	req.Equal(int64(2), c.ChannelStats(ctx, "c-1").ActiveUsers)

	// When 301 seconds pass without refresh
	clk.t = clk.t.Add(301 * time.Second)
	mr.FastForward(301 * time.Second)

	// Then neither is reported and the sweep drops both members
	req.Empty(c.GetActiveUsers(ctx, "c-1"))
	req.Equal(int64(2), c.SweepPresence(ctx, "c-1"))
	req.False(mr.Exists("channel:c-1:active"))
}

func TestPresence_RefreshKeepsUser(t *testing.T) {
	req := require.New(t)
	c, mr, clk := newTestCache(t)
	ctx := context.Background()

	req.True(c.SetActiveUser(ctx, "u-1", "c-1", event.Payload{"userId": "u-1"}))
	clk.t = clk.t.Add(200 * time.Second)
	mr.FastForward(200 * time.Second)
	req.True(c.SetActiveUser(ctx, "u-1", "c-1", event.Payload{"userId": "u-1"}))
	clk.t = clk.t.Add(200 * time.Second)
	mr.FastForward(200 * time.Second)

	users := c.GetActiveUsers(ctx, "c-1")
	req.Len(users, 1)
	req.Equal("u-1", users[0]["userId"])
	req.Equal(int64(0), c.SweepPresence(ctx, "c-1"))
}

func TestPresence_RemoveAndSweepAll(t *testing.T) {
	req := require.New(t)
	c, mr, clk := newTestCache(t)
	ctx := context.Background()

	req.True(c.SetActiveUser(ctx, "u-1", "c-1", event.Payload{"userId": "u-1"}))
	req.True(c.SetActiveUser(ctx, "u-2", "c-2", event.Payload{"userId": "u-2"}))
	req.True(c.SetActiveUser(ctx, "u-3", "c-3", event.Payload{"userId": "u-3"}))

	req.True(c.RemoveActiveUser(ctx, "u-1", "c-1"))
	req.Empty(c.GetActiveUsers(ctx, "c-1"))
	req.False(mr.Exists("active_users:c-1:u-1"))

	clk.t = clk.t.Add(10 * time.Minute)
	req.Equal(int64(2), c.SweepAll(ctx))
}

func TestInvalidateChannelCache(t *testing.T) {
	req := require.New(t)
	c, mr, _ := newTestCache(t)
	ctx := context.Background()

	// Given rooms whose ids share a prefix
	req.True(c.CacheMessage(ctx, "1", msg("m-1", "1")))
	req.True(c.CacheMessage(ctx, "10", msg("m-10", "10")))
	req.True(c.CacheMessage(ctx, "c-2", msg("m-2", "c-2")))

	// When only room "1" is invalidated
	req.True(c.InvalidateChannelCache(ctx, "1"))

	// Then its history and message keys are gone and the others stay
	req.False(mr.Exists("messages:1"))
	req.False(mr.Exists("message:m-1"))
	req.True(mr.Exists("messages:10"))
	req.True(mr.Exists("message:m-10"))
	req.Equal(int64(0), c.ChannelStats(ctx, "1").RecentMessages)
	req.Equal(int64(1), c.ChannelStats(ctx, "10").RecentMessages)
	req.Equal(int64(1), c.ChannelStats(ctx, "c-2").RecentMessages)

	// And a replayed message can be cached again afterwards
	req.True(c.CacheMessage(ctx, "1", msg("m-1", "1")))
	req.Len(c.GetMessagesByChannel(ctx, "1", 10), 1)
	req.True(c.InvalidateChannelCache(ctx, "empty-room"))
}

func TestUnreadCounters(t *testing.T) {
	req := require.New(t)
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	req.Equal(int64(0), c.GetUnreadCount(ctx, "u-1", "c-1"))
	for i := 1; i <= 3; i++ {
		req.Equal(int64(i), c.IncrementUnreadCount(ctx, "u-1", "c-1"))
	}
	req.Equal(int64(3), c.GetUnreadCount(ctx, "u-1", "c-1"))
	req.Equal(int64(0), c.GetUnreadCount(ctx, "u-1", "c-2"))

	req.True(c.ClearUnreadCount(ctx, "u-1", "c-1"))
	req.Equal(int64(0), c.GetUnreadCount(ctx, "u-1", "c-1"))
	req.Equal(int64(1), c.IncrementUnreadCount(ctx, "u-1", "c-1"))
}

func TestCache_DegradesWhenRedisDown(t *testing.T) {
	req := require.New(t)
	c, mr, _ := newTestCache(t)
	ctx := context.Background()
	req.Equal("connected", c.Status(ctx).Status)

	mr.Close()

	req.False(c.CacheMessage(ctx, "c-1", msg("m-1", "c-1")))
	req.Nil(c.GetMessagesByChannel(ctx, "c-1", 10))
	req.False(c.SetActiveUser(ctx, "u-1", "c-1", event.Payload{}))
	req.Nil(c.GetActiveUsers(ctx, "c-1"))
	req.Equal(int64(0), c.IncrementUnreadCount(ctx, "u-1", "c-1"))
	req.False(c.InvalidateChannelCache(ctx, "c-1"))
	req.Equal("disconnected", c.Status(ctx).Status)
}

func TestKeys(t *testing.T) {
	require.Equal(t, "c-9", channelFromActiveSet(activeSetKey("c-9")))
	require.Equal(t, "", channelFromActiveSet("bogus"))
}
