package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

func (c *Cache) IncrementUnreadCount(ctx context.Context, userID, channelID string) int64 {
	ctx, cancel := c.op(ctx)
	defer cancel()
	n, err := c.rdb.Incr(ctx, unreadKey(userID, channelID)).Result()
	if err != nil {
		c.fail("incr_unread", err, "user", userID, "channel", channelID)
		return 0
	}
	return n
}

func (c *Cache) GetUnreadCount(ctx context.Context, userID, channelID string) int64 {
	ctx, cancel := c.op(ctx)
	defer cancel()
	n, err := c.rdb.Get(ctx, unreadKey(userID, channelID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0
	}
	if err != nil {
		c.fail("get_unread", err, "user", userID, "channel", channelID)
		return 0
	}
	if n < 0 {
		return 0
	}
	return n
}

func (c *Cache) ClearUnreadCount(ctx context.Context, userID, channelID string) bool {
	ctx, cancel := c.op(ctx)
	defer cancel()
	if err := c.rdb.Del(ctx, unreadKey(userID, channelID)).Err(); err != nil {
		c.fail("clear_unread", err, "user", userID, "channel", channelID)
		return false
	}
	return true
}

type ChannelStats struct {
	ChannelID      string    `json:"channelId"`
	ActiveUsers    int64     `json:"activeUsers"`
	RecentMessages int64     `json:"recentMessages"`
	Timestamp      time.Time `json:"timestamp"`
}

func (c *Cache) ChannelStats(ctx context.Context, channelID string) ChannelStats {
	ctx, cancel := c.op(ctx)
	defer cancel()

	st := ChannelStats{ChannelID: channelID, Timestamp: c.now()}
	pipe := c.rdb.Pipeline()
	active := pipe.ZCount(ctx, activeSetKey(channelID), "("+formatUnix(c.now()), "+inf")
	recent := pipe.LLen(ctx, historyKey(channelID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		c.fail("channel_stats", err, "channel", channelID)
		return st
	}
	st.ActiveUsers = active.Val()
	st.RecentMessages = recent.Val()
	return st
}
