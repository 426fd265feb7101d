package storage

import (
	"context"
	"encoding/json"
	"time"

	"PPRealtime/logger"
	"PPRealtime/module/event"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// The active set is a ZSET scored by entry expiry (unix seconds), so membership lapses
// together with the presence entry TTL.

// KEYS[1] = channel:<id>:active
// ARGV[1] = nowUnix
// returns the number of members removed
const luaSweepPresence = `
local victims = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
for _, v in ipairs(victims) do
  redis.call("ZREM", KEYS[1], v)
end
if redis.call("ZCARD", KEYS[1]) == 0 then
  redis.call("DEL", KEYS[1])
end
return #victims
`

func (c *Cache) SetActiveUser(ctx context.Context, userID, channelID string, data event.Payload) bool {
	if userID == "" || channelID == "" {
		return false
	}
	b, err := json.Marshal(data)
	if err != nil {
		c.fail("set_active_user", err, "user", userID)
		return false
	}
	ctx, cancel := c.op(ctx)
	defer cancel()

	expAt := c.now().Add(c.opts.PresenceTTL).Unix()
	zKey := activeSetKey(channelID)
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, presenceKey(channelID, userID), b, c.opts.PresenceTTL)
	pipe.ZAdd(ctx, zKey, redis.Z{Score: float64(expAt), Member: userID})
	pipe.Expire(ctx, zKey, c.opts.PresenceTTL*2)
	if _, err := pipe.Exec(ctx); err != nil {
		c.fail("set_active_user", err, "user", userID, "channel", channelID)
		return false
	}
	return true
}

// GetActiveUsers returns the presence data of members that have not expired.
func (c *Cache) GetActiveUsers(ctx context.Context, channelID string) []event.Payload {
	ctx, cancel := c.op(ctx)
	defer cancel()

	members, err := c.rdb.ZRangeByScore(ctx, activeSetKey(channelID), &redis.ZRangeBy{
		Min: "(" + formatUnix(c.now()),
		Max: "+inf",
	}).Result()
	if err != nil {
		c.fail("get_active_users", err, "channel", channelID)
		return nil
	}
	if len(members) == 0 {
		return []event.Payload{}
	}
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = presenceKey(channelID, m)
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.fail("get_active_users", err, "channel", channelID)
		return nil
	}
	out := make([]event.Payload, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue // entry expired before the set caught up
		}
		var p event.Payload
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (c *Cache) RemoveActiveUser(ctx context.Context, userID, channelID string) bool {
	ctx, cancel := c.op(ctx)
	defer cancel()

	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, presenceKey(channelID, userID))
	pipe.ZRem(ctx, activeSetKey(channelID), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		c.fail("remove_active_user", err, "user", userID, "channel", channelID)
		return false
	}
	return true
}

// SweepPresence drops set members whose entry has expired; returns how many.
func (c *Cache) SweepPresence(ctx context.Context, channelID string) int64 {
	ctx, cancel := c.op(ctx)
	defer cancel()

	n, err := c.sweep.Run(ctx, c.rdb, []string{activeSetKey(channelID)}, c.now().Unix()).Int64()
	if err != nil {
		c.fail("sweep_presence", err, "channel", channelID)
		return 0
	}
	return n
}

// SweepAll sweeps every channel active set found by SCAN.
func (c *Cache) SweepAll(ctx context.Context) int64 {
	var (
		cursor uint64
		total  int64
	)
	for {
		scanCtx, cancel := c.op(ctx)
		keys, next, err := c.rdb.Scan(scanCtx, cursor, activeSetPattern, 100).Result()
		cancel()
		if err != nil {
			c.fail("sweep_all", err)
			return total
		}
		for _, k := range keys {
			if ch := channelFromActiveSet(k); ch != "" {
				total += c.SweepPresence(ctx, ch)
			}
		}
		cursor = next
		if cursor == 0 {
			return total
		}
	}
}

// RunPresenceSweeper calls SweepAll every interval until ctx is done.
func (c *Cache) RunPresenceSweeper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := c.SweepAll(ctx); n > 0 {
				logger.Debug("[Cache] presence swept", zap.Int64("removed", n))
			}
		}
	}
}
