package storage

import (
	"context"
	"encoding/json"

	"PPRealtime/module/event"
)

// KEYS[1] = message:<id>
// KEYS[2] = messages:<room>
// ARGV[1] = serialized message
// ARGV[2] = ttl seconds
// ARGV[3] = history limit
// returns 1 when pushed, 0 when the id was already cached
const luaCacheMessage = `
if redis.call("SET", KEYS[1], ARGV[1], "NX", "EX", tonumber(ARGV[2])) then
  redis.call("LPUSH", KEYS[2], ARGV[1])
  redis.call("LTRIM", KEYS[2], 0, tonumber(ARGV[3]) - 1)
  return 1
end
return 0
`

// CacheMessage records msg as the newest entry of the room history. Messages carrying an
// id are written once; replays of the same id leave the list untouched.
func (c *Cache) CacheMessage(ctx context.Context, roomID string, msg event.Payload) bool {
	if roomID == "" {
		return false
	}
	b, err := json.Marshal(msg)
	if err != nil {
		c.fail("cache_message", err, "room", roomID)
		return false
	}
	ctx, cancel := c.op(ctx)
	defer cancel()

	id := msg.Routing().MessageKey()
	if id == "" {
		pipe := c.rdb.TxPipeline()
		pipe.LPush(ctx, historyKey(roomID), b)
		pipe.LTrim(ctx, historyKey(roomID), 0, historyLimit-1)
		if _, err := pipe.Exec(ctx); err != nil {
			c.fail("cache_message", err, "room", roomID)
			return false
		}
		return true
	}

	keys := []string{messageKey(id), historyKey(roomID)}
	ttl := int64(c.opts.MessageTTL.Seconds())
	if err := c.cacheMsg.Run(ctx, c.rdb, keys, string(b), ttl, historyLimit).Err(); err != nil {
		c.fail("cache_message", err, "room", roomID, "id", id)
		return false
	}
	return true
}

// GetMessagesByChannel returns up to limit cached messages, newest first.
func (c *Cache) GetMessagesByChannel(ctx context.Context, roomID string, limit int) []event.Payload {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > historyLimit {
		limit = historyLimit
	}
	ctx, cancel := c.op(ctx)
	defer cancel()

	vals, err := c.rdb.LRange(ctx, historyKey(roomID), 0, int64(limit-1)).Result()
	if err != nil {
		c.fail("get_messages", err, "room", roomID)
		return nil
	}
	out := make([]event.Payload, 0, len(vals))
	for _, v := range vals {
		var p event.Payload
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

// InvalidateChannelCache drops the history of exactly channelID along with the per-id
// message keys it references. Rooms sharing an id prefix are left alone.
func (c *Cache) InvalidateChannelCache(ctx context.Context, channelID string) bool {
	if channelID == "" {
		return false
	}
	ctx, cancel := c.op(ctx)
	defer cancel()

	vals, err := c.rdb.LRange(ctx, historyKey(channelID), 0, -1).Result()
	if err != nil {
		c.fail("invalidate", err, "channel", channelID)
		return false
	}
	keys := make([]string, 0, len(vals)+1)
	keys = append(keys, historyKey(channelID))
	for _, v := range vals {
		var p event.Payload
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			continue
		}
		if id := p.Routing().MessageKey(); id != "" {
			keys = append(keys, messageKey(id))
		}
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.fail("invalidate", err, "channel", channelID)
		return false
	}
	return true
}
