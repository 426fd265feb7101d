package storage

import (
	"context"
	"time"

	"PPRealtime/logger"
	"PPRealtime/tools/errs"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Options struct {
	OpTimeout   time.Duration `mapstructure:"op_timeout"`
	MessageTTL  time.Duration `mapstructure:"message_ttl"`
	PresenceTTL time.Duration `mapstructure:"presence_ttl"`
}

func DefaultOptions() Options {
	return Options{
		OpTimeout:   2 * time.Second,
		MessageTTL:  time.Hour,
		PresenceTTL: 5 * time.Minute,
	}
}

// Cache holds the short-lived realtime state: recent channel history, presence and
// unread counters. Every operation degrades on Redis failure: it logs and returns the
// zero value instead of an error.
type Cache struct {
	rdb  redis.UniversalClient
	opts Options
	now  func() time.Time

	cacheMsg *redis.Script
	sweep    *redis.Script
}

func New(rdb redis.UniversalClient, opts Options) *Cache {
	d := DefaultOptions()
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = d.OpTimeout
	}
	if opts.MessageTTL <= 0 {
		opts.MessageTTL = d.MessageTTL
	}
	if opts.PresenceTTL <= 0 {
		opts.PresenceTTL = d.PresenceTTL
	}
	return &Cache{
		rdb:      rdb,
		opts:     opts,
		now:      time.Now,
		cacheMsg: redis.NewScript(luaCacheMessage),
		sweep:    redis.NewScript(luaSweepPresence),
	}
}

func (c *Cache) op(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opts.OpTimeout)
}

func (c *Cache) fail(op string, err error, kv ...any) {
	logger.Warn("[Cache] operation failed", zap.String("op", op), zap.Error(errs.ErrCacheUnavailable.WrapMsg(err, op, kv...)))
}

func (c *Cache) Close() error {
	return c.rdb.Close()
}

type CacheStatus struct {
	Status    string    `json:"status"`
	Info      string    `json:"info,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Status pings Redis and attaches the INFO server section when available.
func (c *Cache) Status(ctx context.Context) CacheStatus {
	ctx, cancel := c.op(ctx)
	defer cancel()
	st := CacheStatus{Status: "disconnected", Timestamp: c.now()}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		c.fail("status", err)
		return st
	}
	st.Status = "connected"
	if info, err := c.rdb.Info(ctx, "server").Result(); err == nil {
		st.Info = info
	}
	return st
}
