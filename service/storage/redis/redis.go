package redis

import (
	"context"
	"time"

	"PPRealtime/tools/errs"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	OpTimeout   time.Duration `mapstructure:"op_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Addr:        "127.0.0.1:6379",
		PoolSize:    20,
		DialTimeout: 3 * time.Second,
		OpTimeout:   2 * time.Second,
	}
}

// New opens a client and checks it with a bounded PING. The client is returned even
// when the ping fails so callers can keep running degraded while Redis comes back.
func New(ctx context.Context, c Config) (*redis.Client, error) {
	dial := c.DialTimeout
	if dial <= 0 {
		dial = 3 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		DialTimeout:  dial,
		ReadTimeout:  dial,
		WriteTimeout: dial,
		MaxRetries:   1,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return rdb, errs.ErrCacheUnavailable.WrapMsg(err, "ping", "addr", c.Addr)
	}
	return rdb, nil
}
