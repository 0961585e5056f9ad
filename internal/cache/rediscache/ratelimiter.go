package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RateLimiter считает попадания по ключу в скользящем окне: INCR + PEXPIRE в одной транзакции.
// Окно продлевается при каждом попадании, поэтому частые повторы держат ключ заблокированным.
// Создаётся через RedisCache.Cooldowns и живёт, пока открыт кэш.
type RateLimiter struct {
	c *redis.Client
}

// Allow returns (allowed, hitsInWindow). A non-positive window disables the limit.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	if window <= 0 {
		return true, 0, nil
	}
	pipe := rl.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// PEXPIRE: окно задаётся в миллисекундах (rescan_cooldown_ms)
	pipe.PExpire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, errors.Wrapf(err, "redis cooldown %s", key)
	}
	n := incr.Val()
	return n <= limit, n, nil
}
