package cache

import (
	"context"
	"time"
)

// BytesCache: минимальный key/value интерфейс поверх redis.
// ttl <= 0 означает "без срока жизни".
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}
