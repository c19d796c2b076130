package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "pred:"

// Redis implements Cache on a Redis backend. All operations fail open: a
// backend error is logged and reported as a miss (or a no-op write) so an
// unavailable cache never fails a prediction.
type Redis struct {
	rdb *redis.Client
}

// NewRedis creates a Redis cache. The connection is pinged eagerly, but a
// failed ping only warns; the service starts and the cache stays fail-open.
func NewRedis(ctx context.Context, addr string, db int) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		zap.L().Warn("redis unavailable, cache degraded to always-miss",
			zap.String("addr", addr),
			zap.Error(err),
		)
	}
	return &Redis{rdb: rdb}
}

func (r *Redis) Get(ctx context.Context, fingerprint string) (*Entry, error) {
	raw, err := r.rdb.Get(ctx, keyPrefix+fingerprint).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		zap.L().Warn("cache read failed", zap.Error(err))
		return nil, nil
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		zap.L().Warn("cache entry corrupt, treating as miss", zap.Error(err))
		return nil, nil
	}
	return &e, nil
}

func (r *Redis) Set(ctx context.Context, fingerprint string, e *Entry, ttl time.Duration) error {
	raw, err := json.Marshal(e)
	if err != nil {
		zap.L().Warn("cache marshal failed", zap.Error(err))
		return nil
	}
	if err := r.rdb.Set(ctx, keyPrefix+fingerprint, raw, ttl).Err(); err != nil {
		zap.L().Warn("cache write failed", zap.Error(err))
	}
	return nil
}

// Flush removes all prediction keys. Uses SCAN rather than FLUSHDB so a
// shared Redis database is safe.
func (r *Redis) Flush(ctx context.Context) error {
	iter := r.rdb.Scan(ctx, 0, keyPrefix+"*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 500 {
			if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
				zap.L().Warn("cache flush failed", zap.Error(err))
				return nil
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		zap.L().Warn("cache flush scan failed", zap.Error(err))
		return nil
	}
	if len(keys) > 0 {
		if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
			zap.L().Warn("cache flush failed", zap.Error(err))
		}
	}
	return nil
}

func (r *Redis) Close() error { return r.rdb.Close() }
