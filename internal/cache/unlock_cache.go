package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/studypact/backend/internal/metrics"
)

// unlockTTL bounds staleness if an invalidation is ever lost; progress writes
// always invalidate eagerly.
const unlockTTL = time.Hour

// UnlockCache caches the couple's writer unlock snapshot per day. A nil
// *UnlockCache is valid and means "always miss", so callers don't need Redis
// in tests.
type UnlockCache struct {
	redis *RedisClient
}

// NewUnlockCache wraps a Redis client. rc may be nil.
func NewUnlockCache(rc *RedisClient) *UnlockCache {
	return &UnlockCache{redis: rc}
}

func unlockKey(coupleID, date string) string {
	return fmt.Sprintf("unlock:%s:%s", coupleID, date)
}

// Get returns (unlocked, hit). Errors degrade to a miss: the DB answers.
func (u *UnlockCache) Get(ctx context.Context, coupleID, date string) (bool, bool) {
	if u == nil || u.redis == nil {
		return false, false
	}
	val, err := u.redis.Get(ctx, unlockKey(coupleID, date))
	if err != nil {
		metrics.Get().CacheMissesTotal.WithLabelValues("unlock").Inc()
		return false, false
	}
	metrics.Get().CacheHitsTotal.WithLabelValues("unlock").Inc()
	return val == "1", true
}

// Set records the writer's unlock snapshot for a day.
func (u *UnlockCache) Set(ctx context.Context, coupleID, date string, unlocked bool) {
	if u == nil || u.redis == nil {
		return
	}
	val := "0"
	if unlocked {
		val = "1"
	}
	_ = u.redis.SetEx(ctx, unlockKey(coupleID, date), val, unlockTTL)
}

// Invalidate drops the cached flag after a progress write.
func (u *UnlockCache) Invalidate(ctx context.Context, coupleID, date string) {
	if u == nil || u.redis == nil {
		return
	}
	_ = u.redis.Del(ctx, unlockKey(coupleID, date))
}
