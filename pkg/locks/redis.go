package locks

import (
	"context"
	"errors"
	"time"

	"github.com/Ramsey-B/trellis/pkg/redis"
)

// RedisLocker is the distributed StrainLocker backed by redis SET NX.
// Lock TTL bounds how long a crashed holder can block other writers.
type RedisLocker struct {
	locker *redis.Locker
	ttl    time.Duration
}

// NewRedisLocker creates a redis-backed strain locker.
func NewRedisLocker(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		locker: redis.NewLocker(client, keyPrefix),
		ttl:    ttl,
	}
}

// TryAcquire acquires the distributed lock, retrying with backoff until the
// timeout elapses.
func (l *RedisLocker) TryAcquire(ctx context.Context, key string, timeout time.Duration) (ReleaseFunc, error) {
	lock, err := l.locker.TryAcquire(ctx, key, l.ttl, timeout)
	if err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			return nil, ErrLockTimeout
		}
		return nil, err
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lock.Release(releaseCtx)
	}
	return release, nil
}
