package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when the lock stays held by another
// writer for the whole acquisition budget.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Lock is one held SET NX lock. The TTL bounds how long a crashed holder
// can block other writers on the same strain.
type Lock struct {
	client *Client
	key    string
	value  string
}

// Locker hands out distributed strain write locks.
type Locker struct {
	client    *Client
	keyPrefix string
}

// NewLocker creates a new Locker
func NewLocker(client *Client, keyPrefix string) *Locker {
	if keyPrefix == "" {
		keyPrefix = "lock:"
	}
	return &Locker{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// TryAcquire attempts to take the lock, retrying with capped exponential
// backoff until the timeout elapses. Returns ErrLockNotAcquired when the
// budget runs out.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration, timeout time.Duration) (*Lock, error) {
	lockKey := l.keyPrefix + key
	// unique per holder so Release cannot delete a lock taken over after
	// TTL expiry
	lockValue := uuid.New().String()

	deadline := time.Now().Add(timeout)
	backoff := 10 * time.Millisecond

	for time.Now().Before(deadline) {
		ok, err := l.client.rdb.SetNX(ctx, lockKey, lockValue, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			l.client.logger.WithContext(ctx).Debugf("Acquired lock: %s", key)
			return &Lock{
				client: l.client,
				key:    lockKey,
				value:  lockValue,
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff = backoff * 2
			if backoff > 500*time.Millisecond {
				backoff = 500 * time.Millisecond
			}
		}
	}

	return nil, ErrLockNotAcquired
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release deletes the lock if this holder still owns it. A zero result
// means the TTL expired and another writer may already hold the key; that
// is logged, not returned, since the work it guarded is already done.
func (lock *Lock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, lock.client.rdb, []string{lock.key}, lock.value).Int64()
	if err != nil {
		return err
	}

	if result == 0 {
		lock.client.logger.WithContext(ctx).Warnf("Lock already expired: %s", lock.key)
		return nil
	}

	lock.client.logger.WithContext(ctx).Debugf("Released lock: %s", lock.key)
	return nil
}
