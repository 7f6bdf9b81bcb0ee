// Package locks provides per-strain write locking. Unrelated strains update
// in parallel; all bulk propagation for one strain happens under its lock.
package locks

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a lock cannot be acquired within the
// caller's budget. Retryable.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// ReleaseFunc releases a held lock. Safe to call once.
type ReleaseFunc func()

// StrainLocker serializes writers per strain key.
type StrainLocker interface {
	// TryAcquire blocks until the key's lock is acquired, the timeout
	// elapses, or the context is cancelled. Returns ErrLockTimeout when the
	// budget is exhausted.
	TryAcquire(ctx context.Context, key string, timeout time.Duration) (ReleaseFunc, error)
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// KeyedLocker is the in-process StrainLocker. Suitable for a single
// service instance; multi-instance deployments use the redis-backed locker.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewKeyedLocker creates an in-process keyed locker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{
		locks: make(map[string]*keyLock),
	}
}

func (l *KeyedLocker) get(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		kl.ch <- struct{}{}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *KeyedLocker) put(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// TryAcquire blocks until the key's lock is free or the timeout elapses.
func (l *KeyedLocker) TryAcquire(ctx context.Context, key string, timeout time.Duration) (ReleaseFunc, error) {
	kl := l.get(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-kl.ch:
		var once sync.Once
		release := func() {
			once.Do(func() {
				kl.ch <- struct{}{}
				l.put(key, kl)
			})
		}
		return release, nil
	case <-ctx.Done():
		l.put(key, kl)
		return nil, ctx.Err()
	case <-timer.C:
		l.put(key, kl)
		return nil, ErrLockTimeout
	}
}
