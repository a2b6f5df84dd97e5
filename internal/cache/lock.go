package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrLockHeld is returned when another request already holds the lock.
var ErrLockHeld = errors.New("lock is held by another request")

// Locker hands out short-lived exclusive locks keyed by name. Without a Redis
// client it falls back to an in-process lock table, which is only correct for
// a single replica.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
	logger logrus.FieldLogger

	mu    sync.Mutex
	local map[string]struct{}
}

func NewLocker(client *redis.Client, ttl time.Duration, logger logrus.FieldLogger) *Locker {
	l := &Locker{ttl: ttl, logger: logger, local: make(map[string]struct{})}
	if client != nil {
		l.client = redislock.New(client)
	}
	return l
}

// Obtain takes the lock without waiting. The returned release func is safe to
// call more than once.
func (l *Locker) Obtain(ctx context.Context, key string) (func(), error) {
	if l.client == nil {
		return l.obtainLocal(key)
	}

	lock, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockHeld
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// release on a fresh context so a cancelled request still frees the key
			if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				l.logger.WithError(err).WithField("lock", key).Warn("failed to release lock")
			}
		})
	}, nil
}

func (l *Locker) obtainLocal(key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.local[key]; held {
		return nil, ErrLockHeld
	}
	l.local[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.local, key)
			l.mu.Unlock()
		})
	}, nil
}
