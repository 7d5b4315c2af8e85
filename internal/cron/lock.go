package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/partsdepot/cart-service/pkg/instance"
)

const defaultLockTTL = 30 * time.Minute

// ErrLockLost is returned by Refresh when another worker now holds the lock.
var ErrLockLost = errors.New("cron lock lost")

// Lock elects a single cron worker per cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(name string) string
}

// RedisLock is a lease stored under a single key. The value names the holder
// so only the holder extends or deletes it; a crashed holder loses the lease
// when the TTL runs out.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration

	mu    sync.Mutex
	token string
}

func NewRedisLock(store lockStore, name string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if name == "" {
		return nil, errors.New("lock name is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: store.LockKey(name), ttl: ttl}, nil
}

// Key returns the redis key backing the lock.
func (l *RedisLock) Key() string { return l.key }

// TTL returns the lease duration.
func (l *RedisLock) TTL() time.Duration { return l.ttl }

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := instance.GetID() + "/" + uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.mu.Lock()
		l.token = token
		l.mu.Unlock()
	}
	return ok, nil
}

// Refresh extends the lease while this worker still holds it.
func (l *RedisLock) Refresh(ctx context.Context) error {
	held, err := l.held(ctx)
	if err != nil || !held {
		return err
	}
	extended, err := l.store.Expire(ctx, l.key, l.ttl)
	if err != nil {
		return fmt.Errorf("extend %s: %w", l.key, err)
	}
	if !extended {
		return ErrLockLost
	}
	return nil
}

// Release deletes the key if this worker still holds it. Releasing a lock
// that was never acquired is a no-op.
func (l *RedisLock) Release(ctx context.Context) error {
	held, err := l.held(ctx)
	l.mu.Lock()
	l.token = ""
	l.mu.Unlock()
	if err != nil {
		if errors.Is(err, ErrLockLost) {
			return nil
		}
		return err
	}
	if !held {
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}

// held reports whether the stored token is ours. It returns false with no
// error when nothing was acquired and ErrLockLost when someone else owns it.
func (l *RedisLock) held(ctx context.Context) (bool, error) {
	l.mu.Lock()
	token := l.token
	l.mu.Unlock()
	if token == "" {
		return false, nil
	}
	current, err := l.store.Get(ctx, l.key)
	switch {
	case errors.Is(err, redis.Nil):
		return false, ErrLockLost
	case err != nil:
		return false, fmt.Errorf("read %s: %w", l.key, err)
	case current != token:
		return false, ErrLockLost
	}
	return true, nil
}
