package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "clinic:slot-lock:"
	pollInterval = 25 * time.Millisecond
)

var (
	ErrLockNotAcquired = errors.New("slot lock not acquired")
)

// Locker guards the check-then-insert window of a booking for one slot key.
type Locker interface {
	WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error
}

// lockBackend is the part of *redis.Client the locker needs.
type lockBackend interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

// RedisSlotLocker holds one Redis key per (doctor, date, time) while a
// booking is validated and inserted. A busy slot is polled for up to wait
// before giving up with ErrLockNotAcquired.
type RedisSlotLocker struct {
	client lockBackend
	ttl    time.Duration
	wait   time.Duration
}

func NewRedisSlotLocker(client *redis.Client, ttl, wait time.Duration) *RedisSlotLocker {
	return newSlotLocker(client, ttl, wait)
}

func newSlotLocker(client lockBackend, ttl, wait time.Duration) *RedisSlotLocker {
	if wait < 0 {
		wait = 0
	}
	return &RedisSlotLocker{client: client, ttl: ttl, wait: wait}
}

func lockKey(slotKey string) string {
	return keyPrefix + slotKey
}

func (l *RedisSlotLocker) WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error {
	key := lockKey(slotKey)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		// release on a fresh context so a cancelled request still frees the slot
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.release(relCtx, key, token)
	}()

	lockCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(lockCtx)
}

func (l *RedisSlotLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire slot lock: %w", err)
		}
		if ok {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrLockNotAcquired
		}

		timer := time.NewTimer(min(remaining, pollInterval))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// unlockScript deletes the key only while it still holds our token, so an
// expired lock taken over by another request is left alone.
var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *RedisSlotLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}

// NoopLocker runs fn without any cross-process exclusion. The store's unique
// constraint remains the authority on double bookings.
type NoopLocker struct{}

func (NoopLocker) WithSlotLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
