// Package lock provides the distributed identifier lock used when several
// reconciler instances share a store.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"reconciler/pkg/platform/sentinel"
)

const (
	keyPrefix          = "reconciler:lock:"
	defaultTTL         = 10 * time.Second
	defaultWait        = 3 * time.Second
	defaultRetryPeriod = 25 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another owner is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker takes one SET NX PX lock per key.
type RedisLocker struct {
	client      *redis.Client
	ttl         time.Duration
	wait        time.Duration
	retryPeriod time.Duration
}

type Option func(*RedisLocker)

// WithTTL bounds how long a crashed holder can block others.
func WithTTL(ttl time.Duration) Option {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithWait bounds how long Lock polls for a held key.
func WithWait(wait time.Duration) Option {
	return func(l *RedisLocker) {
		if wait > 0 {
			l.wait = wait
		}
	}
}

func WithRetryPeriod(d time.Duration) Option {
	return func(l *RedisLocker) {
		if d > 0 {
			l.retryPeriod = d
		}
	}
}

func NewRedisLocker(client *redis.Client, opts ...Option) *RedisLocker {
	l := &RedisLocker{
		client:      client,
		ttl:         defaultTTL,
		wait:        defaultWait,
		retryPeriod: defaultRetryPeriod,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock acquires every key in the given order. Callers pass keys sorted so
// that two lockers never wait on each other. On failure nothing stays held.
func (l *RedisLocker) Lock(ctx context.Context, keys []string) (func(context.Context) error, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	held := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := l.acquire(ctx, keyPrefix+key, token, deadline); err != nil {
			_ = l.release(context.WithoutCancel(ctx), held, token)
			return nil, err
		}
		held = append(held, keyPrefix+key)
	}

	return func(ctx context.Context) error {
		return l.release(ctx, held, token)
	}, nil
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string, deadline time.Time) error {
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("acquire %s: %w: %w", key, sentinel.ErrUnavailable, err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("acquire %s: %w", key, sentinel.ErrLockHeld)
		}

		timer := time.NewTimer(l.retryPeriod)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *RedisLocker) release(ctx context.Context, keys []string, token string) error {
	var firstErr error
	for i := len(keys) - 1; i >= 0; i-- {
		if err := releaseScript.Run(ctx, l.client, []string{keys[i]}, token).Err(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("release %s: %w", keys[i], err)
		}
	}
	return firstErr
}
