package locks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/farmfresh/marketplace-backend/pkg/logger"
)

const (
	backendRedis         = "redis"
	defaultRedisLockTTL  = 30 * time.Second
	defaultRetryInterval = 25 * time.Millisecond
	releaseTimeout       = 2 * time.Second
)

// redisStore is the subset of pkg/redis.Client used for locking.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) (bool, error)
	LockKey(name string) string
}

// RedisOptions tunes RedisLocker.
type RedisOptions struct {
	TTL           time.Duration
	RetryInterval time.Duration

	// WaitTimeout bounds how long Lock polls when ctx has no deadline.
	WaitTimeout time.Duration
	Observer    WaitObserver

	// Logger receives release failures; the key then lingers until its TTL.
	Logger *logger.Logger
}

// RedisLocker coordinates keys across processes with SETNX + TTL. The TTL
// bounds how long a crashed holder can block others.
type RedisLocker struct {
	store redisStore
	opts  RedisOptions
}

// NewRedisLocker constructs a Redis-backed locker.
func NewRedisLocker(store redisStore, opts RedisOptions) (*RedisLocker, error) {
	if store == nil {
		return nil, errors.New("redis client required for locker")
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultRedisLockTTL
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultRetryInterval
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &RedisLocker{store: store, opts: opts}, nil
}

// Lock polls SETNX until the key is owned, ctx is done or WaitTimeout elapses.
func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok && l.opts.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.WaitTimeout)
		defer cancel()
	}

	redisKey := l.store.LockKey(key)
	owner := uuid.NewString()
	started := time.Now()

	for {
		ok, err := l.store.SetNX(ctx, redisKey, owner, l.opts.TTL)
		if err != nil {
			return nil, fmt.Errorf("setnx %s: %w", redisKey, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.opts.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, notAcquired(key, ctx.Err())
		case <-timer.C:
		}
	}

	if l.opts.Observer != nil {
		l.opts.Observer.ObserveLockWait(backendRedis, time.Since(started))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if err := l.release(releaseCtx, redisKey, owner); err != nil {
				logCtx := l.opts.Logger.WithFields(ctx, map[string]any{
					"lock_key": key,
					"lock_ttl": l.opts.TTL.String(),
					"error":    err.Error(),
				})
				l.opts.Logger.Warn(logCtx, "lock release failed")
			}
		})
	}, nil
}

// release is a compare-and-delete, so an expired lock taken over by another
// caller is left alone.
func (l *RedisLocker) release(ctx context.Context, redisKey, owner string) error {
	if _, err := l.store.ReleaseLock(ctx, redisKey, owner); err != nil {
		return fmt.Errorf("release lock %s: %w", redisKey, err)
	}
	return nil
}
