// Package locks provides distributed mutual exclusion backed by Redis.
package locks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained is returned when another holder owns the lock.
var ErrNotObtained = errors.New("platform/locks: lock held elsewhere")

// Locker obtains named leases with a fixed TTL.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
	logger *slog.Logger
}

// New builds a Locker; ttl defaults to 30 seconds.
func New(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{
		client: redislock.New(client),
		ttl:    ttl,
		retry:  redislock.NoRetry(),
		logger: slog.Default(),
	}
}

// WithRetry makes Obtain wait for the lock, polling every backoff up to attempts times.
func (l *Locker) WithRetry(backoff time.Duration, attempts int) *Locker {
	l.retry = redislock.LimitRetry(redislock.LinearBackoff(backoff), attempts)
	return l
}

// WithLogger replaces the logger.
func (l *Locker) WithLogger(logger *slog.Logger) *Locker {
	if logger != nil {
		l.logger = logger
	}
	return l
}

// Lease is a held lock.
type Lease struct {
	lock *redislock.Lock
}

// Release gives the lock up. Releasing an expired lease is not an error.
func (ls *Lease) Release(ctx context.Context) error {
	if ls == nil || ls.lock == nil {
		return nil
	}
	if err := ls.lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
		return err
	}
	return nil
}

// Obtain acquires key or fails with ErrNotObtained.
func (l *Locker) Obtain(ctx context.Context, key string) (*Lease, error) {
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{RetryStrategy: l.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("platform/locks: obtain %s: %w", key, err)
	}
	return &Lease{lock: lock}, nil
}

// WithLock runs fn while holding key.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	lease, err := l.Obtain(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			l.logger.Warn("release lock", slog.String("key", key), slog.Any("error", err))
		}
	}()
	return fn(ctx)
}
