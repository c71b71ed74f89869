package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("platform/cache: lock held elsewhere")

// Locker runs critical sections under a Redis lease so that cron driven jobs
// execute on a single worker replica at a time.
type Locker struct {
	client *redislock.Client
	logger *slog.Logger
}

// NewLocker wraps a go-redis client.
func NewLocker(rdb redis.UniversalClient, logger *slog.Logger) *Locker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{client: redislock.New(rdb), logger: logger}
}

// WithLock obtains key for ttl, runs fn and releases the lease. ErrLockHeld is
// returned without running fn when the lease is already taken.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l == nil || l.client == nil {
		return fn(ctx)
	}
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrLockHeld
	}
	if err != nil {
		return fmt.Errorf("platform/cache: obtain %s: %w", key, err)
	}
	defer func() {
		if releaseErr := lock.Release(context.WithoutCancel(ctx)); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			l.logger.Warn("release lock", slog.String("key", key), slog.Any("error", releaseErr))
		}
	}()
	return fn(ctx)
}

// Once runs fn under key and keeps the lease until ttl expires, so repeated
// triggers inside the window are skipped. The lease is released if fn fails
// so that a retry can run.
func (l *Locker) Once(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l == nil || l.client == nil {
		return fn(ctx)
	}
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrLockHeld
	}
	if err != nil {
		return fmt.Errorf("platform/cache: obtain %s: %w", key, err)
	}
	if err := fn(ctx); err != nil {
		if releaseErr := lock.Release(context.WithoutCancel(ctx)); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			l.logger.Warn("release lock", slog.String("key", key), slog.Any("error", releaseErr))
		}
		return err
	}
	return nil
}
