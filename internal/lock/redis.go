// Package lock provides a Redis-backed PeriodLocker.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/jonathan/closing-engine/internal/closing"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// releaseTimeout bounds the release call, which runs after the request
// context may already be done.
const releaseTimeout = 5 * time.Second

// RedisLocker holds one lock per category and period while a batch runs.
// Held locks are refreshed every half TTL so long batches keep them.
type RedisLocker struct {
	locker *redislock.Client
	ttl    time.Duration
	log    logrus.FieldLogger
}

// NewRedisLocker creates a locker on an existing client.
func NewRedisLocker(client redislock.RedisClient, ttl time.Duration, log logrus.FieldLogger) *RedisLocker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RedisLocker{
		locker: redislock.New(client),
		ttl:    ttl,
		log:    log.WithField("component", "period_lock"),
	}
}

// Connect parses a redis:// URL, pings the server and returns the client.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// Key returns the lock key of a category and period.
func Key(category string, period closing.Period) string {
	return fmt.Sprintf("closing:%s:%04d-%02d", category, period.Year, period.Month)
}

// Acquire obtains the lock without waiting. A held lock is reported as
// *closing.PeriodBusyError, any other failure as *closing.InfrastructureError.
func (l *RedisLocker) Acquire(ctx context.Context, category string, period closing.Period) (func(), error) {
	key := Key(category, period)
	lk, err := l.locker.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		l.log.WithField("key", key).Warn("period lock held by another batch")
		return nil, &closing.PeriodBusyError{Category: category, Period: period}
	}
	if err != nil {
		return nil, &closing.InfrastructureError{Op: "obtain period lock", Cause: err}
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.keepAlive(lk, key, stop)
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if err := lk.Release(rctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				l.log.WithField("key", key).WithError(err).Warn("failed to release period lock")
			}
		})
	}
	return release, nil
}

func (l *RedisLocker) keepAlive(lk *redislock.Lock, key string, stop <-chan struct{}) {
	interval := l.ttl / 2
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			err := lk.Refresh(ctx, l.ttl, nil)
			cancel()
			if err != nil {
				l.log.WithField("key", key).WithError(err).Warn("failed to refresh period lock")
			}
		}
	}
}
