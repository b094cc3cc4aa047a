package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/trezcool/tos/core"
)

const keyPrefix = "ratelimit"

// RedisLimiter counts attempts per fixed window in redis, so limits hold across API instances.
type RedisLimiter struct {
	rdb      *redis.Client
	clock    clockwork.Clock
	attempts int
	window   time.Duration
}

var _ core.RateLimiter = (*RedisLimiter)(nil)

func NewRedisLimiter(rdb *redis.Client, clock clockwork.Clock, attempts int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, clock: clock, attempts: attempts, window: window}
}

// Allow increments the counter of key's current window and reports whether it is within the limit.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := l.clock.Now().UnixNano() / int64(l.window)
	rkey := fmt.Sprintf("%s:%s:%d", keyPrefix, key, bucket)

	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, rkey)
		pipe.Expire(ctx, rkey, l.window)
		return nil
	})
	if err != nil {
		return false, errors.Wrap(err, "counting attempts")
	}
	return incr.Val() <= int64(l.attempts), nil
}

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter is a per-process token bucket limiter refilling attempts tokens every window.
type MemoryLimiter struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	limiters  map[string]*memoryEntry
	limit     rate.Limit
	burst     int
	window    time.Duration
	cleanupAt time.Time
}

var _ core.RateLimiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(clock clockwork.Clock, attempts int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		clock:     clock,
		limiters:  make(map[string]*memoryEntry),
		limit:     rate.Every(window / time.Duration(attempts)),
		burst:     attempts,
		window:    window,
		cleanupAt: clock.Now().Add(window),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.cleanupAt) {
		l.cleanup(now)
		l.cleanupAt = now.Add(l.window)
	}

	entry, ok := l.limiters[key]
	if !ok {
		entry = &memoryEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1), nil
}

// cleanup drops the limiters idle for a whole window, which are full again; callers hold mu.
func (l *MemoryLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-l.window)
	for key, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
		}
	}
}

// New returns a RedisLimiter when a redis URL is configured, a MemoryLimiter otherwise.
func New(conf *core.Config, clock clockwork.Clock) (core.RateLimiter, error) {
	attempts, window := conf.RateLimit.Attempts, conf.RateLimit.Window
	if attempts < 1 || window <= 0 {
		return nil, errors.Errorf("invalid rate limit: %d attempts per %s", attempts, window)
	}
	if conf.Redis.URL == "" {
		return NewMemoryLimiter(clock, attempts, window), nil
	}
	opts, err := redis.ParseURL(conf.Redis.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis URL")
	}
	return NewRedisLimiter(redis.NewClient(opts), clock, attempts, window), nil
}
