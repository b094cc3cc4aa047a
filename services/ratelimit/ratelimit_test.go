package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tos/core"
)

func allowN(t *testing.T, limiter core.RateLimiter, key string, n int) []bool {
	t.Helper()
	res := make([]bool, 0, n)
	for i := 0; i < n; i++ {
		ok, err := limiter.Allow(context.Background(), key)
		require.NoError(t, err)
		res = append(res, ok)
	}
	return res
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	limiter := NewRedisLimiter(rdb, clock, 3, time.Minute)

	assert.Equal(t, []bool{true, true, true, false, false}, allowN(t, limiter, "login:1.2.3.4", 5))
	assert.Equal(t, []bool{true}, allowN(t, limiter, "login:5.6.7.8", 1), "keys are independent")

	keys := mr.Keys()
	require.Len(t, keys, 2)
	assert.Greater(t, mr.TTL(keys[0]), time.Duration(0))

	clock.Advance(time.Minute)
	assert.Equal(t, []bool{true, true, true, false}, allowN(t, limiter, "login:1.2.3.4", 4), "a new window starts afresh")
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	limiter := NewRedisLimiter(rdb, clockwork.NewFakeClock(), 3, time.Minute)
	_, err = limiter.Allow(context.Background(), "login:1.2.3.4")
	assert.Error(t, err)
}

func TestMemoryLimiter(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	limiter := NewMemoryLimiter(clock, 3, 3*time.Minute)

	assert.Equal(t, []bool{true, true, true, false}, allowN(t, limiter, "reset:a", 4))
	assert.Equal(t, []bool{true}, allowN(t, limiter, "reset:b", 1), "keys are independent")

	// one token comes back every window/attempts
	clock.Advance(time.Minute)
	assert.Equal(t, []bool{true, false}, allowN(t, limiter, "reset:a", 2))

	clock.Advance(10 * time.Minute)
	assert.Equal(t, []bool{true, true, true, false}, allowN(t, limiter, "reset:a", 4))
}

func TestNew(t *testing.T) {
	conf := core.NewTestConfig()

	limiter, err := New(conf, clockwork.NewFakeClock())
	require.NoError(t, err)
	assert.IsType(t, &MemoryLimiter{}, limiter)

	mr := miniredis.RunT(t)
	conf.Redis.URL = "redis://" + mr.Addr() + "/0"
	limiter, err = New(conf, clockwork.NewFakeClock())
	require.NoError(t, err)
	assert.IsType(t, &RedisLimiter{}, limiter)

	conf.Redis.URL = "not a url"
	_, err = New(conf, clockwork.NewFakeClock())
	assert.Error(t, err)

	conf.RateLimit.Attempts = 0
	_, err = New(conf, clockwork.NewFakeClock())
	assert.Error(t, err)
}
