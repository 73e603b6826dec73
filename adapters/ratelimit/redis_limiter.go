package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/layer-3/doctorauth/core"
	"github.com/layer-3/doctorauth/ports"
	"github.com/redis/go-redis/v9"
)

// hitScript counts a hit in a fixed window. The first hit sets the window TTL.
// Returns {count, pttl_ms}.
const hitScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`

var hitLua = redis.NewScript(hitScript)

// RedisLimiter is a fixed-window limiter shared by every instance
type RedisLimiter struct {
	client  redis.UniversalClient
	prefix  string
	maxHits int
	window  time.Duration
}

var _ ports.RateLimiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a limiter allowing maxHits per key per window
func NewRedisLimiter(client redis.UniversalClient, maxHits int, window time.Duration) *RedisLimiter {
	maxHits, window = withDefaults(maxHits, window)
	return &RedisLimiter{
		client:  client,
		prefix:  "doctorauth:ratelimit:",
		maxHits: maxHits,
		window:  window,
	}
}

// Allow records a hit for key
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	res, err := hitLua.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("%w: rate limit: %v", core.ErrStoreUnavailable, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("%w: unexpected rate limit reply %v", core.ErrStoreUnavailable, res)
	}

	if res[0] <= int64(l.maxHits) {
		return true, 0, nil
	}

	retryAfter := time.Duration(res[1]) * time.Millisecond
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return false, retryAfter, nil
}

func withDefaults(maxHits int, window time.Duration) (int, time.Duration) {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return maxHits, window
}
