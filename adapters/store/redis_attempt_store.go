package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/layer-3/doctorauth/core"
	"github.com/layer-3/doctorauth/ports"
	"github.com/redis/go-redis/v9"
)

// reserveScript spends one attempt atomically.
// KEYS[1] attempt hash; ARGV now_ms, max_attempts, lockout_ms.
// Returns {failures, locked_until_ms, reserved}.
const reserveScript = `
local now = tonumber(ARGV[1])
local max_attempts = tonumber(ARGV[2])
local lockout = tonumber(ARGV[3])

local failures = tonumber(redis.call("HGET", KEYS[1], "failures") or "0")
local locked_until = tonumber(redis.call("HGET", KEYS[1], "locked_until") or "0")

if locked_until > now then
  return {failures, locked_until, 0}
end

if locked_until > 0 then
  failures = 0
  locked_until = 0
end

failures = failures + 1
if failures >= max_attempts then
  locked_until = now + lockout
end

redis.call("HSET", KEYS[1], "failures", failures, "locked_until", locked_until)
redis.call("PEXPIRE", KEYS[1], lockout)
return {failures, locked_until, 1}
`

var reserveLua = redis.NewScript(reserveScript)

// RedisAttemptStore is a Redis implementation of the AttemptStore interface
type RedisAttemptStore struct {
	client redis.UniversalClient
}

var _ ports.AttemptStore = (*RedisAttemptStore)(nil)

// NewRedisAttemptStore creates a new Redis attempt store
func NewRedisAttemptStore(client redis.UniversalClient) *RedisAttemptStore {
	return &RedisAttemptStore{client: client}
}

// ReserveAttempt runs the lock check and the increment as a single Lua script
func (s *RedisAttemptStore) ReserveAttempt(ctx context.Context, key string, now time.Time, maxAttempts int, lockout time.Duration) (core.AttemptRecord, bool, error) {
	res, err := reserveLua.Run(ctx, s.client,
		[]string{attemptKey(key)},
		now.UnixMilli(), maxAttempts, lockout.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return core.AttemptRecord{}, false, fmt.Errorf("%w: reserve attempt: %v", core.ErrStoreUnavailable, err)
	}
	if len(res) != 3 {
		return core.AttemptRecord{}, false, fmt.Errorf("%w: unexpected script reply %v", core.ErrStoreUnavailable, res)
	}

	return toRecord(res[0], res[1]), res[2] == 1, nil
}

// Get reads the current record for key
func (s *RedisAttemptStore) Get(ctx context.Context, key string) (core.AttemptRecord, error) {
	fields, err := s.client.HGetAll(ctx, attemptKey(key)).Result()
	if err != nil {
		return core.AttemptRecord{}, fmt.Errorf("%w: read attempts: %v", core.ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return core.AttemptRecord{}, nil
	}

	failures, err := strconv.ParseInt(fields["failures"], 10, 64)
	if err != nil {
		return core.AttemptRecord{}, fmt.Errorf("%w: corrupt attempt record: %v", core.ErrStoreUnavailable, err)
	}
	lockedUntil, err := strconv.ParseInt(fields["locked_until"], 10, 64)
	if err != nil {
		return core.AttemptRecord{}, fmt.Errorf("%w: corrupt attempt record: %v", core.ErrStoreUnavailable, err)
	}

	return toRecord(failures, lockedUntil), nil
}

// Reset deletes the record for key
func (s *RedisAttemptStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, attemptKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: reset attempts: %v", core.ErrStoreUnavailable, err)
	}
	return nil
}

func toRecord(failures, lockedUntilMs int64) core.AttemptRecord {
	record := core.AttemptRecord{Failures: int(failures)}
	if lockedUntilMs > 0 {
		record.LockedUntil = time.UnixMilli(lockedUntilMs)
	}
	return record
}
