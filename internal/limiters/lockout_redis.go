package limiters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KEYS[1] failures zset, KEYS[2] lock key.
// ARGV: now_ms, window_ms, threshold, base_ms, max_ms, member.
var recordFailureLua = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local threshold = tonumber(ARGV[3])
local base = tonumber(ARGV[4])
local maxd = tonumber(ARGV[5])

local lockedUntil = tonumber(redis.call('GET', KEYS[2]) or '0')
if lockedUntil > now then
  return {1, lockedUntil, redis.call('ZCARD', KEYS[1])}
end

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
redis.call('ZADD', KEYS[1], now, ARGV[6])
redis.call('PEXPIRE', KEYS[1], window)
local count = redis.call('ZCARD', KEYS[1])
if count < threshold then
  return {0, 0, count}
end

local d = base * (2 ^ (count - threshold))
if maxd > 0 and d > maxd then
  d = maxd
end
d = math.floor(d)
if d < 1 then
  d = 1
end
local untilMs = now + d
redis.call('SET', KEYS[2], untilMs, 'PX', d)
return {1, untilMs, count}
`)

// KEYS[1] failures zset, KEYS[2] lock key. ARGV: now_ms, window_ms.
var statusLua = redis.NewScript(`
local now = tonumber(ARGV[1])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - tonumber(ARGV[2]))
local count = redis.call('ZCARD', KEYS[1])
local lockedUntil = tonumber(redis.call('GET', KEYS[2]) or '0')
if lockedUntil > now then
  return {1, lockedUntil, count}
end
return {0, 0, count}
`)

// KEYS[1] failures zset, KEYS[2] lock key. ARGV: now_ms.
var recordSuccessLua = redis.NewScript(`
local lockedUntil = tonumber(redis.call('GET', KEYS[2]) or '0')
if lockedUntil > tonumber(ARGV[1]) then
  return 0
end
redis.call('DEL', KEYS[1], KEYS[2])
return 1
`)

// RedisLockout shares lockout state across instances. Each transition runs as a
// single Lua script so concurrent failures are never double counted or lost.
type RedisLockout struct {
	redis  redis.UniversalClient
	config LockoutConfig
	now    func() time.Time
	prefix string
}

// NewRedisLockout creates a Redis-backed lockout tracker.
func NewRedisLockout(redisClient redis.UniversalClient, cfg LockoutConfig, opts ...Option) *RedisLockout {
	o := buildOptions(opts)
	return &RedisLockout{
		redis:  redisClient,
		config: cfg,
		now:    o.now,
		prefix: o.prefix,
	}
}

// Both keys of an account carry the user id as hash tag so each script stays on
// one cluster slot.
func (l *RedisLockout) failuresKey(userID string) string {
	return l.prefix + ":lo:{" + userID + "}:f"
}

func (l *RedisLockout) lockKey(userID string) string {
	return l.prefix + ":lo:{" + userID + "}:l"
}

func (l *RedisLockout) Status(ctx context.Context, userID string) (LockState, error) {
	if !l.config.Enabled || userID == "" {
		return LockState{}, nil
	}

	res, err := statusLua.Run(ctx, l.redis,
		[]string{l.failuresKey(userID), l.lockKey(userID)},
		l.now().UnixMilli(), l.config.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return LockState{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return parseLockState(res)
}

func (l *RedisLockout) RecordFailure(ctx context.Context, userID string) (LockState, error) {
	if !l.config.Enabled || userID == "" {
		return LockState{}, nil
	}

	now := l.now().UnixMilli()
	member := strconv.FormatInt(now, 10) + ":" + uuid.NewString()
	res, err := recordFailureLua.Run(ctx, l.redis,
		[]string{l.failuresKey(userID), l.lockKey(userID)},
		now,
		l.config.Window.Milliseconds(),
		l.config.Threshold,
		l.config.BaseDuration.Milliseconds(),
		l.config.MaxDuration.Milliseconds(),
		member,
	).Int64Slice()
	if err != nil {
		return LockState{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return parseLockState(res)
}

func (l *RedisLockout) RecordSuccess(ctx context.Context, userID string) error {
	if !l.config.Enabled || userID == "" {
		return nil
	}

	err := recordSuccessLua.Run(ctx, l.redis,
		[]string{l.failuresKey(userID), l.lockKey(userID)},
		l.now().UnixMilli(),
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

func (l *RedisLockout) Reset(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}

	if err := l.redis.Del(ctx, l.failuresKey(userID), l.lockKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

func parseLockState(res []int64) (LockState, error) {
	if len(res) != 3 {
		return LockState{}, fmt.Errorf("%w: unexpected script reply", ErrLockoutUnavailable)
	}
	st := LockState{Failures: int(res[2])}
	if res[0] == 1 {
		st.Locked = true
		st.Until = time.UnixMilli(res[1])
	}
	return st, nil
}
