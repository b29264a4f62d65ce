package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KEYS[1] counter. ARGV[1] window ms. Returns {count, pttl}.
var incrementWithTTLLua = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisWindow is a fixed-window counter shared by every instance using the same
// Redis. The first hit in a window sets the expiry; PTTL gives the retry delay.
type RedisWindow struct {
	redis  redis.UniversalClient
	config Config
	prefix string
}

// NewRedisWindow creates a fixed-window limiter.
func NewRedisWindow(redisClient redis.UniversalClient, cfg Config, opts ...Option) *RedisWindow {
	o := buildOptions(opts)
	return &RedisWindow{
		redis:  redisClient,
		config: cfg,
		prefix: o.prefix,
	}
}

func (l *RedisWindow) key(key string) string {
	return l.prefix + ":rl:" + key
}

// Allow counts the request and reports whether it fits in the current window.
func (l *RedisWindow) Allow(ctx context.Context, key string) (Result, error) {
	count, ttl, err := l.incrementWithTTL(ctx, l.key(key), l.config.Window)
	if err != nil {
		return Result{}, err
	}

	limit := int64(l.config.Requests)
	if count > limit {
		return Result{Allowed: false, RetryAfter: ttl}, nil
	}
	return Result{Allowed: true, Remaining: int(limit - count)}, nil
}

// Reset clears the counter for key.
func (l *RedisWindow) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *RedisWindow) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	res, err := incrementWithTTLLua.Run(ctx, l.redis, []string{key}, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("%w: unexpected script reply", ErrRedisUnavailable)
	}

	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}
