package rate

import "errors"

var (
	// ErrRateLimited is returned by callers that turn a denied Result into an error.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures from RedisWindow.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
