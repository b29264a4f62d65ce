package rate

import (
	"context"
	"time"
)

// Config holds limiter tuning parameters. Burst applies to TokenBucket only;
// zero means Requests.
type Config struct {
	Requests int
	Window   time.Duration
	Burst    int
}

// Result describes one admission decision.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits or rejects one request for key. Implementations are safe for
// concurrent use.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Option configures a limiter.
type Option func(*options)

type options struct {
	now    func() time.Time
	prefix string
}

// WithClock overrides the time source used by TokenBucket.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithKeyPrefix sets the Redis key namespace (default "gs").
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, prefix: "gs"}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
