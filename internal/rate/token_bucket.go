package rate

import (
	"context"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"
)

const sweepEvery = 512

type bucket struct {
	limiter  *xrate.Limiter
	lastSeen time.Time
}

// TokenBucket keeps one golang.org/x/time/rate limiter per key in process.
// Buckets idle for longer than two windows are swept.
type TokenBucket struct {
	config Config
	limit  xrate.Limit
	burst  int
	idle   time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	ops     int
}

// NewTokenBucket refills Requests tokens per Window with capacity Burst.
func NewTokenBucket(cfg Config, opts ...Option) *TokenBucket {
	o := buildOptions(opts)

	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.Requests
	}
	limit := xrate.Limit(0)
	if cfg.Window > 0 {
		limit = xrate.Limit(float64(cfg.Requests) / cfg.Window.Seconds())
	}
	idle := 2 * cfg.Window
	if idle < time.Minute {
		idle = time.Minute
	}

	return &TokenBucket{
		config:  cfg,
		limit:   limit,
		burst:   burst,
		idle:    idle,
		now:     o.now,
		buckets: make(map[string]*bucket),
	}
}

// Allow takes one token for key if available.
func (l *TokenBucket) Allow(_ context.Context, key string) (Result, error) {
	now := l.now()

	l.mu.Lock()
	l.maybeSweep(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: xrate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return Result{Allowed: false, RetryAfter: l.config.Window}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Result{Allowed: false, RetryAfter: delay}, nil
	}

	remaining := int(b.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining}, nil
}

// Len reports the number of live buckets.
func (l *TokenBucket) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// maybeSweep drops idle buckets. Caller holds mu.
func (l *TokenBucket) maybeSweep(now time.Time) {
	l.ops++
	if l.ops < sweepEvery {
		return
	}
	l.ops = 0
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idle {
			delete(l.buckets, key)
		}
	}
}
