package limiters

import (
	"context"
	"errors"
	"math"
	"time"
)

// LockoutConfig holds configuration for the account lockout tracker.
type LockoutConfig struct {
	Enabled bool
	// Threshold is the number of failures within Window that locks the account.
	Threshold    int
	Window       time.Duration
	BaseDuration time.Duration
	MaxDuration  time.Duration
}

// DefaultLockoutConfig returns 10 failures within 15m, 15m base lock, 24h cap.
func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		Enabled:      true,
		Threshold:    10,
		Window:       15 * time.Minute,
		BaseDuration: 15 * time.Minute,
		MaxDuration:  24 * time.Hour,
	}
}

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// LockState is the observed state of one account.
type LockState struct {
	Locked   bool
	Until    time.Time
	Failures int
}

// Lockout is the per-account failure counter and temporary-lock state machine.
// Locked accounts unlock automatically once the clock reaches Until, or through Reset.
type Lockout interface {
	Status(ctx context.Context, userID string) (LockState, error)
	// RecordFailure counts one failed verification. A failure recorded while the
	// account is locked is ignored.
	RecordFailure(ctx context.Context, userID string) (LockState, error)
	RecordSuccess(ctx context.Context, userID string) error
	Reset(ctx context.Context, userID string) error
}

// Backoff returns the lock duration for failures >= Threshold.
func (c LockoutConfig) Backoff(failures int) time.Duration {
	exp := failures - c.Threshold
	if exp < 0 {
		exp = 0
	}
	if exp > 62 {
		return c.MaxDuration
	}
	d := float64(c.BaseDuration) * math.Pow(2, float64(exp))
	if c.MaxDuration > 0 && d > float64(c.MaxDuration) {
		return c.MaxDuration
	}
	return time.Duration(d)
}

// Option configures a lockout backend.
type Option func(*options)

type options struct {
	now    func() time.Time
	prefix string
}

// WithClock overrides the time source.
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
