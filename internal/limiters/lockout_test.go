package limiters

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() LockoutConfig {
	cfg := DefaultLockoutConfig()
	cfg.Threshold = 3
	cfg.Window = 10 * time.Minute
	cfg.BaseDuration = time.Minute
	cfg.MaxDuration = 5 * time.Minute
	return cfg
}

type lockoutFactory func(t *testing.T, cfg LockoutConfig, clock *testClock) Lockout

func backends() map[string]lockoutFactory {
	return map[string]lockoutFactory{
		"memory": func(t *testing.T, cfg LockoutConfig, clock *testClock) Lockout {
			return NewMemoryLockout(cfg, WithClock(clock.Now))
		},
		"redis": func(t *testing.T, cfg LockoutConfig, clock *testClock) Lockout {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return NewRedisLockout(rdb, cfg, WithClock(clock.Now))
		},
	}
}

func TestLockoutLocksAtThreshold(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := &testClock{now: time.Unix(1_700_000_000, 0)}
			l := factory(t, testConfig(), clock)

			for i := 1; i < 3; i++ {
				st, err := l.RecordFailure(ctx, "u1")
				if err != nil {
					t.Fatalf("RecordFailure: %v", err)
				}
				if st.Locked {
					t.Fatalf("locked after %d failures", i)
				}
			}

			st, err := l.RecordFailure(ctx, "u1")
			if err != nil {
				t.Fatalf("RecordFailure: %v", err)
			}
			if !st.Locked {
				t.Fatal("expected lock at threshold")
			}
			if want := clock.Now().Add(time.Minute); !st.Until.Equal(want) {
				t.Fatalf("Until = %v, want %v", st.Until, want)
			}

			st, err = l.Status(ctx, "u1")
			if err != nil || !st.Locked {
				t.Fatalf("Status = %+v, %v; want locked", st, err)
			}

			other, err := l.Status(ctx, "u2")
			if err != nil || other.Locked {
				t.Fatalf("unrelated account affected: %+v, %v", other, err)
			}
		})
	}
}

func TestLockoutExpiresAutomatically(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := &testClock{now: time.Unix(1_700_000_000, 0)}
			l := factory(t, testConfig(), clock)

			for i := 0; i < 3; i++ {
				if _, err := l.RecordFailure(ctx, "u1"); err != nil {
					t.Fatalf("RecordFailure: %v", err)
				}
			}

			clock.Advance(time.Minute)
			st, err := l.Status(ctx, "u1")
			if err != nil {
				t.Fatalf("Status: %v", err)
			}
			if st.Locked {
				t.Fatal("expected lock to expire once now >= until")
			}
		})
	}
}

func TestLockoutBackoffDoubles(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := &testClock{now: time.Unix(1_700_000_000, 0)}
			l := factory(t, testConfig(), clock)

			for i := 0; i < 3; i++ {
				if _, err := l.RecordFailure(ctx, "u1"); err != nil {
					t.Fatalf("RecordFailure: %v", err)
				}
			}
			clock.Advance(time.Minute)

			// Previous failures are still inside the window.
			st, err := l.RecordFailure(ctx, "u1")
			if err != nil {
				t.Fatalf("RecordFailure: %v", err)
			}
			if !st.Locked || st.Failures != 4 {
				t.Fatalf("state = %+v, want locked with 4 failures", st)
			}
			if want := clock.Now().Add(2 * time.Minute); !st.Until.Equal(want) {
				t.Fatalf("Until = %v, want %v", st.Until, want)
			}
		})
	}
}

func TestLockoutFailuresWhileLockedAreIgnored(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := &testClock{now: time.Unix(1_700_000_000, 0)}
			l := factory(t, testConfig(), clock)

			var until time.Time
			for i := 0; i < 3; i++ {
				st, err := l.RecordFailure(ctx, "u1")
				if err != nil {
					t.Fatalf("RecordFailure: %v", err)
				}
				until = st.Until
			}

			st, err := l.RecordFailure(ctx, "u1")
			if err != nil {
				t.Fatalf("RecordFailure: %v", err)
			}
			if st.Failures != 3 || !st.Until.Equal(until) {
				t.Fatalf("failure while locked changed state: %+v", st)
			}
		})
	}
}

func TestLockoutSlidingWindow(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := &testClock{now: time.Unix(1_700_000_000, 0)}
			l := factory(t, testConfig(), clock)

			for i := 0; i < 2; i++ {
				if _, err := l.RecordFailure(ctx, "u1"); err != nil {
					t.Fatalf("RecordFailure: %v", err)
				}
			}
			clock.Advance(11 * time.Minute)

			st, err := l.RecordFailure(ctx, "u1")
			if err != nil {
				t.Fatalf("RecordFailure: %v", err)
			}
			if st.Locked || st.Failures != 1 {
				t.Fatalf("state = %+v, want 1 failure and unlocked", st)
			}
		})
	}
}

func TestLockoutSuccessAndReset(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := &testClock{now: time.Unix(1_700_000_000, 0)}
			l := factory(t, testConfig(), clock)

			for i := 0; i < 2; i++ {
				if _, err := l.RecordFailure(ctx, "u1"); err != nil {
					t.Fatalf("RecordFailure: %v", err)
				}
			}
			if err := l.RecordSuccess(ctx, "u1"); err != nil {
				t.Fatalf("RecordSuccess: %v", err)
			}
			st, err := l.Status(ctx, "u1")
			if err != nil || st.Failures != 0 {
				t.Fatalf("after success: %+v, %v", st, err)
			}

			for i := 0; i < 3; i++ {
				if _, err := l.RecordFailure(ctx, "u1"); err != nil {
					t.Fatalf("RecordFailure: %v", err)
				}
			}
			if err := l.RecordSuccess(ctx, "u1"); err != nil {
				t.Fatalf("RecordSuccess: %v", err)
			}
			if st, _ := l.Status(ctx, "u1"); !st.Locked {
				t.Fatal("success must not clear an active lock")
			}

			if err := l.Reset(ctx, "u1"); err != nil {
				t.Fatalf("Reset: %v", err)
			}
			st, err = l.Status(ctx, "u1")
			if err != nil || st.Locked || st.Failures != 0 {
				t.Fatalf("after reset: %+v, %v", st, err)
			}
		})
	}
}

func TestLockoutConcurrentFailuresCounted(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := &testClock{now: time.Unix(1_700_000_000, 0)}
			cfg := testConfig()
			cfg.Threshold = 50
			l := factory(t, cfg, clock)

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := l.RecordFailure(ctx, "u1"); err != nil {
						t.Errorf("RecordFailure: %v", err)
					}
				}()
			}
			wg.Wait()

			st, err := l.Status(ctx, "u1")
			if err != nil {
				t.Fatalf("Status: %v", err)
			}
			if st.Failures != 20 {
				t.Fatalf("Failures = %d, want 20", st.Failures)
			}
		})
	}
}

func TestLockoutDisabled(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := &testClock{now: time.Unix(1_700_000_000, 0)}
			cfg := testConfig()
			cfg.Enabled = false
			l := factory(t, cfg, clock)

			for i := 0; i < 10; i++ {
				st, err := l.RecordFailure(ctx, "u1")
				if err != nil || st.Locked {
					t.Fatalf("disabled tracker locked: %+v, %v", st, err)
				}
			}
		})
	}
}

func TestBackoffCapped(t *testing.T) {
	cfg := testConfig()
	if got := cfg.Backoff(3); got != time.Minute {
		t.Fatalf("Backoff(3) = %v", got)
	}
	if got := cfg.Backoff(5); got != 4*time.Minute {
		t.Fatalf("Backoff(5) = %v", got)
	}
	if got := cfg.Backoff(100); got != cfg.MaxDuration {
		t.Fatalf("Backoff(100) = %v, want cap", got)
	}
}

func TestMemoryLockoutSweepsIdleEntries(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	l := NewMemoryLockout(testConfig(), WithClock(clock.Now))

	for i := 0; i < sweepEvery-1; i++ {
		if _, err := l.RecordFailure(ctx, "idle-"+strconv.Itoa(i)); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	clock.Advance(time.Hour)
	if _, err := l.RecordFailure(ctx, "fresh"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if n := l.Len(); n != 1 {
		t.Fatalf("Len = %d, want 1 after sweep", n)
	}
}

func TestRedisLockoutUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l := NewRedisLockout(rdb, testConfig())
	mr.Close()

	if _, err := l.RecordFailure(context.Background(), "u1"); err == nil {
		t.Fatal("expected error when redis is down")
	}
}

func hashTag(key string) string {
	start := strings.IndexByte(key, '{')
	if start < 0 {
		return key
	}
	end := strings.IndexByte(key[start+1:], '}')
	if end <= 0 {
		return key
	}
	return key[start+1 : start+1+end]
}

func TestRedisLockoutKeysShareClusterSlot(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l := NewRedisLockout(rdb, testConfig())

	if _, err := l.RecordFailure(context.Background(), "u1"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if !mr.Exists(l.failuresKey("u1")) {
		t.Fatalf("failures key %q not written", l.failuresKey("u1"))
	}
	if hashTag(l.failuresKey("u1")) != "u1" || hashTag(l.lockKey("u1")) != "u1" {
		t.Fatalf("keys %q and %q must share the user hash tag", l.failuresKey("u1"), l.lockKey("u1"))
	}
}
