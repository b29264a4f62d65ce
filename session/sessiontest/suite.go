// Package sessiontest provides a conformance suite for session.Repository
// implementations.
package sessiontest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/session"
)

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Factory builds a fresh, empty repository that reads time from now.
type Factory func(t *testing.T, now func() time.Time) session.Repository

// Run exercises the full repository contract against factory.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("InsertThenGetUserID", func(t *testing.T) { testInsertThenGet(t, factory) })
	t.Run("InsertRejectsInvalid", func(t *testing.T) { testInsertRejectsInvalid(t, factory) })
	t.Run("RevokeIsPermanentAndIdempotent", func(t *testing.T) { testRevoke(t, factory) })
	t.Run("ExpiredSessionIsNone", func(t *testing.T) { testExpired(t, factory) })
	t.Run("RevokeAllForUser", func(t *testing.T) { testRevokeAll(t, factory) })
	t.Run("CleanupExpiredShrinks", func(t *testing.T) { testCleanup(t, factory) })
	t.Run("ConcurrentRevokeAndLookup", func(t *testing.T) { testConcurrentRevoke(t, factory) })
}

func newToken(t *testing.T) string {
	t.Helper()
	tok, err := session.NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	return tok
}

func params(userID string, expires time.Time) session.InsertParams {
	return session.InsertParams{
		UserID:    userID,
		ExpiresAt: expires,
		IP:        "203.0.113.7",
		UserAgent: "sessiontest/1.0",
	}
}

func testInsertThenGet(t *testing.T, factory Factory) {
	clock := NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := factory(t, clock.Now)
	ctx := context.Background()

	tok := newToken(t)
	if err := repo.Insert(ctx, tok, params("user-1", clock.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	userID, ok, err := repo.GetUserID(ctx, tok)
	if err != nil {
		t.Fatalf("GetUserID: %v", err)
	}
	if !ok || userID != "user-1" {
		t.Fatalf("expected user-1, got %q ok=%v", userID, ok)
	}

	if _, ok, err := repo.GetUserID(ctx, newToken(t)); err != nil || ok {
		t.Fatalf("unknown token resolved: ok=%v err=%v", ok, err)
	}

	count, err := repo.ActiveSessionCount(ctx, "user-1")
	if err != nil {
		t.Fatalf("ActiveSessionCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 active session, got %d", count)
	}
}

func testInsertRejectsInvalid(t *testing.T, factory Factory) {
	clock := NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := factory(t, clock.Now)
	ctx := context.Background()

	cases := map[string]struct {
		token  string
		params session.InsertParams
	}{
		"empty token":    {"", params("user-1", clock.Now().Add(time.Hour))},
		"empty user":     {newToken(t), params("", clock.Now().Add(time.Hour))},
		"expiry in past": {newToken(t), params("user-1", clock.Now().Add(-time.Minute))},
		"expiry now":     {newToken(t), params("user-1", clock.Now())},
	}
	for name, tc := range cases {
		if err := repo.Insert(ctx, tc.token, tc.params); !errors.Is(err, session.ErrInvalidSession) {
			t.Fatalf("%s: expected ErrInvalidSession, got %v", name, err)
		}
	}
}

func testRevoke(t *testing.T, factory Factory) {
	clock := NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := factory(t, clock.Now)
	ctx := context.Background()

	tok := newToken(t)
	if err := repo.Insert(ctx, tok, params("user-1", clock.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	found, err := repo.Revoke(ctx, tok)
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if !found {
		t.Fatal("expected first revoke to find a live session")
	}

	found, err = repo.Revoke(ctx, tok)
	if err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
	if found {
		t.Fatal("expected second revoke to report no live session")
	}

	for i := 0; i < 3; i++ {
		if _, ok, err := repo.GetUserID(ctx, tok); err != nil || ok {
			t.Fatalf("revoked token resolved: ok=%v err=%v", ok, err)
		}
	}

	if found, err := repo.Revoke(ctx, newToken(t)); err != nil || found {
		t.Fatalf("revoking unknown token: found=%v err=%v", found, err)
	}
}

func testExpired(t *testing.T, factory Factory) {
	clock := NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := factory(t, clock.Now)
	ctx := context.Background()

	tok := newToken(t)
	if err := repo.Insert(ctx, tok, params("user-1", clock.Now().Add(time.Minute))); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	clock.Advance(2 * time.Minute)

	if _, ok, err := repo.GetUserID(ctx, tok); err != nil || ok {
		t.Fatalf("expired token resolved: ok=%v err=%v", ok, err)
	}
	if found, err := repo.Revoke(ctx, tok); err != nil || found {
		t.Fatalf("revoking expired token: found=%v err=%v", found, err)
	}
}

func testRevokeAll(t *testing.T, factory Factory) {
	clock := NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := factory(t, clock.Now)
	ctx := context.Background()

	const n = 5
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = newToken(t)
		if err := repo.Insert(ctx, tokens[i], params("user-a", clock.Now().Add(time.Hour))); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}
	other := newToken(t)
	if err := repo.Insert(ctx, other, params("user-b", clock.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Insert other: %v", err)
	}

	count, err := repo.RevokeAllForUser(ctx, "user-a")
	if err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}
	if count != n {
		t.Fatalf("expected %d revoked, got %d", n, count)
	}

	for i, tok := range tokens {
		if _, ok, err := repo.GetUserID(ctx, tok); err != nil || ok {
			t.Fatalf("token %d still resolves: ok=%v err=%v", i, ok, err)
		}
	}
	if userID, ok, err := repo.GetUserID(ctx, other); err != nil || !ok || userID != "user-b" {
		t.Fatalf("unrelated user affected: %q ok=%v err=%v", userID, ok, err)
	}

	count, err = repo.RevokeAllForUser(ctx, "user-a")
	if err != nil {
		t.Fatalf("second RevokeAllForUser: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 on second call, got %d", count)
	}
}

func testCleanup(t *testing.T, factory Factory) {
	clock := NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := factory(t, clock.Now)
	ctx := context.Background()

	short := newToken(t)
	long := newToken(t)
	revoked := newToken(t)
	if err := repo.Insert(ctx, short, params("user-1", clock.Now().Add(time.Minute))); err != nil {
		t.Fatalf("Insert short: %v", err)
	}
	if err := repo.Insert(ctx, long, params("user-1", clock.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Insert long: %v", err)
	}
	if err := repo.Insert(ctx, revoked, params("user-2", clock.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Insert revoked: %v", err)
	}
	if _, err := repo.Revoke(ctx, revoked); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	clock.Advance(10 * time.Minute)

	removed, err := repo.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if removed < 1 {
		t.Fatalf("expected cleanup to remove the expired session, removed=%d", removed)
	}

	if userID, ok, err := repo.GetUserID(ctx, long); err != nil || !ok || userID != "user-1" {
		t.Fatalf("live session removed by cleanup: %q ok=%v err=%v", userID, ok, err)
	}
	if _, ok, _ := repo.GetUserID(ctx, short); ok {
		t.Fatal("expired session resolved after cleanup")
	}

	again, err := repo.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("second CleanupExpired: %v", err)
	}
	if again != 0 {
		t.Fatalf("expected idempotent cleanup, removed=%d", again)
	}

	count, err := repo.ActiveSessionCount(ctx, "user-1")
	if err != nil {
		t.Fatalf("ActiveSessionCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 active session after cleanup, got %d", count)
	}
}

func testConcurrentRevoke(t *testing.T, factory Factory) {
	clock := NewClock(time.Now())
	repo := factory(t, clock.Now)
	ctx := context.Background()

	const sessions = 20
	const readers = 4

	for i := 0; i < sessions; i++ {
		tok := newToken(t)
		userID := fmt.Sprintf("user-%d", i)
		if err := repo.Insert(ctx, tok, params(userID, clock.Now().Add(time.Hour))); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		var (
			revoked    atomic.Bool
			violations atomic.Int64
			wg         sync.WaitGroup
			stop       = make(chan struct{})
		)

		for r := 0; r < readers; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
					}
					committed := revoked.Load()
					_, ok, err := repo.GetUserID(ctx, tok)
					if err != nil {
						continue
					}
					if committed && ok {
						violations.Add(1)
					}
				}
			}()
		}

		if _, err := repo.Revoke(ctx, tok); err != nil {
			close(stop)
			wg.Wait()
			t.Fatalf("Revoke: %v", err)
		}
		revoked.Store(true)

		time.Sleep(2 * time.Millisecond)
		close(stop)
		wg.Wait()

		if v := violations.Load(); v != 0 {
			t.Fatalf("session %d resolved %d times after revoke returned", i, v)
		}
	}
}
