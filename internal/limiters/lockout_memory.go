package limiters

import (
	"context"
	"sync"
	"time"
)

const sweepEvery = 256

type lockEntry struct {
	failures    []time.Time
	lockedUntil time.Time
}

// MemoryLockout keeps lockout state in process. It is consistent within one
// process only; use RedisLockout when several instances share accounts.
type MemoryLockout struct {
	config LockoutConfig
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*lockEntry
	ops     int
}

// NewMemoryLockout creates an in-process lockout tracker.
func NewMemoryLockout(cfg LockoutConfig, opts ...Option) *MemoryLockout {
	o := buildOptions(opts)
	return &MemoryLockout{
		config:  cfg,
		now:     o.now,
		entries: make(map[string]*lockEntry),
	}
}

func (l *MemoryLockout) Status(_ context.Context, userID string) (LockState, error) {
	if !l.config.Enabled || userID == "" {
		return LockState{}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[userID]
	if !ok {
		return LockState{}, nil
	}
	l.prune(e, now)
	return e.state(now), nil
}

func (l *MemoryLockout) RecordFailure(_ context.Context, userID string) (LockState, error) {
	if !l.config.Enabled || userID == "" {
		return LockState{}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.maybeSweep(now)

	e, ok := l.entries[userID]
	if !ok {
		e = &lockEntry{}
		l.entries[userID] = e
	}
	if e.lockedUntil.After(now) {
		return e.state(now), nil
	}

	l.prune(e, now)
	e.failures = append(e.failures, now)
	if len(e.failures) >= l.config.Threshold {
		e.lockedUntil = now.Add(l.config.Backoff(len(e.failures)))
	}
	return e.state(now), nil
}

func (l *MemoryLockout) RecordSuccess(_ context.Context, userID string) error {
	if !l.config.Enabled || userID == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[userID]
	if !ok {
		return nil
	}
	if e.lockedUntil.After(l.now()) {
		return nil
	}
	delete(l.entries, userID)
	return nil
}

func (l *MemoryLockout) Reset(_ context.Context, userID string) error {
	if userID == "" {
		return nil
	}

	l.mu.Lock()
	delete(l.entries, userID)
	l.mu.Unlock()
	return nil
}

// Len reports the number of tracked accounts.
func (l *MemoryLockout) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryLockout) prune(e *lockEntry, now time.Time) {
	cutoff := now.Add(-l.config.Window)
	keep := e.failures[:0]
	for _, ts := range e.failures {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	e.failures = keep
}

// maybeSweep drops idle entries so the map stays bounded. Caller holds mu.
func (l *MemoryLockout) maybeSweep(now time.Time) {
	l.ops++
	if l.ops < sweepEvery {
		return
	}
	l.ops = 0
	for id, e := range l.entries {
		l.prune(e, now)
		if len(e.failures) == 0 && !e.lockedUntil.After(now) {
			delete(l.entries, id)
		}
	}
}

func (e *lockEntry) state(now time.Time) LockState {
	st := LockState{Failures: len(e.failures)}
	if e.lockedUntil.After(now) {
		st.Locked = true
		st.Until = e.lockedUntil
	}
	return st
}
