package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidSession is returned by Insert when the parameters cannot form a usable session.
	ErrInvalidSession = errors.New("invalid session parameters")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("session record corrupt")
)

// InsertParams carries everything recorded alongside a new session.
//
// RotatedFrom is the previous plaintext token when the session replaces another one;
// repositories persist only its hash.
type InsertParams struct {
	UserID      string
	ExpiresAt   time.Time
	Remember    bool
	IP          string
	UserAgent   string
	RotatedFrom string
}

// Repository is the storage contract for login sessions.
//
// Implementations hash every token before it reaches storage and must stay correct
// under concurrent invocation. GetUserID reports ("", false, nil) for unknown,
// expired and revoked tokens alike.
type Repository interface {
	Insert(ctx context.Context, token string, params InsertParams) error
	Revoke(ctx context.Context, token string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
	GetUserID(ctx context.Context, token string) (string, bool, error)
	CleanupExpired(ctx context.Context) (int, error)
	ActiveSessionCount(ctx context.Context, userID string) (int, error)
}

// Record is the persisted shape of a session. ID is the token hash.
type Record struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Remember    bool       `json:"remember"`
	IP          string     `json:"ip,omitempty"`
	UserAgent   string     `json:"user_agent,omitempty"`
	RotatedFrom string     `json:"rotated_from,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// Live reports whether the record may still authenticate a request at now.
func (r *Record) Live(now time.Time) bool {
	return r != nil && r.RevokedAt == nil && now.Before(r.ExpiresAt)
}

// NewRecord validates params and builds the record stored for token.
// Backends share it so every one of them applies the same checks.
func NewRecord(h *Hasher, token string, params InsertParams, now time.Time) (*Record, error) {
	if h == nil || token == "" || params.UserID == "" {
		return nil, ErrInvalidSession
	}
	if !params.ExpiresAt.After(now) {
		return nil, ErrInvalidSession
	}

	rec := &Record{
		ID:        h.Hash(token),
		UserID:    params.UserID,
		CreatedAt: now.UTC(),
		ExpiresAt: params.ExpiresAt.UTC(),
		Remember:  params.Remember,
		IP:        params.IP,
		UserAgent: params.UserAgent,
	}
	if params.RotatedFrom != "" {
		rec.RotatedFrom = h.Hash(params.RotatedFrom)
	}
	return rec, nil
}

// Option configures repository backends.
type Option func(*options)

type options struct {
	now    func() time.Time
	prefix string
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithKeyPrefix sets the key namespace used by the Redis store.
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
