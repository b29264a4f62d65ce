package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned when an account with the same email already exists.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidUser is returned when required fields are missing.
	ErrInvalidUser = errors.New("invalid user")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Default role assigned when NewUser.Role is empty.
const DefaultRole = "user"

// User is an account record. PasswordHash holds a one-way PHC string only.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"password_hash"`
	Name          string    `json:"name,omitempty"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"email_verified"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewUser is the input for Repository.CreateUser.
type NewUser struct {
	Email        string
	PasswordHash string
	Name         string
	Role         string
}

// Repository is the storage contract for accounts.
//
// Callers check EmailExists before CreateUser; CreateUser still enforces
// uniqueness itself and returns ErrDuplicateEmail when it loses a race.
type Repository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, in NewUser) (*User, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	EmailExists(ctx context.Context, email string) (bool, error)
}

// NormalizeEmail trims surrounding space and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Build validates in and materialises the record a backend will store.
func Build(in NewUser, now time.Time) (*User, error) {
	email := NormalizeEmail(in.Email)
	if email == "" || in.PasswordHash == "" {
		return nil, ErrInvalidUser
	}
	role := in.Role
	if role == "" {
		role = DefaultRole
	}
	now = now.UTC()
	return &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: in.PasswordHash,
		Name:         strings.TrimSpace(in.Name),
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Clone returns a copy so callers never alias repository state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Option configures repository backends.
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

// WithKeyPrefix sets the Redis key namespace.
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
