package goSession

import (
	"errors"

	"github.com/MrEthical07/goSession/user"
)

var (
	// ErrInvalidCredentials covers every credential failure: unknown email, wrong
	// password, inactive account. Callers must not learn which one occurred.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while the account is temporarily locked.
	ErrAccountLocked = errors.New("account locked")
	// ErrRateLimited is returned when the caller exceeded its request budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotAuthenticated collapses missing, expired and revoked sessions.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrDuplicateEmail is returned when registering an email that is already taken.
	ErrDuplicateEmail = user.ErrDuplicateEmail
	// ErrInfrastructure wraps storage and hashing backend failures.
	ErrInfrastructure = errors.New("authentication backend unavailable")
	// ErrInvalidInput wraps request validation failures (password policy, email format).
	ErrInvalidInput = errors.New("invalid input")
	// ErrEngineNotReady is returned when the Engine was not built through Builder.Build.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrWeakSecret is returned by Config.Validate for a short session secret.
	ErrWeakSecret = errors.New("session secret too weak")
)
