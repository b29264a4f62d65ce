package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/user"
)

// AuthenticateMetrics carries metric IDs needed by the authenticate flow.
type AuthenticateMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginRateLimited int
	AccountLocked    int
}

// AuthenticateEvents carries audit event kinds used by the authenticate flow.
type AuthenticateEvents struct {
	LoginSuccess        string
	LoginFailure        string
	RateLimitExceeded   string
	AccountLocked       string
	InfrastructureError string
}

// AuthenticateErrors carries host-level sentinel errors.
type AuthenticateErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	AccountLocked      error
	RateLimited        error
	Infrastructure     error
}

// LockState mirrors the lockout tracker state without importing it.
type LockState struct {
	Locked   bool
	Until    time.Time
	Failures int
}

// AuthenticateDeps captures credential verification dependencies.
type AuthenticateDeps struct {
	// DummyHash is verified when no account matches, so both paths cost one KDF run.
	DummyHash string

	ClientIPFromContext func(context.Context) string

	// CheckLoginRate returns Errors.RateLimited (possibly wrapped) to reject.
	CheckLoginRate func(context.Context, string) error

	GetUserByEmail     func(context.Context, string) (*user.User, error)
	IsNotFound         func(error) bool
	UpdatePasswordHash func(context.Context, string, string) error

	VerifyPassword func(string, string) (bool, error)
	NeedsRehash    func(string) bool
	HashPassword   func(string) (string, error)

	LockStatus    func(context.Context, string) (LockState, error)
	RecordFailure func(context.Context, string) (LockState, error)
	RecordSuccess func(context.Context, string) error

	MetricInc func(int)
	EmitAudit func(ctx context.Context, kind string, success bool, subject string, err error, metadata func() map[string]string)
	LogError  func(msg string, err error)
	Warn      func(msg string, err error)

	Metrics AuthenticateMetrics
	Events  AuthenticateEvents
	Errors  AuthenticateErrors
}

func normalizeAuthenticateDeps(deps *AuthenticateDeps) {
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(err error) bool { return errors.Is(err, user.ErrNotFound) }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if deps.LogError == nil {
		deps.LogError = func(string, error) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, error) {}
	}
	if deps.LockStatus == nil {
		deps.LockStatus = func(context.Context, string) (LockState, error) { return LockState{}, nil }
	}
	if deps.RecordFailure == nil {
		deps.RecordFailure = func(context.Context, string) (LockState, error) { return LockState{}, nil }
	}
	if deps.RecordSuccess == nil {
		deps.RecordSuccess = func(context.Context, string) error { return nil }
	}
}

// RunAuthenticate verifies email and password and returns the matching account.
//
// Every credential failure, including an unknown email, an inactive account and an
// empty password, returns Errors.InvalidCredentials after one full verification.
// A locked account returns Errors.AccountLocked without verifying.
func RunAuthenticate(ctx context.Context, email, password string, deps AuthenticateDeps) (*user.User, error) {
	normalizeAuthenticateDeps(&deps)

	if deps.GetUserByEmail == nil || deps.VerifyPassword == nil || deps.DummyHash == "" {
		return nil, deps.Errors.EngineNotReady
	}

	ip := deps.ClientIPFromContext(ctx)

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, ip); err != nil {
			if errors.Is(err, deps.Errors.RateLimited) {
				deps.MetricInc(deps.Metrics.LoginRateLimited)
				deps.EmitAudit(ctx, deps.Events.RateLimitExceeded, false, "", err, func() map[string]string {
					return map[string]string{"scope": "login"}
				})
				return nil, deps.Errors.RateLimited
			}
			return nil, infrastructureFailure(ctx, &deps, "login rate limit check failed", err)
		}
	}

	u, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		if !deps.IsNotFound(err) {
			return nil, infrastructureFailure(ctx, &deps, "user lookup failed", err)
		}
		if _, err := deps.VerifyPassword(password, deps.DummyHash); err != nil {
			deps.LogError("dummy password verification failed", err)
		}
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "unknown_user"}
		})
		return nil, deps.Errors.InvalidCredentials
	}

	state, err := deps.LockStatus(ctx, u.ID)
	if err != nil {
		return nil, infrastructureFailure(ctx, &deps, "lockout status failed", err)
	}
	if state.Locked {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, u.ID, deps.Errors.AccountLocked, func() map[string]string {
			return map[string]string{
				"reason":       "account_locked",
				"locked_until": state.Until.UTC().Format(time.RFC3339),
			}
		})
		return nil, deps.Errors.AccountLocked
	}

	ok, err := deps.VerifyPassword(password, u.PasswordHash)
	if err != nil {
		return nil, infrastructureFailure(ctx, &deps, "password verification failed", err)
	}
	if !ok {
		recordFailure(ctx, &deps, u.ID)
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, u.ID, deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "password_mismatch"}
		})
		return nil, deps.Errors.InvalidCredentials
	}

	if !u.Active {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, u.ID, deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "inactive"}
		})
		return nil, deps.Errors.InvalidCredentials
	}

	if err := deps.RecordSuccess(ctx, u.ID); err != nil {
		deps.Warn("lockout reset failed", err)
	}

	if deps.NeedsRehash != nil && deps.HashPassword != nil && deps.UpdatePasswordHash != nil && deps.NeedsRehash(u.PasswordHash) {
		if upgraded, err := deps.HashPassword(password); err == nil {
			if err := deps.UpdatePasswordHash(ctx, u.ID, upgraded); err != nil {
				deps.Warn("password hash upgrade update failed", err)
			} else {
				u.PasswordHash = upgraded
			}
		} else {
			deps.Warn("password hash upgrade generation failed", err)
		}
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, u.ID, nil, nil)
	return u, nil
}

// recordFailure counts the failure and reports the lock transition. A lockout
// backend error is logged; the caller still sees invalid credentials.
func recordFailure(ctx context.Context, deps *AuthenticateDeps, userID string) {
	state, err := deps.RecordFailure(ctx, userID)
	if err != nil {
		deps.LogError("lockout record failure failed", err)
		return
	}
	if !state.Locked {
		return
	}
	deps.MetricInc(deps.Metrics.AccountLocked)
	deps.EmitAudit(ctx, deps.Events.AccountLocked, false, userID, nil, func() map[string]string {
		return map[string]string{
			"failures":     fmt.Sprint(state.Failures),
			"locked_until": state.Until.UTC().Format(time.RFC3339),
		}
	})
}

func infrastructureFailure(ctx context.Context, deps *AuthenticateDeps, msg string, err error) error {
	deps.LogError(msg, err)
	deps.EmitAudit(ctx, deps.Events.InfrastructureError, false, "", err, func() map[string]string {
		return map[string]string{"operation": "authenticate"}
	})
	return fmt.Errorf("%w: %v", deps.Errors.Infrastructure, err)
}
