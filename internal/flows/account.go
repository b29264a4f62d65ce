package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/user"
)

// RegisterRequest is the flow-local registration input.
type RegisterRequest struct {
	Email           string
	Password        string
	ConfirmPassword string
	Name            string
	Role            string
}

type AccountEvents struct {
	AccountCreated      string
	PasswordChanged     string
	SessionsRevokedAll  string
	AccountLocked       string
	InfrastructureError string
}

type AccountMetrics struct {
	AccountCreated   int
	AccountDuplicate int
	PasswordChanged  int
	AccountLocked    int
}

type AccountErrors struct {
	EngineNotReady     error
	InvalidInput       error
	InvalidCredentials error
	AccountLocked      error
	DuplicateEmail     error
	Infrastructure     error
}

// AccountDeps captures registration and password-change dependencies.
type AccountDeps struct {
	ValidateEmail    func(string) error
	ValidatePassword func(string, ...string) error

	EmailExists        func(context.Context, string) (bool, error)
	CreateUser         func(context.Context, user.NewUser) (*user.User, error)
	GetUserByID        func(context.Context, string) (*user.User, error)
	UpdatePasswordHash func(context.Context, string, string) error
	RevokeAllForUser   func(context.Context, string) (int, error)
	IsDuplicate        func(error) bool

	HashPassword   func(string) (string, error)
	VerifyPassword func(string, string) (bool, error)

	// Lockout hooks share the login failure counter, so current-password guesses
	// through ChangePassword lock the account as wrong logins do.
	LockStatus    func(context.Context, string) (LockState, error)
	RecordFailure func(context.Context, string) (LockState, error)
	RecordSuccess func(context.Context, string) error

	MetricInc func(int)
	EmitAudit func(ctx context.Context, kind string, success bool, subject string, err error, metadata func() map[string]string)
	LogError  func(msg string, err error)
	Warn      func(msg string, err error)

	Metrics AccountMetrics
	Events  AccountEvents
	Errors  AccountErrors
}

func normalizeAccountDeps(deps *AccountDeps) {
	if deps.ValidateEmail == nil {
		deps.ValidateEmail = func(string) error { return nil }
	}
	if deps.ValidatePassword == nil {
		deps.ValidatePassword = func(string, ...string) error { return nil }
	}
	if deps.IsDuplicate == nil {
		deps.IsDuplicate = func(err error) bool { return errors.Is(err, user.ErrDuplicateEmail) }
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

// RunRegister validates input, checks the email is free and creates the account.
// A concurrent registration that wins the race surfaces as Errors.DuplicateEmail
// through the repository's uniqueness guarantee.
func RunRegister(ctx context.Context, req RegisterRequest, deps AccountDeps) (*user.User, error) {
	normalizeAccountDeps(&deps)

	if deps.EmailExists == nil || deps.CreateUser == nil || deps.HashPassword == nil {
		return nil, deps.Errors.EngineNotReady
	}

	if err := deps.ValidateEmail(req.Email); err != nil {
		return nil, fmt.Errorf("%w: %w", deps.Errors.InvalidInput, err)
	}
	if err := deps.ValidatePassword(req.Password, req.Email, req.Name); err != nil {
		return nil, fmt.Errorf("%w: %w", deps.Errors.InvalidInput, err)
	}
	if req.Password != req.ConfirmPassword {
		return nil, fmt.Errorf("%w: passwords do not match", deps.Errors.InvalidInput)
	}

	exists, err := deps.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, accountInfrastructureFailure(ctx, &deps, "register", err)
	}
	if exists {
		deps.MetricInc(deps.Metrics.AccountDuplicate)
		return nil, deps.Errors.DuplicateEmail
	}

	hash, err := deps.HashPassword(req.Password)
	if err != nil {
		return nil, accountInfrastructureFailure(ctx, &deps, "register", err)
	}

	created, err := deps.CreateUser(ctx, user.NewUser{
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Role:         req.Role,
	})
	if err != nil {
		if deps.IsDuplicate(err) {
			deps.MetricInc(deps.Metrics.AccountDuplicate)
			return nil, deps.Errors.DuplicateEmail
		}
		return nil, accountInfrastructureFailure(ctx, &deps, "register", err)
	}

	deps.MetricInc(deps.Metrics.AccountCreated)
	deps.EmitAudit(ctx, deps.Events.AccountCreated, true, created.ID, nil, nil)
	return created, nil
}

// RunChangePassword verifies the current password, stores the new hash and
// revokes every session of the account. It returns the number of revoked sessions.
//
// A locked account returns Errors.AccountLocked without verifying. A wrong current
// password counts toward the lockout threshold.
func RunChangePassword(ctx context.Context, userID, current, next string, deps AccountDeps) (int, error) {
	normalizeAccountDeps(&deps)

	if deps.GetUserByID == nil || deps.UpdatePasswordHash == nil || deps.RevokeAllForUser == nil ||
		deps.HashPassword == nil || deps.VerifyPassword == nil {
		return 0, deps.Errors.EngineNotReady
	}

	u, err := deps.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return 0, deps.Errors.InvalidCredentials
		}
		return 0, accountInfrastructureFailure(ctx, &deps, "change_password", err)
	}

	state, err := deps.LockStatus(ctx, u.ID)
	if err != nil {
		return 0, accountInfrastructureFailure(ctx, &deps, "change_password", err)
	}
	if state.Locked {
		return 0, deps.Errors.AccountLocked
	}

	ok, err := deps.VerifyPassword(current, u.PasswordHash)
	if err != nil {
		return 0, accountInfrastructureFailure(ctx, &deps, "change_password", err)
	}
	if !ok {
		recordAccountFailure(ctx, &deps, u.ID)
		return 0, deps.Errors.InvalidCredentials
	}
	if err := deps.RecordSuccess(ctx, u.ID); err != nil {
		deps.Warn("lockout reset failed", err)
	}

	if err := deps.ValidatePassword(next, u.Email, u.Name); err != nil {
		return 0, fmt.Errorf("%w: %w", deps.Errors.InvalidInput, err)
	}
	if next == current {
		return 0, fmt.Errorf("%w: new password must differ from the current one", deps.Errors.InvalidInput)
	}

	hash, err := deps.HashPassword(next)
	if err != nil {
		return 0, accountInfrastructureFailure(ctx, &deps, "change_password", err)
	}
	if err := deps.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		return 0, accountInfrastructureFailure(ctx, &deps, "change_password", err)
	}

	revoked, err := deps.RevokeAllForUser(ctx, u.ID)
	if err != nil {
		return 0, accountInfrastructureFailure(ctx, &deps, "change_password", err)
	}

	deps.MetricInc(deps.Metrics.PasswordChanged)
	deps.EmitAudit(ctx, deps.Events.PasswordChanged, true, u.ID, nil, nil)
	deps.EmitAudit(ctx, deps.Events.SessionsRevokedAll, true, u.ID, nil, func() map[string]string {
		return map[string]string{"count": fmt.Sprint(revoked), "reason": "password_changed"}
	})
	return revoked, nil
}

func recordAccountFailure(ctx context.Context, deps *AccountDeps, userID string) {
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
			"source":       "change_password",
		}
	})
}

func accountInfrastructureFailure(ctx context.Context, deps *AccountDeps, op string, err error) error {
	deps.LogError(op+" failed", err)
	deps.EmitAudit(ctx, deps.Events.InfrastructureError, false, "", err, func() map[string]string {
		return map[string]string{"operation": op}
	})
	return fmt.Errorf("%w: %v", deps.Errors.Infrastructure, err)
}
