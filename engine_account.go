package goSession

import (
	"context"

	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/password"
	"github.com/MrEthical07/goSession/user"
	"go.uber.org/zap"
)

// Register validates req and creates the account.
//
// Invalid email or password input wraps ErrInvalidInput together with a
// *password.PolicyError describing the rule that failed. A taken email returns
// ErrDuplicateEmail, including when a concurrent registration wins the race.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (u *user.User, err error) {
	if e == nil || e.users == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	ctx, span := e.tracer.Start(ctx, "goSession.Register")
	defer func() { endSpan(span, err) }()

	mctx, cancel := e.mutationContext(ctx)
	defer cancel()

	return flows.RunRegister(mctx, req, e.accountDeps())
}

// ChangePassword replaces the password of userID after verifying current, then
// revokes every session of the account. A wrong current password returns
// ErrInvalidCredentials and counts toward the lockout threshold; a locked account
// returns ErrAccountLocked. A new password rejected by policy wraps ErrInvalidInput.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next string) (err error) {
	if e == nil || e.users == nil || e.sessions == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}

	ctx, span := e.tracer.Start(ctx, "goSession.ChangePassword")
	defer func() { endSpan(span, err) }()

	mctx, cancel := e.mutationContext(ctx)
	defer cancel()

	_, err = flows.RunChangePassword(mctx, userID, current, next, e.accountDeps())
	return err
}

// UnlockAccount clears the failure history and any active lock of userID.
func (e *Engine) UnlockAccount(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if userID == "" {
		return ErrInvalidInput
	}
	if e.lockout == nil {
		return nil
	}

	mctx, cancel := e.mutationContext(ctx)
	defer cancel()

	if err := e.lockout.Reset(mctx, userID); err != nil {
		return e.infrastructureFailure(ctx, "unlock", err)
	}
	e.metricInc(MetricAccountUnlocked)
	e.emitAudit(ctx, AuditAccountUnlocked, true, userID, nil, nil)
	return nil
}

// ValidatePassword checks pass against the configured password policy.
func (e *Engine) ValidatePassword(pass string, userInputs ...string) error {
	if e == nil || e.policy == nil {
		return ErrEngineNotReady
	}
	return e.policy.Validate(pass, userInputs...)
}

func (e *Engine) accountDeps() flows.AccountDeps {
	deps := flows.AccountDeps{
		ValidateEmail:      password.ValidateEmail,
		ValidatePassword:   e.policy.Validate,
		EmailExists:        e.users.EmailExists,
		CreateUser:         e.users.CreateUser,
		GetUserByID:        e.users.GetByID,
		UpdatePasswordHash: e.users.UpdatePasswordHash,
		RevokeAllForUser: func(ctx context.Context, userID string) (int, error) {
			if e.sessions == nil {
				return 0, nil
			}
			n, err := e.sessions.RevokeAllForUser(ctx, userID)
			if err == nil {
				e.metricInc(MetricSessionsRevokedAll)
			}
			return n, err
		},
		HashPassword:   e.passwordHash.Hash,
		VerifyPassword: e.passwordHash.Verify,
		MetricInc:      func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit:      e.emitFlowAudit,
		LogError: func(msg string, err error) {
			e.metricInc(MetricInfrastructureError)
			e.logger.Error(msg, zap.Error(err))
		},
		Warn: func(msg string, err error) {
			e.logger.Warn(msg, zap.Error(err))
		},
		Metrics: flows.AccountMetrics{
			AccountCreated:   int(MetricAccountCreated),
			AccountDuplicate: int(MetricAccountDuplicate),
			PasswordChanged:  int(MetricPasswordChanged),
			AccountLocked:    int(MetricAccountLocked),
		},
		Events: flows.AccountEvents{
			AccountCreated:      string(AuditAccountCreated),
			PasswordChanged:     string(AuditPasswordChanged),
			SessionsRevokedAll:  string(AuditSessionsRevokedAll),
			AccountLocked:       string(AuditAccountLocked),
			InfrastructureError: string(AuditInfrastructureError),
		},
		Errors: flows.AccountErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidInput:       ErrInvalidInput,
			InvalidCredentials: ErrInvalidCredentials,
			AccountLocked:      ErrAccountLocked,
			DuplicateEmail:     ErrDuplicateEmail,
			Infrastructure:     ErrInfrastructure,
		},
	}
	deps.LockStatus, deps.RecordFailure, deps.RecordSuccess = e.lockoutHooks()
	return deps
}
