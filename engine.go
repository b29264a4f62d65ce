package goSession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/limiters"
	"github.com/MrEthical07/goSession/internal/logger"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/password"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/user"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/MrEthical07/goSession"

// Engine is the session manager: it authenticates credentials, issues and revokes
// session tokens and resolves request identities.
//
// Engine instances are built once through [Builder.Build] and are safe for concurrent use.
type Engine struct {
	config       Config
	sessions     session.Repository
	users        user.Repository
	passwordHash *password.Argon2
	policy       *password.Policy
	lockout      limiters.Lockout
	loginLimiter rate.Limiter
	audit        *audit.Dispatcher
	metrics      *Metrics
	logger       *zap.Logger
	tracer       trace.Tracer
	now          func() time.Time

	// dummyHash is verified for unknown emails so that path costs one KDF run too.
	dummyHash string
}

// Close drains the audit dispatcher. Sinks owned by the caller are not closed.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	_ = e.logger.Sync()
}

// AuditDropped returns the number of audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the configuration the Engine was built with.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Authenticate verifies email and password and returns the account on success.
//
// The per-IP login rate limit is checked before any lookup or hashing. An unknown
// email is verified against a fixed dummy hash so the response time does not reveal
// whether the account exists. A locked account fails with ErrAccountLocked without a
// verification. Every other credential failure returns ErrInvalidCredentials; backend
// failures return an error wrapping ErrInfrastructure.
func (e *Engine) Authenticate(ctx context.Context, email, pass string) (*user.User, error) {
	if e == nil || e.users == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "goSession.Authenticate")
	u, err := flows.RunAuthenticate(ctx, email, pass, e.authenticateDeps())
	e.observeLatency(MetricAuthenticateLatency, start)
	if u != nil {
		span.SetAttributes(attribute.String("gosession.user_id", u.ID))
	}
	endSpan(span, err)
	return u, err
}

func (e *Engine) authenticateDeps() flows.AuthenticateDeps {
	deps := flows.AuthenticateDeps{
		DummyHash:           e.dummyHash,
		ClientIPFromContext: ClientIPFromContext,
		GetUserByEmail:      e.users.GetByEmail,
		IsNotFound: func(err error) bool {
			return errors.Is(err, user.ErrNotFound)
		},
		UpdatePasswordHash: func(ctx context.Context, id, hash string) error {
			mctx, cancel := e.mutationContext(ctx)
			defer cancel()
			return e.users.UpdatePasswordHash(mctx, id, hash)
		},
		VerifyPassword: e.passwordHash.Verify,
		NeedsRehash:    e.passwordHash.NeedsRehash,
		HashPassword:   e.passwordHash.Hash,
		MetricInc:      func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit:      e.emitFlowAudit,
		LogError: func(msg string, err error) {
			e.metricInc(MetricInfrastructureError)
			e.logger.Error(msg, zap.Error(err))
		},
		Warn: func(msg string, err error) {
			e.logger.Warn(msg, zap.Error(err))
		},
		Metrics: flows.AuthenticateMetrics{
			LoginSuccess:     int(MetricLoginSuccess),
			LoginFailure:     int(MetricLoginFailure),
			LoginRateLimited: int(MetricLoginRateLimited),
			AccountLocked:    int(MetricAccountLocked),
		},
		Events: flows.AuthenticateEvents{
			LoginSuccess:        string(AuditLoginSuccess),
			LoginFailure:        string(AuditLoginFailure),
			RateLimitExceeded:   string(AuditRateLimitExceeded),
			AccountLocked:       string(AuditAccountLocked),
			InfrastructureError: string(AuditInfrastructureError),
		},
		Errors: flows.AuthenticateErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			AccountLocked:      ErrAccountLocked,
			RateLimited:        ErrRateLimited,
			Infrastructure:     ErrInfrastructure,
		},
	}

	if e.loginLimiter != nil {
		deps.CheckLoginRate = e.checkLoginRate
	}

	deps.LockStatus, deps.RecordFailure, deps.RecordSuccess = e.lockoutHooks()

	return deps
}

func (e *Engine) checkLoginRate(ctx context.Context, ip string) error {
	key := ip
	if key == "" {
		key = "unknown"
	}
	res, err := e.loginLimiter.Allow(ctx, "login:"+key)
	if err != nil {
		return err
	}
	if !res.Allowed {
		e.logger.Info("login rate limit exceeded",
			zap.String("ip", logger.MaskIP(ip)),
			zap.Duration("retry_after", res.RetryAfter),
		)
		return ErrRateLimited
	}
	return nil
}

// lockoutHooks adapts the lockout tracker for the flows package. All three are
// nil when lockout is disabled.
func (e *Engine) lockoutHooks() (
	status func(context.Context, string) (flows.LockState, error),
	failure func(context.Context, string) (flows.LockState, error),
	success func(context.Context, string) error,
) {
	if e.lockout == nil {
		return nil, nil, nil
	}
	status = func(ctx context.Context, userID string) (flows.LockState, error) {
		st, err := e.lockout.Status(ctx, userID)
		return flows.LockState(st), err
	}
	failure = func(ctx context.Context, userID string) (flows.LockState, error) {
		mctx, cancel := e.mutationContext(ctx)
		defer cancel()
		st, err := e.lockout.RecordFailure(mctx, userID)
		return flows.LockState(st), err
	}
	success = func(ctx context.Context, userID string) error {
		mctx, cancel := e.mutationContext(ctx)
		defer cancel()
		return e.lockout.RecordSuccess(mctx, userID)
	}
	return status, failure, success
}

// mutationContext detaches ctx from request cancellation so a write that has
// started is never abandoned half-way, and bounds it by OperationTimeout.
func (e *Engine) mutationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.config.Session.OperationTimeout)
}

// infrastructureFailure logs and audits a backend error and returns it wrapped in ErrInfrastructure.
func (e *Engine) infrastructureFailure(ctx context.Context, op string, err error) error {
	e.metricInc(MetricInfrastructureError)
	e.logger.Error("session backend failure", zap.String("operation", op), zap.Error(err))
	e.emitAudit(ctx, AuditInfrastructureError, false, "", err, func() map[string]string {
		return map[string]string{"operation": op}
	})
	return fmt.Errorf("%w: %v", ErrInfrastructure, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
