package goSession

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/user"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Login issues a new session token for userID.
//
// When opts.PreviousToken is set it is revoked before the new token is inserted, and
// a previous token that was still live is recorded as the new session's origin.
// The token is 256 bits from crypto/rand; only its keyed hash reaches storage.
// The session lives for Session.RememberTTL when opts.Remember is set and
// Session.TTL otherwise.
func (e *Engine) Login(ctx context.Context, userID string, opts LoginOptions) (token string, err error) {
	if e == nil || e.sessions == nil {
		return "", ErrEngineNotReady
	}
	if userID == "" {
		return "", ErrInvalidInput
	}

	ctx, span := e.tracer.Start(ctx, "goSession.Login")
	span.SetAttributes(attribute.String("gosession.user_id", userID), attribute.Bool("gosession.remember", opts.Remember))
	defer func() { endSpan(span, err) }()

	ip := opts.IP
	if ip == "" {
		ip = ClientIPFromContext(ctx)
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = UserAgentFromContext(ctx)
	}

	mctx, cancel := e.mutationContext(ctx)
	defer cancel()

	var rotatedFrom string
	if opts.PreviousToken != "" {
		revoked, err := e.sessions.Revoke(mctx, opts.PreviousToken)
		if err != nil {
			return "", e.infrastructureFailure(ctx, "login_revoke_previous", err)
		}
		if revoked {
			rotatedFrom = opts.PreviousToken
			e.metricInc(MetricSessionRevoked)
			e.emitAudit(ctx, AuditSessionRevoked, true, userID, nil, func() map[string]string {
				return map[string]string{"reason": "login"}
			})
		}
	}

	token, err = session.NewToken()
	if err != nil {
		return "", e.infrastructureFailure(ctx, "login_token", err)
	}

	params := session.InsertParams{
		UserID:      userID,
		ExpiresAt:   e.now().Add(e.sessionLifetime(opts.Remember)),
		Remember:    opts.Remember,
		IP:          ip,
		UserAgent:   userAgent,
		RotatedFrom: rotatedFrom,
	}
	if err := e.sessions.Insert(mctx, token, params); err != nil {
		if errors.Is(err, session.ErrInvalidSession) {
			return "", ErrInvalidInput
		}
		return "", e.infrastructureFailure(ctx, "login_insert", err)
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, AuditSessionCreated, true, userID, nil, func() map[string]string {
		return map[string]string{"remember": strconv.FormatBool(opts.Remember)}
	})
	return token, nil
}

// Logout revokes token. An empty, unknown or already revoked token is not an error.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if token == "" {
		return nil
	}

	ctx, span := e.tracer.Start(ctx, "goSession.Logout")

	// Best effort lookup for the audit subject only.
	userID, _, lookupErr := e.sessions.GetUserID(ctx, token)
	if lookupErr != nil {
		e.logger.Warn("logout subject lookup failed", zap.Error(lookupErr))
	}

	mctx, cancel := e.mutationContext(ctx)
	defer cancel()

	revoked, err := e.sessions.Revoke(mctx, token)
	if err != nil {
		err = e.infrastructureFailure(ctx, "logout", err)
		endSpan(span, err)
		return err
	}
	if revoked {
		e.metricInc(MetricSessionRevoked)
		e.emitAudit(ctx, AuditLogout, true, userID, nil, nil)
	}
	endSpan(span, nil)
	return nil
}

// Rotate replaces a live session with a fresh token and returns it. The old token
// stops resolving before the new one is stored, and the new record keeps the hash
// of the old token. Use it on privilege changes or suspicious activity.
//
// An old token that does not resolve, or that a concurrent call revoked first,
// fails with ErrNotAuthenticated.
func (e *Engine) Rotate(ctx context.Context, oldToken string, remember bool) (token string, err error) {
	if e == nil || e.sessions == nil {
		return "", ErrEngineNotReady
	}
	if oldToken == "" {
		return "", ErrNotAuthenticated
	}

	ctx, span := e.tracer.Start(ctx, "goSession.Rotate")
	defer func() { endSpan(span, err) }()

	userID, ok, err := e.sessions.GetUserID(ctx, oldToken)
	if err != nil {
		return "", e.infrastructureFailure(ctx, "rotate_lookup", err)
	}
	if !ok {
		return "", ErrNotAuthenticated
	}

	mctx, cancel := e.mutationContext(ctx)
	defer cancel()

	revoked, err := e.sessions.Revoke(mctx, oldToken)
	if err != nil {
		return "", e.infrastructureFailure(ctx, "rotate_revoke", err)
	}
	if !revoked {
		return "", ErrNotAuthenticated
	}

	token, err = session.NewToken()
	if err != nil {
		return "", e.infrastructureFailure(ctx, "rotate_token", err)
	}
	err = e.sessions.Insert(mctx, token, session.InsertParams{
		UserID:      userID,
		ExpiresAt:   e.now().Add(e.sessionLifetime(remember)),
		Remember:    remember,
		IP:          ClientIPFromContext(ctx),
		UserAgent:   UserAgentFromContext(ctx),
		RotatedFrom: oldToken,
	})
	if err != nil {
		return "", e.infrastructureFailure(ctx, "rotate_insert", err)
	}

	e.metricInc(MetricSessionRotated)
	e.emitAudit(ctx, AuditSessionRotated, true, userID, nil, nil)
	return token, nil
}

// Resolve returns the user id bound to token. Unknown, expired and revoked tokens
// all report ("", false, nil). Backend failures wrap ErrInfrastructure.
func (e *Engine) Resolve(ctx context.Context, token string) (string, bool, error) {
	if e == nil || e.sessions == nil {
		return "", false, ErrEngineNotReady
	}
	if token == "" {
		return "", false, nil
	}

	start := time.Now()
	userID, ok, err := e.sessions.GetUserID(ctx, token)
	e.observeLatency(MetricResolveLatency, start)
	if err != nil {
		return "", false, e.infrastructureFailure(ctx, "resolve", err)
	}
	if !ok {
		e.metricInc(MetricResolveMiss)
		return "", false, nil
	}
	e.metricInc(MetricResolveHit)
	return userID, true, nil
}

// ResolveIdentity maps a session token to the request identity. It never fails:
// a missing session, a deleted or inactive account, and every backend error all
// yield Anonymous. Backend errors are logged and audited as infrastructure_error.
//
// The returned user has its PasswordHash cleared.
func (e *Engine) ResolveIdentity(ctx context.Context, token string) Identity {
	if e == nil || e.sessions == nil || e.users == nil || token == "" {
		return Anonymous
	}

	ctx, span := e.tracer.Start(ctx, "goSession.ResolveIdentity")
	defer span.End()

	userID, ok, err := e.Resolve(ctx, token)
	if err != nil {
		span.RecordError(err)
		return Anonymous
	}
	if !ok {
		return Anonymous
	}

	u, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			_ = e.infrastructureFailure(ctx, "resolve_user", err)
			span.RecordError(err)
		}
		return Anonymous
	}
	if !u.Active {
		return Anonymous
	}

	u.PasswordHash = ""
	span.SetAttributes(attribute.String("gosession.user_id", u.ID))
	return Identity{User: u}
}

// RevokeAllForUser revokes every live session of userID and returns how many were revoked.
func (e *Engine) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrInvalidInput
	}

	mctx, cancel := e.mutationContext(ctx)
	defer cancel()

	n, err := e.sessions.RevokeAllForUser(mctx, userID)
	if err != nil {
		return 0, e.infrastructureFailure(ctx, "revoke_all", err)
	}

	e.metricInc(MetricSessionsRevokedAll)
	e.emitAudit(ctx, AuditSessionsRevokedAll, true, userID, nil, func() map[string]string {
		return map[string]string{"count": strconv.Itoa(n)}
	})
	return n, nil
}

// CleanupExpired deletes expired and revoked session records and returns how many were removed.
func (e *Engine) CleanupExpired(ctx context.Context) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}

	n, err := e.sessions.CleanupExpired(ctx)
	if err != nil {
		return 0, e.infrastructureFailure(ctx, "cleanup", err)
	}
	e.metricInc(MetricCleanupRun)
	e.logger.Info("expired sessions cleaned", zap.Int("removed", n))
	return n, nil
}

// ActiveSessionCount returns the number of live sessions of userID.
func (e *Engine) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}

	n, err := e.sessions.ActiveSessionCount(ctx, userID)
	if err != nil {
		return 0, e.infrastructureFailure(ctx, "active_session_count", err)
	}
	return n, nil
}

func (e *Engine) sessionLifetime(remember bool) time.Duration {
	if remember {
		return e.config.Session.RememberTTL
	}
	return e.config.Session.TTL
}
