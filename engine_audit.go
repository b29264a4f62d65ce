package goSession

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/limiters"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/password"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/storage"
	"github.com/MrEthical07/goSession/user"
)

// AuditErrorCode is the coarse error classification stored in AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrNotAuthenticated   AuditErrorCode = "not_authenticated"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	kind AuditKind,
	success bool,
	subject string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}
	if subject == "" {
		subject = audit.Anonymous
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		Kind:      kind,
		Subject:   subject,
		IP:        ClientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// emitFlowAudit adapts emitAudit to the string-typed callbacks of internal/flows.
func (e *Engine) emitFlowAudit(ctx context.Context, kind string, success bool, subject string, err error, metadata func() map[string]string) {
	e.emitAudit(ctx, AuditKind(kind), success, subject, err, metadata)
}

// ReportSecurityEvent records an event observed outside the Engine, typically by
// HTTP middleware (rate limit trips, rejected redirects, CSRF violations), and bumps
// the matching counter.
func (e *Engine) ReportSecurityEvent(ctx context.Context, kind AuditKind, subject string, metadata map[string]string) {
	if e == nil {
		return
	}
	switch kind {
	case AuditRateLimitExceeded:
		e.metricInc(MetricRateLimitHit)
	case AuditRedirectRejected:
		e.metricInc(MetricRedirectRejected)
	case AuditCSRFViolation:
		e.metricInc(MetricCSRFViolation)
	case AuditInfrastructureError:
		e.metricInc(MetricInfrastructureError)
	}

	var builder func() map[string]string
	if len(metadata) > 0 {
		builder = func() map[string]string {
			out := make(map[string]string, len(metadata))
			for k, v := range metadata {
				out[k] = v
			}
			return out
		}
	}
	e.emitAudit(ctx, kind, false, subject, nil, builder)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrNotAuthenticated):
		return auditErrNotAuthenticated
	case errors.Is(err, ErrDuplicateEmail):
		return auditErrDuplicate
	case errors.Is(err, ErrInvalidInput):
		return auditErrInvalidInput
	case errors.Is(err, ErrInfrastructure),
		errors.Is(err, session.ErrRedisUnavailable),
		errors.Is(err, user.ErrRedisUnavailable),
		errors.Is(err, storage.ErrUnavailable),
		errors.Is(err, limiters.ErrLockoutUnavailable),
		errors.Is(err, rate.ErrRedisUnavailable),
		errors.Is(err, password.ErrHashUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeLatency(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}
