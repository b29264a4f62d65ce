package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exported for goSession.Engine.AuditDropped.
const AuditDroppedName = "gosession_audit_dropped_total"

// CounterDefs lists every counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Successful password authentications."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Failed password authentications."},
	{ID: goSession.MetricLoginRateLimited, Name: "gosession_login_rate_limited_total", Help: "Authentications refused by the login rate limiter."},
	{ID: goSession.MetricAccountLocked, Name: "gosession_account_locked_total", Help: "Accounts locked after repeated failures."},
	{ID: goSession.MetricAccountUnlocked, Name: "gosession_account_unlocked_total", Help: "Accounts unlocked by an administrator."},
	{ID: goSession.MetricSessionCreated, Name: "gosession_session_created_total", Help: "Sessions created by login."},
	{ID: goSession.MetricSessionRevoked, Name: "gosession_session_revoked_total", Help: "Sessions revoked by logout."},
	{ID: goSession.MetricSessionRotated, Name: "gosession_session_rotated_total", Help: "Sessions replaced by rotation."},
	{ID: goSession.MetricSessionsRevokedAll, Name: "gosession_sessions_revoked_all_total", Help: "Revoke-all operations for a user."},
	{ID: goSession.MetricResolveHit, Name: "gosession_resolve_hit_total", Help: "Token resolutions that found a live session."},
	{ID: goSession.MetricResolveMiss, Name: "gosession_resolve_miss_total", Help: "Token resolutions of unknown, expired or revoked tokens."},
	{ID: goSession.MetricCleanupRun, Name: "gosession_cleanup_run_total", Help: "Expired-session cleanup runs."},
	{ID: goSession.MetricAccountCreated, Name: "gosession_account_created_total", Help: "Accounts registered."},
	{ID: goSession.MetricAccountDuplicate, Name: "gosession_account_duplicate_total", Help: "Registrations rejected as duplicate email."},
	{ID: goSession.MetricPasswordChanged, Name: "gosession_password_changed_total", Help: "Successful password changes."},
	{ID: goSession.MetricRateLimitHit, Name: "gosession_rate_limit_hit_total", Help: "HTTP requests denied by the per-source rate limiter."},
	{ID: goSession.MetricRedirectRejected, Name: "gosession_redirect_rejected_total", Help: "Unsafe post-login redirect targets rejected."},
	{ID: goSession.MetricCSRFViolation, Name: "gosession_csrf_violation_total", Help: "Unsafe requests rejected for a missing or bad CSRF token."},
	{ID: goSession.MetricInfrastructureError, Name: "gosession_infrastructure_error_total", Help: "Backend failures seen by the engine."},
}

// HistogramDefs lists the latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricResolveLatency, Name: "gosession_resolve_latency_seconds", Help: "Session resolution latency."},
	{ID: goSession.MetricAuthenticateLatency, Name: "gosession_authenticate_latency_seconds", Help: "Password authentication latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one more bucket for everything above the last bound.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// BucketLabels holds the "le" value of each bucket, +Inf included.
var BucketLabels = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// NormalizeBuckets copies raw into the fixed bucket layout, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

// ApproxSum estimates a histogram sum from bucket midpoints. The engine does
// not track exact sums; the overflow bucket is counted at the last bound.
func ApproxSum(raw [8]uint64) float64 {
	var sum, lower float64
	for i, n := range raw {
		upper := HistogramUpperBounds[len(HistogramUpperBounds)-1]
		if i < len(HistogramUpperBounds) {
			upper = HistogramUpperBounds[i]
		}
		sum += float64(n) * (lower + upper) / 2
		lower = upper
	}
	return sum
}
