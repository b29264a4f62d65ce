package goSession

import (
	"net/http"

	"github.com/MrEthical07/goSession/internal/security"
)

// SecurityReport is a read-only snapshot of the engine's security posture,
// returned by [Engine.SecurityReport].
type SecurityReport = security.Report

// PasswordConfigReport contains the Argon2 parameters active in the engine.
type PasswordConfigReport = security.PasswordReport

// SecurityReport summarizes which protections the engine's configuration
// enables, with a warning for each valid setting that weakens a deployment.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	cfg := e.config

	return security.BuildReport(security.ReportInput{
		SessionTTL:       cfg.Session.TTL,
		RememberTTL:      cfg.Session.RememberTTL,
		CookieSecureMode: string(cfg.Cookie.SecureMode),
		CookieSameSite:   sameSiteName(cfg.Cookie.SameSite),
		Password: PasswordConfigReport{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		},
		MinScore:          cfg.Password.MinScore,
		LockoutEnabled:    cfg.Lockout.Enabled,
		LockoutThreshold:  cfg.Lockout.Threshold,
		LockoutDuration:   cfg.Lockout.BaseDuration,
		LoginLimitEnabled: cfg.LoginRateLimit.Enabled,
		LoginLimitBudget:  cfg.LoginRateLimit.Requests,
		HTTPLimitEnabled:  cfg.RateLimit.Enabled,
		HTTPLimitBudget:   cfg.RateLimit.Requests,
		TrustForwardedFor: cfg.RateLimit.TrustForwardedFor,
		CSRFEnabled:       cfg.CSRF.Enabled,
		HSTSEnabled:       cfg.Headers.HSTS,
		AllowedHosts:      len(cfg.Redirect.AllowedHosts),
	})
}

func sameSiteName(s http.SameSite) string {
	switch s {
	case http.SameSiteStrictMode:
		return "strict"
	case http.SameSiteLaxMode:
		return "lax"
	default:
		return "default"
	}
}
