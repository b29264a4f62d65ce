package security

import "time"

type PasswordReport struct {
	Memory      uint32 `json:"memory_kib"`
	Time        uint32 `json:"time"`
	Parallelism uint8  `json:"parallelism"`
	SaltLength  uint32 `json:"salt_length"`
	KeyLength   uint32 `json:"key_length"`
}

type Report struct {
	SessionTTL           time.Duration  `json:"session_ttl"`
	RememberTTL          time.Duration  `json:"remember_ttl"`
	CookieSecureMode     string         `json:"cookie_secure_mode"`
	CookieSameSite       string         `json:"cookie_same_site"`
	Argon2               PasswordReport `json:"argon2"`
	StrengthCheckActive  bool           `json:"strength_check_active"`
	LockoutActive        bool           `json:"lockout_active"`
	LoginRateLimitActive bool           `json:"login_rate_limit_active"`
	HTTPRateLimitActive  bool           `json:"http_rate_limit_active"`
	CSRFActive           bool           `json:"csrf_active"`
	HSTSActive           bool           `json:"hsts_active"`
	RedirectHostsPinned  bool           `json:"redirect_hosts_pinned"`
	Warnings             []string       `json:"warnings,omitempty"`
}

type ReportInput struct {
	SessionTTL        time.Duration
	RememberTTL       time.Duration
	CookieSecureMode  string
	CookieSameSite    string
	Password          PasswordReport
	MinScore          int
	LockoutEnabled    bool
	LockoutThreshold  int
	LockoutDuration   time.Duration
	LoginLimitEnabled bool
	LoginLimitBudget  int
	HTTPLimitEnabled  bool
	HTTPLimitBudget   int
	TrustForwardedFor bool
	CSRFEnabled       bool
	HSTSEnabled       bool
	AllowedHosts      int
}

// Warnings for settings that are valid but weaken a deployment.
const (
	WarnInsecureCookie    = "session cookie is never marked Secure"
	WarnNoLockout         = "account lockout is disabled"
	WarnNoLoginLimit      = "per-IP login rate limit is disabled"
	WarnNoCSRF            = "CSRF protection is disabled"
	WarnNoStrengthCheck   = "password strength estimation is disabled"
	WarnTrustForwardedFor = "client IP is taken from X-Forwarded-For"
)

func BuildReport(input ReportInput) Report {
	r := Report{
		SessionTTL:           input.SessionTTL,
		RememberTTL:          input.RememberTTL,
		CookieSecureMode:     input.CookieSecureMode,
		CookieSameSite:       input.CookieSameSite,
		Argon2:               input.Password,
		StrengthCheckActive:  input.MinScore > 0,
		LockoutActive:        input.LockoutEnabled && input.LockoutThreshold > 0 && input.LockoutDuration > 0,
		LoginRateLimitActive: input.LoginLimitEnabled && input.LoginLimitBudget > 0,
		HTTPRateLimitActive:  input.HTTPLimitEnabled && input.HTTPLimitBudget > 0,
		CSRFActive:           input.CSRFEnabled,
		HSTSActive:           input.HSTSEnabled,
		RedirectHostsPinned:  input.AllowedHosts > 0,
	}

	if input.CookieSecureMode == "never" {
		r.Warnings = append(r.Warnings, WarnInsecureCookie)
	}
	if !r.LockoutActive {
		r.Warnings = append(r.Warnings, WarnNoLockout)
	}
	if !r.LoginRateLimitActive {
		r.Warnings = append(r.Warnings, WarnNoLoginLimit)
	}
	if !r.CSRFActive {
		r.Warnings = append(r.Warnings, WarnNoCSRF)
	}
	if !r.StrengthCheckActive {
		r.Warnings = append(r.Warnings, WarnNoStrengthCheck)
	}
	if input.TrustForwardedFor {
		r.Warnings = append(r.Warnings, WarnTrustForwardedFor)
	}
	return r
}
