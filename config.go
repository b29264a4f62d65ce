package goSession

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Config holds every tunable of the Engine and its HTTP middleware.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Session        SessionConfig
	Cookie         CookieConfig
	Password       PasswordConfig
	Lockout        LockoutConfig
	RateLimit      RateLimitConfig
	LoginRateLimit LoginRateLimitConfig
	Redirect       RedirectConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
	CSRF           CSRFConfig
	Headers        HeadersConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetime and token hashing.
type SessionConfig struct {
	// SecretKey keys the session token HMAC and signs CSRF tokens. At least 32 characters.
	SecretKey   string
	TTL         time.Duration
	RememberTTL time.Duration
	// OperationTimeout bounds repository mutations, which run detached from request cancellation.
	OperationTimeout time.Duration
	KeyPrefix        string
}

// MinSecretLength is the shortest accepted SessionConfig.SecretKey.
const MinSecretLength = 32

/*
====================================
COOKIE CONFIG
====================================
*/

// SecureMode selects how the Secure cookie attribute is derived.
type SecureMode string

const (
	// SecureAuto sets Secure when the request arrived over TLS, or through a trusted
	// proxy reporting X-Forwarded-Proto: https.
	SecureAuto SecureMode = "auto"
	// SecureAlways sets Secure on every cookie.
	SecureAlways SecureMode = "always"
	// SecureNever never sets Secure. Only for local plain-HTTP development.
	SecureNever SecureMode = "never"
)

// CookieConfig controls the session cookie attributes.
type CookieConfig struct {
	Name                string
	Domain              string
	SameSite            http.SameSite
	SecureMode          SecureMode
	TrustForwardedProto bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id parameters and the password input policy.
type PasswordConfig struct {
	Memory      uint32 // in KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinLength      int
	MaxLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
	// MinScore is the minimum zxcvbn score (0 disables the check).
	MinScore int
}

/*
====================================
LOCKOUT / RATE LIMIT CONFIG
====================================
*/

// LockoutConfig controls per-account lockout after repeated failures.
type LockoutConfig struct {
	Enabled      bool
	Threshold    int
	Window       time.Duration
	BaseDuration time.Duration
	MaxDuration  time.Duration
}

// RateLimitConfig controls the per-source HTTP request limiter.
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
	Burst    int
	// ExemptPaths are path prefixes that bypass the limiter.
	ExemptPaths       []string
	TrustForwardedFor bool
	// Rules give matching paths their own budget in place of the global one.
	// The first rule with a matching prefix wins.
	Rules []PathRule
}

// PathRule is a per-IP budget for requests under Paths. Prefixes match whole
// path segments.
type PathRule struct {
	Requests int
	Window   time.Duration
	Paths    []string
}

// LoginRateLimitConfig controls the per-IP limit applied inside Authenticate.
type LoginRateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

/*
====================================
REDIRECT CONFIG
====================================
*/

// RedirectConfig controls guard redirects and post-login target validation.
type RedirectConfig struct {
	LoginPath    string
	AppPath      string
	DefaultPath  string
	AllowedHosts []string
	NextParam    string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
CSRF / HEADERS CONFIG
====================================
*/

// CSRFConfig controls double-submit CSRF protection.
type CSRFConfig struct {
	Enabled     bool
	CookieName  string
	HeaderName  string
	FieldName   string
	TTL         time.Duration
	ExemptPaths []string
}

// HeadersConfig controls the security response headers.
type HeadersConfig struct {
	HSTS                  bool
	HSTSMaxAge            time.Duration
	ContentSecurityPolicy string
	PermissionsPolicy     string
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. SecretKey is empty and must be set.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			TTL:              24 * time.Hour,
			RememberTTL:      30 * 24 * time.Hour,
			OperationTimeout: 5 * time.Second,
			KeyPrefix:        "gs",
		},
		Cookie: CookieConfig{
			Name:       "gs_sid",
			SameSite:   http.SameSiteLaxMode,
			SecureMode: SecureAuto,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
			MaxLength:   128,
			MinScore:    2,
		},
		Lockout: LockoutConfig{
			Enabled:      true,
			Threshold:    10,
			Window:       15 * time.Minute,
			BaseDuration: 15 * time.Minute,
			MaxDuration:  24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			Requests:    100,
			Window:      time.Minute,
			ExemptPaths: []string{"/healthz", "/static/"},
			Rules: []PathRule{
				{Requests: 10, Window: time.Minute, Paths: []string{"/login", "/register", "/app/password"}},
			},
		},
		LoginRateLimit: LoginRateLimitConfig{
			Enabled:  true,
			Requests: 20,
			Window:   time.Minute,
		},
		Redirect: RedirectConfig{
			LoginPath:   "/login",
			AppPath:     "/app",
			DefaultPath: "/",
			NextParam:   "next",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		CSRF: CSRFConfig{
			Enabled:    true,
			CookieName: "gs_csrf",
			HeaderName: "X-CSRF-Token",
			FieldName:  "csrf_token",
			TTL:        12 * time.Hour,
		},
		Headers: HeadersConfig{
			HSTSMaxAge: 365 * 24 * time.Hour,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.RateLimit.ExemptPaths = cloneStrings(cfg.RateLimit.ExemptPaths)
	if cfg.RateLimit.Rules != nil {
		out.RateLimit.Rules = make([]PathRule, len(cfg.RateLimit.Rules))
		for i, rule := range cfg.RateLimit.Rules {
			rule.Paths = cloneStrings(rule.Paths)
			out.RateLimit.Rules[i] = rule
		}
	}
	out.Redirect.AllowedHosts = cloneStrings(cfg.Redirect.AllowedHosts)
	out.CSRF.ExemptPaths = cloneStrings(cfg.CSRF.ExemptPaths)
	return out
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects unsafe or inconsistent settings. A SecretKey shorter than
// MinSecretLength fails with ErrWeakSecret.
func (c *Config) Validate() error {
	// Session
	if len(c.Session.SecretKey) < MinSecretLength {
		return fmt.Errorf("%w: session secret must be at least %d characters", ErrWeakSecret, MinSecretLength)
	}
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.RememberTTL <= 0 {
		return errors.New("Session RememberTTL must be > 0")
	}
	if c.Session.OperationTimeout <= 0 {
		return errors.New("Session OperationTimeout must be > 0")
	}

	// Cookie
	if c.Cookie.Name == "" {
		return errors.New("Cookie Name must not be empty")
	}
	if c.Cookie.SameSite != http.SameSiteStrictMode && c.Cookie.SameSite != http.SameSiteLaxMode {
		return errors.New("Cookie SameSite must be Strict or Lax")
	}
	switch c.Cookie.SecureMode {
	case SecureAuto, SecureAlways, SecureNever:
	default:
		return errors.New("Cookie SecureMode must be auto, always or never")
	}

	// Password
	if c.Password.Memory < 64*1024 {
		return errors.New("Password Memory must be >= 65536 KiB")
	}
	if c.Password.Time < 2 {
		return errors.New("Password Time must be >= 2")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 32 {
		return errors.New("Password KeyLength must be >= 32")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength > 0 && c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}
	if c.Password.MinScore < 0 || c.Password.MinScore > 4 {
		return errors.New("Password MinScore must be between 0 and 4")
	}

	// Lockout
	if c.Lockout.Enabled {
		if c.Lockout.Threshold < 1 {
			return errors.New("Lockout Threshold must be >= 1")
		}
		if c.Lockout.Window <= 0 || c.Lockout.BaseDuration <= 0 {
			return errors.New("Lockout Window and BaseDuration must be > 0")
		}
		if c.Lockout.MaxDuration < c.Lockout.BaseDuration {
			return errors.New("Lockout MaxDuration must be >= BaseDuration")
		}
	}

	// Rate limits
	if c.RateLimit.Enabled && (c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0) {
		return errors.New("RateLimit Requests and Window must be > 0")
	}
	for i, rule := range c.RateLimit.Rules {
		if c.RateLimit.Enabled && (rule.Requests < 1 || rule.Window <= 0 || len(rule.Paths) == 0) {
			return fmt.Errorf("RateLimit Rules[%d] Requests and Window must be > 0 with at least one path", i)
		}
	}
	if c.LoginRateLimit.Enabled && (c.LoginRateLimit.Requests < 1 || c.LoginRateLimit.Window <= 0) {
		return errors.New("LoginRateLimit Requests and Window must be > 0")
	}

	// Redirect
	for _, p := range []string{c.Redirect.LoginPath, c.Redirect.AppPath, c.Redirect.DefaultPath} {
		if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
			return errors.New("Redirect paths must be rooted local paths")
		}
	}
	if c.Redirect.NextParam == "" {
		return errors.New("Redirect NextParam must not be empty")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	// CSRF
	if c.CSRF.Enabled {
		if c.CSRF.CookieName == "" || c.CSRF.HeaderName == "" || c.CSRF.FieldName == "" {
			return errors.New("CSRF cookie, header and field names must be set")
		}
		if c.CSRF.TTL <= 0 {
			return errors.New("CSRF TTL must be > 0")
		}
	}

	return nil
}
