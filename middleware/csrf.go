package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type csrfTokenContextKey struct{}

var errCSRFToken = errors.New("csrf token invalid")

// CSRF implements double-submit protection. The cookie holds an HS256-signed token;
// unsafe requests must echo it in the configured header or form field.
type CSRF struct {
	cfg      goSession.CSRFConfig
	key      []byte
	secure   func(*http.Request) bool
	reporter EventReporter
	now      func() time.Time
}

// CSRFOption configures NewCSRF.
type CSRFOption func(*CSRF)

// WithSecureFunc decides the Secure attribute of the CSRF cookie per request.
func WithSecureFunc(fn func(*http.Request) bool) CSRFOption {
	return func(c *CSRF) {
		if fn != nil {
			c.secure = fn
		}
	}
}

func WithCSRFReporter(reporter EventReporter) CSRFOption {
	return func(c *CSRF) { c.reporter = reporter }
}

func WithCSRFClock(now func() time.Time) CSRFOption {
	return func(c *CSRF) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCSRF builds the protector. The signing key is derived from secret, so the
// session secret can be reused without sharing key material with token hashing.
func NewCSRF(cfg goSession.CSRFConfig, secret string, opts ...CSRFOption) *CSRF {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte("gosession/csrf"))

	c := &CSRF{
		cfg:    cfg,
		key:    mac.Sum(nil),
		secure: func(r *http.Request) bool { return r.TLS != nil },
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CSRFFromEngine builds the protector from the engine configuration.
func CSRFFromEngine(engine *goSession.Engine) *CSRF {
	cfg := engine.Config()
	return NewCSRF(cfg.CSRF, cfg.Session.SecretKey,
		WithSecureFunc(engine.SecureRequest),
		WithCSRFReporter(engine),
	)
}

// CSRFToken returns the token to embed in forms rendered for the request.
func CSRFToken(ctx context.Context) string {
	tok, _ := ctx.Value(csrfTokenContextKey{}).(string)
	return tok
}

// Middleware issues a token cookie when missing or invalid and rejects unsafe
// requests whose submitted token does not match it with 403.
func (c *CSRF) Middleware(next http.Handler) http.Handler {
	if !c.cfg.Enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookieToken := ""
		if ck, err := r.Cookie(c.cfg.CookieName); err == nil && c.verify(ck.Value) == nil {
			cookieToken = ck.Value
		}

		if !safeMethod(r.Method) && !exempt(r.URL.Path, c.cfg.ExemptPaths) {
			submitted := r.Header.Get(c.cfg.HeaderName)
			if submitted == "" {
				submitted = r.PostFormValue(c.cfg.FieldName)
			}
			if cookieToken == "" || subtle.ConstantTimeCompare([]byte(submitted), []byte(cookieToken)) != 1 {
				c.reject(w, r)
				return
			}
		}

		if cookieToken == "" {
			tok, err := c.issue()
			if err != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			cookieToken = tok
			http.SetCookie(w, &http.Cookie{
				Name:     c.cfg.CookieName,
				Value:    tok,
				Path:     "/",
				MaxAge:   int(c.cfg.TTL.Seconds()),
				Secure:   c.secure(r),
				SameSite: http.SameSiteStrictMode,
			})
		}

		ctx := context.WithValue(r.Context(), csrfTokenContextKey{}, cookieToken)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (c *CSRF) issue() (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.TTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

func (c *CSRF) verify(token string) error {
	if token == "" {
		return errCSRFToken
	}
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return errCSRFToken
	}
	return nil
}

func (c *CSRF) reject(w http.ResponseWriter, r *http.Request) {
	if c.reporter != nil {
		id := goSession.IdentityFromContext(r.Context())
		c.reporter.ReportSecurityEvent(r.Context(), goSession.AuditCSRFViolation, id.UserID(), map[string]string{
			"method": r.Method,
			"path":   r.URL.Path,
		})
	}
	http.Error(w, "forbidden", http.StatusForbidden)
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
