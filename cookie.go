package goSession

import (
	"net/http"
	"strings"
)

// SetSessionCookie writes the session cookie for token.
//
// The cookie is HttpOnly with Path "/" and the configured SameSite mode. A
// remembered session gets Max-Age equal to Session.RememberTTL; otherwise the
// cookie lives for the browser session. Secure follows Cookie.SecureMode.
func (e *Engine) SetSessionCookie(w http.ResponseWriter, r *http.Request, token string, remember bool) {
	c := &http.Cookie{
		Name:     e.config.Cookie.Name,
		Value:    token,
		Path:     "/",
		Domain:   e.config.Cookie.Domain,
		HttpOnly: true,
		Secure:   e.SecureRequest(r),
		SameSite: e.config.Cookie.SameSite,
	}
	if remember {
		c.MaxAge = int(e.config.Session.RememberTTL.Seconds())
	}
	http.SetCookie(w, c)
}

// ClearSessionCookie expires the session cookie on the client.
func (e *Engine) ClearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     e.config.Cookie.Name,
		Value:    "",
		Path:     "/",
		Domain:   e.config.Cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   e.SecureRequest(r),
		SameSite: e.config.Cookie.SameSite,
	})
}

// SessionTokenFromRequest returns the session cookie value, falling back to an
// "Authorization: Bearer" header. It returns "" when neither is present.
func (e *Engine) SessionTokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(e.config.Cookie.Name); err == nil && c.Value != "" {
		return c.Value
	}

	auth := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// SecureRequest reports whether cookies written for r must carry the Secure flag.
func (e *Engine) SecureRequest(r *http.Request) bool {
	switch e.config.Cookie.SecureMode {
	case SecureAlways:
		return true
	case SecureNever:
		return false
	}

	if r == nil {
		return true
	}
	if r.TLS != nil {
		return true
	}
	if e.config.Cookie.TrustForwardedProto {
		proto, _, _ := strings.Cut(r.Header.Get("X-Forwarded-Proto"), ",")
		return strings.EqualFold(strings.TrimSpace(proto), "https")
	}
	return false
}
