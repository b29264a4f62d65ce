package goSession

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func cookieEngine(mode SecureMode, trustProto bool) *Engine {
	cfg := testConfig()
	cfg.Cookie.SecureMode = mode
	cfg.Cookie.TrustForwardedProto = trustProto
	return &Engine{config: cfg}
}

func TestSessionCookieAttributes(t *testing.T) {
	e := cookieEngine(SecureAuto, false)

	r := httptest.NewRequest(http.MethodPost, "https://app.example/login", nil)
	r.TLS = &tls.ConnectionState{}
	w := httptest.NewRecorder()
	e.SetSessionCookie(w, r, "tok", true)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != "gs_sid" || c.Value != "tok" || c.Path != "/" {
		t.Fatalf("unexpected cookie %+v", c)
	}
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("missing cookie flags %+v", c)
	}
	if c.MaxAge != int(e.config.Session.RememberTTL.Seconds()) {
		t.Fatalf("MaxAge = %d", c.MaxAge)
	}

	w = httptest.NewRecorder()
	e.SetSessionCookie(w, r, "tok", false)
	if got := w.Result().Cookies()[0].MaxAge; got != 0 {
		t.Fatalf("browser-session cookie must not set MaxAge, got %d", got)
	}
}

func TestSecureRequestModes(t *testing.T) {
	plain := httptest.NewRequest(http.MethodGet, "http://app.example/", nil)
	proxied := httptest.NewRequest(http.MethodGet, "http://app.example/", nil)
	proxied.Header.Set("X-Forwarded-Proto", "https")

	cases := []struct {
		name  string
		e     *Engine
		r     *http.Request
		wants bool
	}{
		{"auto plain", cookieEngine(SecureAuto, false), plain, false},
		{"auto proxied untrusted", cookieEngine(SecureAuto, false), proxied, false},
		{"auto proxied trusted", cookieEngine(SecureAuto, true), proxied, true},
		{"always", cookieEngine(SecureAlways, false), plain, true},
		{"never", cookieEngine(SecureNever, false), proxied, false},
	}
	for _, tc := range cases {
		if got := tc.e.SecureRequest(tc.r); got != tc.wants {
			t.Fatalf("%s: SecureRequest = %v, want %v", tc.name, got, tc.wants)
		}
	}
}

func TestClearSessionCookie(t *testing.T) {
	e := cookieEngine(SecureAlways, false)
	w := httptest.NewRecorder()
	e.ClearSessionCookie(w, httptest.NewRequest(http.MethodPost, "/logout", nil))

	c := w.Result().Cookies()[0]
	if c.MaxAge >= 0 || c.Value != "" {
		t.Fatalf("cookie not expired: %+v", c)
	}
}

func TestSessionTokenFromRequest(t *testing.T) {
	e := cookieEngine(SecureAuto, false)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer abc")
	if got := e.SessionTokenFromRequest(r); got != "abc" {
		t.Fatalf("bearer token = %q", got)
	}

	r.AddCookie(&http.Cookie{Name: "gs_sid", Value: "cookie-tok"})
	if got := e.SessionTokenFromRequest(r); got != "cookie-tok" {
		t.Fatalf("cookie must win over bearer, got %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Basic abc")
	if got := e.SessionTokenFromRequest(r); got != "" {
		t.Fatalf("non-bearer scheme accepted: %q", got)
	}
}
