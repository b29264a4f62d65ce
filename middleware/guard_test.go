package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(id string) *user.User {
	return &user.User{ID: id, Email: id + "@example.com", Active: true}
}

func testGuard(reporter EventReporter) *Guard {
	cfg := goSession.DefaultConfig().Redirect
	cfg.AllowedHosts = []string{"app.example"}
	return NewGuard(cfg, reporter)
}

func TestRequireAuthenticatedDecision(t *testing.T) {
	g := testGuard(nil)

	r := httptest.NewRequest(http.MethodGet, "/app/settings?tab=security", nil)
	d := g.RequireAuthenticated(r)
	require.Equal(t, RedirectTo, d.Kind)

	u, err := url.Parse(d.Target)
	require.NoError(t, err)
	assert.Equal(t, "/login", u.Path)
	assert.Equal(t, "/app/settings?tab=security", u.Query().Get("next"))

	d = g.RequireAuthenticated(withIdentity(r, "u-1"))
	assert.Equal(t, Proceed, d.Kind)
}

func TestRequireAnonymousDecision(t *testing.T) {
	g := testGuard(nil)

	r := httptest.NewRequest(http.MethodGet, "/login", nil)
	assert.Equal(t, Proceed, g.RequireAnonymous(r).Kind)

	d := g.RequireAnonymous(withIdentity(r, "u-1"))
	assert.Equal(t, Decision{Kind: RedirectTo, Target: "/app", Reason: "already authenticated"}, d)
}

func TestPostLoginTarget(t *testing.T) {
	reporter := &fakeReporter{}
	g := testGuard(reporter)

	r := httptest.NewRequest(http.MethodGet, "/login?next=%2Fapp%2Fbilling", nil)
	assert.Equal(t, "/app/billing", g.PostLoginTarget(r))

	r = httptest.NewRequest(http.MethodGet, "/login", nil)
	assert.Equal(t, "/app", g.PostLoginTarget(r))

	r = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("next=https%3A%2F%2Fevil.example%2Fphish"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, "/", g.PostLoginTarget(r))

	require.Equal(t, []goSession.AuditKind{goSession.AuditRedirectRejected}, reporter.kinds())
	assert.Equal(t, "https://evil.example/phish", reporter.events[0].Metadata["target"])
}

func TestGuardMiddleware(t *testing.T) {
	g := testGuard(nil)
	h := RequireAuthenticated(g)(okHandler())

	w := serve(h, httptest.NewRequest(http.MethodGet, "/app", nil))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login?next=%2Fapp", w.Header().Get("Location"))

	w = serve(h, withIdentity(httptest.NewRequest(http.MethodGet, "/app", nil), "u-1"))
	assert.Equal(t, http.StatusOK, w.Code)

	anon := RequireAnonymous(g)(okHandler())
	w = serve(anon, withIdentity(httptest.NewRequest(http.MethodGet, "/login", nil), "u-1"))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/app", w.Header().Get("Location"))
}

func TestApplyDeny(t *testing.T) {
	w := httptest.NewRecorder()
	proceed := Apply(w, httptest.NewRequest(http.MethodGet, "/admin", nil), Decision{Kind: Deny, Reason: "role"})
	assert.False(t, proceed)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
