package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rateConfig() goSession.RateLimitConfig {
	return goSession.RateLimitConfig{
		Enabled:     true,
		Requests:    2,
		Window:      time.Minute,
		ExemptPaths: []string{"/healthz", "/static/"},
	}
}

func TestRateLimitRejectsBeyondBudget(t *testing.T) {
	reporter := &fakeReporter{}
	h := RateLimit(rateConfig(), nil, reporter)(okHandler())

	for i := 0; i < 2; i++ {
		r := httptest.NewRequest(http.MethodGet, "/login", nil)
		r.RemoteAddr = "192.0.2.10:5000"
		assert.Equal(t, http.StatusOK, serve(h, r).Code)
	}

	r := httptest.NewRequest(http.MethodGet, "/login", nil)
	r.RemoteAddr = "192.0.2.10:5001"
	w := serve(h, r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, []goSession.AuditKind{goSession.AuditRateLimitExceeded}, reporter.kinds())

	other := httptest.NewRequest(http.MethodGet, "/login", nil)
	other.RemoteAddr = "192.0.2.11:5000"
	assert.Equal(t, http.StatusOK, serve(h, other).Code)
}

func TestRateLimitExemptPaths(t *testing.T) {
	h := RateLimit(rateConfig(), nil, nil)(okHandler())

	for i := 0; i < 5; i++ {
		r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, serve(h, r).Code)
		r = httptest.NewRequest(http.MethodGet, "/static/app.css", nil)
		assert.Equal(t, http.StatusOK, serve(h, r).Code)
	}
}

func TestRateLimitExemptMatchesWholeSegments(t *testing.T) {
	h := RateLimit(rateConfig(), nil, nil)(okHandler())

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/healthz/live", nil)).Code)
	}
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(h, httptest.NewRequest(http.MethodGet, "/healthzadmin", nil)).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestExempt(t *testing.T) {
	prefixes := []string{"/healthz", "/static/", ""}
	cases := map[string]bool{
		"/healthz":        true,
		"/healthz/ready":  true,
		"/healthzadmin":   false,
		"/static/app.css": true,
		"/static":         false,
		"/staticfiles":    false,
		"/":               false,
	}
	for path, want := range cases {
		assert.Equal(t, want, exempt(path, prefixes), path)
	}
}

func TestRateLimitPathRules(t *testing.T) {
	cfg := rateConfig()
	cfg.Requests = 5
	cfg.Rules = []goSession.PathRule{
		{Requests: 1, Window: time.Minute, Paths: []string{"/register"}},
		{Requests: 2, Window: time.Minute, Paths: []string{"/login", "/register"}},
	}
	reporter := &fakeReporter{}
	h := RateLimit(cfg, nil, reporter)(okHandler())

	send := func(path string) int {
		r := httptest.NewRequest(http.MethodPost, path, nil)
		r.RemoteAddr = "192.0.2.20:5000"
		return serve(h, r).Code
	}

	assert.Equal(t, http.StatusOK, send("/register"))
	assert.Equal(t, http.StatusTooManyRequests, send("/register"), "first matching rule applies")

	assert.Equal(t, http.StatusOK, send("/login"))
	assert.Equal(t, http.StatusOK, send("/login"))
	assert.Equal(t, http.StatusTooManyRequests, send("/login"))

	// Rule traffic does not draw on the global budget.
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, send("/app"), "request %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, send("/app"))
	assert.Len(t, reporter.kinds(), 3)
}

func TestRateLimitPathRulesRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	cfg := rateConfig()
	cfg.Rules = []goSession.PathRule{{Requests: 1, Window: time.Minute, Paths: []string{"/register"}}}
	h := RateLimit(cfg, rdb, nil)(okHandler())

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		codes = append(codes, serve(h, httptest.NewRequest(http.MethodPost, "/register", nil)).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}

func TestRateLimitRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	h := RateLimit(rateConfig(), rdb, nil)(okHandler())
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(h, httptest.NewRequest(http.MethodGet, "/login", nil)).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (rate.Result, error) {
	return rate.Result{}, errors.New("backend down")
}

func TestRateLimitBackendFailureLetsRequestThrough(t *testing.T) {
	reporter := &fakeReporter{}
	h := rateLimit(failingLimiter{}, nil, rateConfig(), reporter)(okHandler())

	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	assert.Equal(t, []goSession.AuditKind{goSession.AuditInfrastructureError}, reporter.kinds())
}

func TestRateLimitDisabled(t *testing.T) {
	cfg := rateConfig()
	cfg.Enabled = false
	h := RateLimit(cfg, nil, nil)(okHandler())
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	assert.Equal(t, "10.0.0.1", ClientIP(r, false))
	assert.Equal(t, "203.0.113.9", ClientIP(r, true))

	r.Header.Set("X-Forwarded-For", "not-an-ip")
	r.Header.Set("X-Real-IP", "203.0.113.10")
	assert.Equal(t, "203.0.113.10", ClientIP(r, true))
}
