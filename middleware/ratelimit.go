package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/redis/go-redis/v9"
)

// RateLimit throttles requests per client IP before they reach next.
//
// Requests beyond cfg.Requests per cfg.Window receive 429 with a Retry-After
// header in seconds. A path matching one of cfg.Rules is counted against the first
// matching rule instead of the global budget, under a counter of its own. Paths under
// one of cfg.ExemptPaths bypass the limiter.
// The counters live in Redis when client is non-nil and in process memory otherwise.
// A limiter backend error lets the request through and is reported as
// infrastructure_error; authentication still applies downstream.
func RateLimit(cfg goSession.RateLimitConfig, client redis.UniversalClient, reporter EventReporter) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}

	newLimiter := func(rcfg rate.Config) rate.Limiter {
		if client != nil {
			return rate.NewRedisWindow(client, rcfg)
		}
		return rate.NewTokenBucket(rcfg)
	}

	rules := make([]pathLimiter, 0, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		rules = append(rules, pathLimiter{
			paths:   rule.Paths,
			limiter: newLimiter(rate.Config{Requests: rule.Requests, Window: rule.Window}),
		})
	}
	global := newLimiter(rate.Config{Requests: cfg.Requests, Window: cfg.Window, Burst: cfg.Burst})
	return rateLimit(global, rules, cfg, reporter)
}

type pathLimiter struct {
	paths   []string
	limiter rate.Limiter
}

// pick returns the limiter and counter key scope for path.
func pick(path string, global rate.Limiter, rules []pathLimiter) (rate.Limiter, string) {
	for i, rule := range rules {
		if exempt(path, rule.paths) {
			return rule.limiter, "http:r" + strconv.Itoa(i) + ":"
		}
	}
	return global, "http:"
}

func rateLimit(global rate.Limiter, rules []pathLimiter, cfg goSession.RateLimitConfig, reporter EventReporter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt(r.URL.Path, cfg.ExemptPaths) {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r, cfg.TrustForwardedFor)
			limiter, scope := pick(r.URL.Path, global, rules)
			res, err := limiter.Allow(r.Context(), scope+ip)
			if err != nil {
				if reporter != nil {
					reporter.ReportSecurityEvent(r.Context(), goSession.AuditInfrastructureError, "", map[string]string{
						"operation": "rate_limit",
					})
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.Allowed {
				if reporter != nil {
					reporter.ReportSecurityEvent(goSession.WithClientIP(r.Context(), ip), goSession.AuditRateLimitExceeded, "", map[string]string{
						"scope": "http",
						"path":  r.URL.Path,
					})
				}
				secs := int(math.Ceil(res.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the caller address. With trustForwarded set, the first
// X-Forwarded-For entry, then X-Real-IP, take precedence over RemoteAddr.
// Only enable it behind a proxy that overwrites those headers.
func ClientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
				return ip
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(realIP) != nil {
			return realIP
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// exempt reports whether path lies under one of prefixes. A prefix matches whole
// path segments only: "/healthz" covers "/healthz" and "/healthz/live" but not
// "/healthzadmin". A prefix ending in "/" covers everything below it.
func exempt(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(path, p) {
				return true
			}
			continue
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
