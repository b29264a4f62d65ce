package middleware

import (
	"net/http"
	"strconv"

	goSession "github.com/MrEthical07/goSession"
)

// SecurityHeaders sets nosniff, frame denial and a strict referrer policy on every
// response, plus HSTS, Content-Security-Policy and Permissions-Policy when configured.
func SecurityHeaders(cfg goSession.HeadersConfig) func(http.Handler) http.Handler {
	hsts := ""
	if cfg.HSTS && cfg.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.FormatInt(int64(cfg.HSTSMaxAge.Seconds()), 10) + "; includeSubDomains"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if hsts != "" {
				h.Set("Strict-Transport-Security", hsts)
			}
			if cfg.ContentSecurityPolicy != "" {
				h.Set("Content-Security-Policy", cfg.ContentSecurityPolicy)
			}
			if cfg.PermissionsPolicy != "" {
				h.Set("Permissions-Policy", cfg.PermissionsPolicy)
			}
			next.ServeHTTP(w, r)
		})
	}
}
