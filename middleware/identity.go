package middleware

import (
	"net/http"

	goSession "github.com/MrEthical07/goSession"
)

// Identity resolves the session token of every request and attaches the identity,
// the client IP and the User-Agent to the request context.
//
// It never fails the request: a missing or dead session and every backend error
// yield goSession.Anonymous.
func Identity(engine *goSession.Engine) func(http.Handler) http.Handler {
	trustForwarded := engine.Config().RateLimit.TrustForwardedFor

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := goSession.WithClientIP(r.Context(), ClientIP(r, trustForwarded))
			ctx = goSession.WithUserAgent(ctx, r.UserAgent())

			id := engine.ResolveIdentity(ctx, engine.SessionTokenFromRequest(r))
			ctx = goSession.WithIdentity(ctx, id)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
