// Package middleware adapts goSession.Engine to net/http.
//
// # Components
//
//   - [Identity] resolves the session token on every request and attaches the
//     resulting goSession.Identity to the request context.
//   - [Guard] turns an identity into a tagged [Decision] (Proceed, RedirectTo, Deny).
//     [RequireAuthenticated] and [RequireAnonymous] interpret decisions for HTTP.
//   - [IsSafeRedirectTarget] validates post-login destinations.
//   - [RateLimit] throttles requests per client IP.
//   - [CSRF] enforces double-submit tokens on unsafe methods.
//   - [SecurityHeaders] sets the baseline response headers.
//
// # What this package must NOT do
//
//   - Touch storage directly. Every session and user lookup goes through the Engine.
//   - Fail a request because a backend is down. Identity degrades to anonymous.
//   - Redirect to a target that has not passed IsSafeRedirectTarget.
package middleware
