package middleware

import (
	"context"
	"net/http"
	"net/url"

	goSession "github.com/MrEthical07/goSession"
)

// DecisionKind tags the outcome of a guard check.
type DecisionKind uint8

const (
	// Proceed lets the request through.
	Proceed DecisionKind = iota
	// RedirectTo sends the client to Decision.Target.
	RedirectTo
	// Deny rejects the request with Decision.Reason.
	Deny
)

func (k DecisionKind) String() string {
	switch k {
	case Proceed:
		return "proceed"
	case RedirectTo:
		return "redirect"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// Decision is the result of a guard check. The routing layer interprets it.
type Decision struct {
	Kind   DecisionKind
	Target string
	Reason string
}

// EventReporter receives security events observed by middleware.
// *goSession.Engine implements it.
type EventReporter interface {
	ReportSecurityEvent(ctx context.Context, kind goSession.AuditKind, subject string, metadata map[string]string)
}

// Guard evaluates access policies against the identity attached by [Identity].
type Guard struct {
	cfg      goSession.RedirectConfig
	reporter EventReporter
}

// NewGuard builds a Guard. reporter may be nil.
func NewGuard(cfg goSession.RedirectConfig, reporter EventReporter) *Guard {
	if cfg.NextParam == "" {
		cfg.NextParam = "next"
	}
	if cfg.DefaultPath == "" {
		cfg.DefaultPath = "/"
	}
	return &Guard{cfg: cfg, reporter: reporter}
}

// GuardFromEngine builds a Guard from the engine's redirect settings.
func GuardFromEngine(engine *goSession.Engine) *Guard {
	return NewGuard(engine.Config().Redirect, engine)
}

// RequireAuthenticated proceeds for authenticated requests and redirects anonymous
// ones to the login path, carrying the current path and query as the next target.
func (g *Guard) RequireAuthenticated(r *http.Request) Decision {
	if goSession.IdentityFromContext(r.Context()).Authenticated() {
		return Decision{Kind: Proceed}
	}
	return Decision{Kind: RedirectTo, Target: g.LoginRedirect(r), Reason: "authentication required"}
}

// RequireAnonymous redirects authenticated requests to the app path. Use it on
// login and registration pages.
func (g *Guard) RequireAnonymous(r *http.Request) Decision {
	if !goSession.IdentityFromContext(r.Context()).Authenticated() {
		return Decision{Kind: Proceed}
	}
	return Decision{Kind: RedirectTo, Target: g.cfg.AppPath, Reason: "already authenticated"}
}

// LoginRedirect builds the login URL for r. The return target is the request path
// and query when safe, and the default path otherwise.
func (g *Guard) LoginRedirect(r *http.Request) string {
	next := r.URL.RequestURI()
	if !IsSafeRedirectTarget(next, g.cfg.AllowedHosts) {
		g.reportRejected(r, next)
		next = g.cfg.DefaultPath
	}
	return g.cfg.LoginPath + "?" + url.Values{g.cfg.NextParam: {next}}.Encode()
}

// PostLoginTarget returns the validated next target carried by r in the query or
// form. A missing target yields the app path; an unsafe one yields the default path
// and is reported as redirect_rejected.
func (g *Guard) PostLoginTarget(r *http.Request) string {
	next := r.FormValue(g.cfg.NextParam)
	if next == "" {
		return g.cfg.AppPath
	}
	if !IsSafeRedirectTarget(next, g.cfg.AllowedHosts) {
		g.reportRejected(r, next)
		return g.cfg.DefaultPath
	}
	return next
}

func (g *Guard) reportRejected(r *http.Request, target string) {
	if g.reporter == nil {
		return
	}
	id := goSession.IdentityFromContext(r.Context())
	if len(target) > 256 {
		target = target[:256]
	}
	g.reporter.ReportSecurityEvent(r.Context(), goSession.AuditRedirectRejected, id.UserID(), map[string]string{
		"target": target,
		"path":   r.URL.Path,
	})
}

// Apply writes the HTTP response for d and reports whether the handler chain
// should continue. RedirectTo answers 303 See Other and Deny answers 403.
func Apply(w http.ResponseWriter, r *http.Request, d Decision) bool {
	switch d.Kind {
	case Proceed:
		return true
	case RedirectTo:
		http.Redirect(w, r, d.Target, http.StatusSeeOther)
	default:
		http.Error(w, "forbidden", http.StatusForbidden)
	}
	return false
}

// RequireAuthenticated wraps next with Guard.RequireAuthenticated.
func RequireAuthenticated(g *Guard) func(http.Handler) http.Handler {
	return guardMiddleware(g.RequireAuthenticated)
}

// RequireAnonymous wraps next with Guard.RequireAnonymous.
func RequireAnonymous(g *Guard) func(http.Handler) http.Handler {
	return guardMiddleware(g.RequireAnonymous)
}

func guardMiddleware(check func(*http.Request) Decision) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if Apply(w, r, check(r)) {
				next.ServeHTTP(w, r)
			}
		})
	}
}
