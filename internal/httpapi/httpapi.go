// Package httpapi is the reference HTTP surface over a goSession engine: a chi
// router with the full middleware stack and JSON handlers for login, logout,
// registration and session management.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	goSession "github.com/MrEthical07/goSession"
	promexport "github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/middleware"
)

// AdminRole is the user role allowed on /admin routes.
const AdminRole = "admin"

// Options configures NewRouter.
type Options struct {
	Engine *goSession.Engine
	Logger *zap.Logger
	// Redis backs the HTTP rate limiter when set; otherwise it is in-process.
	Redis redis.UniversalClient
	// Registry receives the engine exporter and the request metrics. A private
	// registry is used when nil.
	Registry *prometheus.Registry
}

// API holds the handler dependencies.
type API struct {
	engine *goSession.Engine
	guard  *middleware.Guard
	csrf   *middleware.CSRF
	logger *zap.Logger
}

// NewRouter builds the router with every route mounted.
func NewRouter(opts Options) (http.Handler, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	cfg := opts.Engine.Config()
	if err := promexport.NewExporter(opts.Engine).Register(registry); err != nil {
		return nil, err
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		return nil, err
	}

	a := &API{
		engine: opts.Engine,
		guard:  middleware.GuardFromEngine(opts.Engine),
		csrf:   middleware.CSRFFromEngine(opts.Engine),
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(httpMetrics.Handler)
	r.Use(middleware.SecurityHeaders(cfg.Headers))
	r.Use(middleware.RateLimit(cfg.RateLimit, opts.Redis, opts.Engine))
	r.Use(middleware.Identity(opts.Engine))
	r.Use(a.csrf.Middleware)

	r.Get("/healthz", a.Health)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Get("/csrf", a.CSRFToken)
	r.Post("/logout", a.Logout)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAnonymous(a.guard))
		r.Post("/login", a.Login)
		r.Post("/register", a.Register)
	})

	r.Route("/app", func(r chi.Router) {
		r.Use(middleware.RequireAuthenticated(a.guard))
		r.Get("/me", a.Me)
		r.Post("/password", a.ChangePassword)
		r.Get("/sessions", a.Sessions)
		r.Post("/sessions/rotate", a.Rotate)
		r.Post("/sessions/revoke-all", a.RevokeAll)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireAuthenticated(a.guard))
		r.Use(requireRole(AdminRole))
		r.Post("/users/{userID}/unlock", a.Unlock)
		r.Post("/sessions/cleanup", a.Cleanup)
	})

	return r, nil
}

func requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := middleware.Decision{Kind: middleware.Proceed}
			id := goSession.IdentityFromContext(r.Context())
			if id.User == nil || id.User.Role != role {
				d = middleware.Decision{Kind: middleware.Deny, Reason: "role " + role + " required"}
			}
			if middleware.Apply(w, r, d) {
				next.ServeHTTP(w, r)
			}
		})
	}
}
