package goSession

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/limiters"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/password"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/user"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Builder assembles an Engine. Repositories that are not supplied explicitly are
// created on the Redis client when one is set, and in process memory otherwise.
//
// A Builder is single use: Build fails on the second call.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	sessions session.Repository
	users    user.Repository

	logger         *zap.Logger
	auditSink      AuditSink
	tracerProvider trace.TracerProvider
	now            func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs the default session and user repositories, the lockout tracker
// and the login rate limiter with client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionRepository overrides the session backend. The repository must hash
// tokens with a session.Hasher keyed by Config.Session.SecretKey.
func (b *Builder) WithSessionRepository(repo session.Repository) *Builder {
	b.sessions = repo
	return b
}

func (b *Builder) WithUserRepository(repo user.Repository) *Builder {
	b.users = repo
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the sink behind the async audit dispatcher. Without one,
// events are logged through the Engine logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

// WithClock overrides the time source of the Engine and of every backend Build creates.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine. It hashes one dummy
// password, so it takes as long as a single Argon2id run.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tp := b.tracerProvider
	if tp == nil {
		tp = noop.NewTracerProvider()
	}

	// -------- SESSIONS --------
	sessions := b.sessions
	if sessions == nil {
		hasher, err := session.NewHasher(cfg.Session.SecretKey)
		if err != nil {
			return nil, err
		}
		if b.redis != nil {
			sessions = session.NewStore(b.redis, hasher,
				session.WithKeyPrefix(cfg.Session.KeyPrefix),
				session.WithClock(now),
			)
		} else {
			sessions = session.NewMemoryRepository(hasher, session.WithClock(now))
		}
	}

	// -------- USERS --------
	users := b.users
	if users == nil {
		if b.redis != nil {
			users = user.NewRedisRepository(b.redis,
				user.WithKeyPrefix(cfg.Session.KeyPrefix),
				user.WithClock(now),
			)
		} else {
			users = user.NewMemoryRepository(user.WithClock(now))
		}
	}

	engine := &Engine{
		config:   cfg,
		sessions: sessions,
		users:    users,
		logger:   logger,
		tracer:   tp.Tracer(tracerName),
		now:      now,
		metrics:  NewMetrics(cfg.Metrics),
	}

	// -------- LOCKOUT --------
	if cfg.Lockout.Enabled {
		lcfg := limiters.LockoutConfig(cfg.Lockout)
		if b.redis != nil {
			engine.lockout = limiters.NewRedisLockout(b.redis, lcfg,
				limiters.WithKeyPrefix(cfg.Session.KeyPrefix),
				limiters.WithClock(now),
			)
		} else {
			engine.lockout = limiters.NewMemoryLockout(lcfg, limiters.WithClock(now))
		}
	}

	// -------- LOGIN RATE LIMIT --------
	if cfg.LoginRateLimit.Enabled {
		rcfg := rate.Config{
			Requests: cfg.LoginRateLimit.Requests,
			Window:   cfg.LoginRateLimit.Window,
		}
		if b.redis != nil {
			engine.loginLimiter = rate.NewRedisWindow(b.redis, rcfg,
				rate.WithKeyPrefix(cfg.Session.KeyPrefix),
				rate.WithClock(now),
			)
		} else {
			engine.loginLimiter = rate.NewTokenBucket(rcfg, rate.WithClock(now))
		}
	}

	// -------- PASSWORDS --------
	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph
	engine.policy = password.NewPolicy(password.PolicyConfig{
		MinLength:      cfg.Password.MinLength,
		MaxLength:      cfg.Password.MaxLength,
		RequireUpper:   cfg.Password.RequireUpper,
		RequireLower:   cfg.Password.RequireLower,
		RequireDigit:   cfg.Password.RequireDigit,
		RequireSpecial: cfg.Password.RequireSpecial,
		MinScore:       cfg.Password.MinScore,
	})

	dummy, err := session.NewToken()
	if err != nil {
		return nil, fmt.Errorf("dummy password: %w", err)
	}
	engine.dummyHash, err = ph.Hash(dummy)
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}

	// -------- AUDIT --------
	sink := b.auditSink
	if sink == nil {
		sink = audit.NewZapSink(logger)
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	b.built = true

	logger.Info("session engine ready",
		zap.Bool("redis", b.redis != nil),
		zap.Bool("lockout", cfg.Lockout.Enabled),
		zap.Bool("login_rate_limit", cfg.LoginRateLimit.Enabled),
		zap.Duration("session_ttl", cfg.Session.TTL),
	)

	return engine, nil
}
