package config

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goSession "github.com/MrEthical07/goSession"
)

// Storage drivers accepted by storage.driver.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverBolt     = "bbolt"
)

// App is the full process configuration: the engine config plus the wiring the
// server command needs.
type App struct {
	Env      string
	HTTPAddr string
	Storage  StorageConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Session  goSession.Config
}

type StorageConfig struct {
	Driver string
	DSN    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig enables the Kafka audit sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load reads every engine key and validates the result.
func Load(src *Source) (goSession.Config, error) {
	cfg := goSession.DefaultConfig()

	secret, err := src.Secret("session.secret_key", goSession.MinSecretLength)
	if err != nil {
		return goSession.Config{}, err
	}
	cfg.Session.SecretKey = secret
	cfg.Session.TTL = src.Duration("session.ttl", cfg.Session.TTL)
	cfg.Session.RememberTTL = src.Duration("session.remember_ttl", cfg.Session.RememberTTL)
	cfg.Session.OperationTimeout = src.Duration("session.operation_timeout", cfg.Session.OperationTimeout)
	cfg.Session.KeyPrefix = src.String("session.key_prefix", cfg.Session.KeyPrefix)

	cfg.Cookie.Name = src.String("cookie.name", cfg.Cookie.Name)
	cfg.Cookie.Domain = src.String("cookie.domain", cfg.Cookie.Domain)
	cfg.Cookie.SecureMode = goSession.SecureMode(strings.ToLower(src.String("cookie.secure_mode", string(cfg.Cookie.SecureMode))))
	cfg.Cookie.TrustForwardedProto = src.Bool("cookie.trust_forwarded_proto", cfg.Cookie.TrustForwardedProto)
	sameSite, err := parseSameSite(src.String("cookie.same_site", "lax"))
	if err != nil {
		return goSession.Config{}, err
	}
	cfg.Cookie.SameSite = sameSite

	cfg.Password.Memory = uint32(src.Int("password.memory", int(cfg.Password.Memory)))
	cfg.Password.Time = uint32(src.Int("password.iterations", int(cfg.Password.Time)))
	cfg.Password.Parallelism = uint8(src.Int("password.parallelism", int(cfg.Password.Parallelism)))
	cfg.Password.SaltLength = uint32(src.Int("password.salt_length", int(cfg.Password.SaltLength)))
	cfg.Password.KeyLength = uint32(src.Int("password.key_length", int(cfg.Password.KeyLength)))
	cfg.Password.MinLength = src.Int("password.min_length", cfg.Password.MinLength)
	cfg.Password.MaxLength = src.Int("password.max_length", cfg.Password.MaxLength)
	cfg.Password.MinScore = src.Int("password.min_score", cfg.Password.MinScore)

	cfg.Lockout.Enabled = src.Bool("lockout.enabled", cfg.Lockout.Enabled)
	cfg.Lockout.Threshold = src.Int("lockout.threshold", cfg.Lockout.Threshold)
	cfg.Lockout.Window = src.Duration("lockout.window", cfg.Lockout.Window)
	cfg.Lockout.BaseDuration = src.Duration("lockout.base_duration", cfg.Lockout.BaseDuration)
	cfg.Lockout.MaxDuration = src.Duration("lockout.max_duration", cfg.Lockout.MaxDuration)

	cfg.RateLimit.Enabled = src.Bool("rate_limit.enabled", cfg.RateLimit.Enabled)
	cfg.RateLimit.Requests = src.Int("rate_limit.requests", cfg.RateLimit.Requests)
	cfg.RateLimit.Window = src.Duration("rate_limit.window", cfg.RateLimit.Window)
	cfg.RateLimit.Burst = src.Int("rate_limit.burst", cfg.RateLimit.Burst)
	cfg.RateLimit.ExemptPaths = src.StringSlice("rate_limit.exempt_paths", cfg.RateLimit.ExemptPaths)
	cfg.RateLimit.TrustForwardedFor = src.Bool("rate_limit.trust_forwarded_for", cfg.RateLimit.TrustForwardedFor)
	cfg.RateLimit.Rules = src.PathRules("rate_limit.rules", cfg.RateLimit.Rules)

	cfg.LoginRateLimit.Enabled = src.Bool("login_rate_limit.enabled", cfg.LoginRateLimit.Enabled)
	cfg.LoginRateLimit.Requests = src.Int("login_rate_limit.requests", cfg.LoginRateLimit.Requests)
	cfg.LoginRateLimit.Window = src.Duration("login_rate_limit.window", cfg.LoginRateLimit.Window)

	cfg.Redirect.LoginPath = src.String("redirect.login_path", cfg.Redirect.LoginPath)
	cfg.Redirect.AppPath = src.String("redirect.app_path", cfg.Redirect.AppPath)
	cfg.Redirect.DefaultPath = src.String("redirect.default_path", cfg.Redirect.DefaultPath)
	cfg.Redirect.AllowedHosts = src.StringSlice("redirect.allowed_hosts", cfg.Redirect.AllowedHosts)

	cfg.Audit.Enabled = src.Bool("audit.enabled", cfg.Audit.Enabled)
	cfg.Audit.BufferSize = src.Int("audit.buffer_size", cfg.Audit.BufferSize)
	cfg.Audit.DropIfFull = src.Bool("audit.drop_if_full", cfg.Audit.DropIfFull)

	cfg.Metrics.Enabled = src.Bool("metrics.enabled", cfg.Metrics.Enabled)
	cfg.Metrics.EnableLatencyHistograms = src.Bool("metrics.latency_histograms", cfg.Metrics.EnableLatencyHistograms)

	cfg.CSRF.Enabled = src.Bool("csrf.enabled", cfg.CSRF.Enabled)
	cfg.CSRF.TTL = src.Duration("csrf.ttl", cfg.CSRF.TTL)
	cfg.CSRF.ExemptPaths = src.StringSlice("csrf.exempt_paths", cfg.CSRF.ExemptPaths)

	cfg.Headers.HSTS = src.Bool("headers.hsts", cfg.Headers.HSTS)
	cfg.Headers.ContentSecurityPolicy = src.String("headers.content_security_policy", cfg.Headers.ContentSecurityPolicy)

	if err := src.Err(); err != nil {
		return goSession.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return goSession.Config{}, err
	}
	return cfg, nil
}

// LoadApp reads the engine config and the process wiring keys.
func LoadApp(src *Source) (App, error) {
	sessionCfg, err := Load(src)
	if err != nil {
		return App{}, err
	}

	app := App{
		Env:      src.String("env", "development"),
		HTTPAddr: src.String("http.addr", ":8080"),
		Storage: StorageConfig{
			Driver: strings.ToLower(src.String("storage.driver", DriverMemory)),
			DSN:    src.String("storage.dsn", ""),
		},
		Redis: RedisConfig{
			Addr:     src.String("redis.addr", "localhost:6379"),
			Password: src.String("redis.password", ""),
			DB:       src.Int("redis.db", 0),
		},
		Kafka: KafkaConfig{
			Brokers: src.StringSlice("audit.kafka_brokers", nil),
			Topic:   src.String("audit.kafka_topic", "gosession-audit"),
		},
		Session: sessionCfg,
	}
	if err := src.Err(); err != nil {
		return App{}, err
	}

	switch app.Storage.Driver {
	case DriverMemory, DriverRedis:
	case DriverPostgres, DriverSQLite, DriverBolt:
		if app.Storage.DSN == "" {
			return App{}, fmt.Errorf("%w: storage.dsn is required for driver %s", ErrMissing, app.Storage.Driver)
		}
	default:
		return App{}, fmt.Errorf("config: unknown storage.driver %q", app.Storage.Driver)
	}
	return app, nil
}

func parseSameSite(v string) (http.SameSite, error) {
	switch strings.ToLower(v) {
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	default:
		return 0, errors.New("config: cookie.same_site must be lax or strict")
	}
}
