package config

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestSourceCoercion(t *testing.T) {
	v := viper.New()
	v.Set("a.int", "42")
	v.Set("a.bool", "true")
	v.Set("a.dur", "90s")
	v.Set("a.secs", 30)
	v.Set("a.list", "x, y,,z")
	src := FromViper(v)

	assert.Equal(t, 42, src.Int("a.int", 0))
	assert.True(t, src.Bool("a.bool", false))
	assert.Equal(t, 90*time.Second, src.Duration("a.dur", 0))
	assert.Equal(t, 30*time.Second, src.Duration("a.secs", 0))
	assert.Equal(t, []string{"x", "y", "z"}, src.StringSlice("a.list", nil))
	assert.Equal(t, "fallback", src.String("missing", "fallback"))
	assert.Equal(t, 7, src.Int("missing", 7))
	assert.NoError(t, src.Err())
}

func TestSourceCollectsCoercionErrors(t *testing.T) {
	v := viper.New()
	v.Set("a.int", "many")
	v.Set("a.dur", "soon")
	src := FromViper(v)

	assert.Equal(t, 3, src.Int("a.int", 3))
	assert.Equal(t, time.Minute, src.Duration("a.dur", time.Minute))
	err := src.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.int")
	assert.Contains(t, err.Error(), "a.dur")
}

func TestPathRules(t *testing.T) {
	v := viper.New()
	v.Set("rate_limit.rules", "5/1m:/register, 20/30s:/login|/password")
	src := FromViper(v)

	rules := src.PathRules("rate_limit.rules", nil)
	require.NoError(t, src.Err())
	assert.Equal(t, []goSession.PathRule{
		{Requests: 5, Window: time.Minute, Paths: []string{"/register"}},
		{Requests: 20, Window: 30 * time.Second, Paths: []string{"/login", "/password"}},
	}, rules)

	def := []goSession.PathRule{{Requests: 1, Window: time.Second, Paths: []string{"/x"}}}
	for _, bad := range []string{"5:/login", "5/1m", "0/1m:/login", "5/never:/login", "5/1m:|"} {
		v.Set("bad", bad)
		bsrc := FromViper(v)
		assert.Equal(t, def, bsrc.PathRules("bad", def), bad)
		assert.Error(t, bsrc.Err(), bad)
	}
}

func TestLoadRateLimitRules(t *testing.T) {
	t.Setenv("GOSESSION_SESSION_SECRET_KEY", secret)
	t.Setenv("GOSESSION_RATE_LIMIT_RULES", "3/1m:/register")

	src, err := NewSource()
	require.NoError(t, err)
	cfg, err := Load(src)
	require.NoError(t, err)
	assert.Equal(t, []goSession.PathRule{{Requests: 3, Window: time.Minute, Paths: []string{"/register"}}}, cfg.RateLimit.Rules)
}

func TestSecret(t *testing.T) {
	v := viper.New()
	src := FromViper(v)

	_, err := src.Secret("session.secret_key", 32)
	assert.ErrorIs(t, err, ErrMissing)

	v.Set("session.secret_key", "short")
	_, err = src.Secret("session.secret_key", 32)
	assert.ErrorIs(t, err, goSession.ErrWeakSecret)

	v.Set("session.secret_key", secret)
	got, err := src.Secret("session.secret_key", 32)
	require.NoError(t, err)
	assert.Equal(t, secret, got)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("GOSESSION_SESSION_SECRET_KEY", secret)
	t.Setenv("GOSESSION_SESSION_TTL", "2h")
	t.Setenv("GOSESSION_COOKIE_SAME_SITE", "strict")
	t.Setenv("GOSESSION_LOCKOUT_THRESHOLD", "5")
	t.Setenv("GOSESSION_REDIRECT_ALLOWED_HOSTS", "app.example,admin.example")

	src, err := NewSource()
	require.NoError(t, err)
	cfg, err := Load(src)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, http.SameSiteStrictMode, cfg.Cookie.SameSite)
	assert.Equal(t, 5, cfg.Lockout.Threshold)
	assert.Equal(t, []string{"app.example", "admin.example"}, cfg.Redirect.AllowedHosts)
	assert.Equal(t, 30*24*time.Hour, cfg.Session.RememberTTL)
}

func TestLoadRejectsWeakSecret(t *testing.T) {
	t.Setenv("GOSESSION_SESSION_SECRET_KEY", "too-short")

	src, err := NewSource()
	require.NoError(t, err)
	_, err = Load(src)
	assert.True(t, errors.Is(err, goSession.ErrWeakSecret))
}

func TestLoadAppFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gosession.yaml")
	yaml := `
env: production
http:
  addr: ":9000"
session:
  secret_key: "` + secret + `"
storage:
  driver: sqlite
  dsn: "file:` + filepath.ToSlash(filepath.Join(dir, "db.sqlite")) + `"
audit:
  kafka_brokers: ["k1:9092", "k2:9092"]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("GOSESSION_HTTP_ADDR", ":9100")

	src, err := NewSource(WithFile(path))
	require.NoError(t, err)
	app, err := LoadApp(src)
	require.NoError(t, err)

	assert.Equal(t, "production", app.Env)
	assert.Equal(t, ":9100", app.HTTPAddr, "environment overrides the file")
	assert.Equal(t, DriverSQLite, app.Storage.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, app.Kafka.Brokers)
}

func TestLoadAppRequiresDSN(t *testing.T) {
	t.Setenv("GOSESSION_SESSION_SECRET_KEY", secret)
	t.Setenv("GOSESSION_STORAGE_DRIVER", "postgres")

	src, err := NewSource()
	require.NoError(t, err)
	_, err = LoadApp(src)
	assert.ErrorIs(t, err, ErrMissing)
}
