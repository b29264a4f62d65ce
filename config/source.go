// Package config reads goSession settings from environment variables and an
// optional config file through viper.
//
// Keys are dotted ("session.ttl"). The matching environment variable is the
// upper-cased key with dots replaced by underscores and a GOSESSION_ prefix
// (GOSESSION_SESSION_TTL).
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "GOSESSION"

// ErrMissing is returned when a required key has no value.
var ErrMissing = errors.New("config: required key not set")

// Source is a key to value lookup with type coercion and defaults.
//
// Coercion failures do not abort the lookup: the default is returned and the
// failure is kept for Err, so one Load reports every bad key at once.
type Source struct {
	v    *viper.Viper
	errs []error
}

// Option configures NewSource.
type Option func(*viper.Viper)

// WithFile reads path (yaml, json, toml or env, by extension) before the environment.
// Environment variables override file values.
func WithFile(path string) Option {
	return func(v *viper.Viper) {
		if path != "" {
			v.SetConfigFile(path)
		}
	}
}

// NewSource builds a Source over the process environment and the optional file.
func NewSource(opts ...Option) (*Source, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, opt := range opts {
		opt(v)
	}
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return &Source{v: v}, nil
}

// FromViper wraps an existing viper instance.
func FromViper(v *viper.Viper) *Source {
	return &Source{v: v}
}

// Err joins every coercion failure seen so far.
func (s *Source) Err() error {
	return errors.Join(s.errs...)
}

func (s *Source) fail(key, want string, raw any) {
	s.errs = append(s.errs, fmt.Errorf("config: %s: cannot use %q as %s", key, fmt.Sprint(raw), want))
}

// String returns the value of key, or def when unset.
func (s *Source) String(key, def string) string {
	if !s.v.IsSet(key) {
		return def
	}
	return strings.TrimSpace(s.v.GetString(key))
}

// Int returns key as an int, or def when unset or not an integer.
func (s *Source) Int(key string, def int) int {
	if !s.v.IsSet(key) {
		return def
	}
	switch raw := s.v.Get(key).(type) {
	case int:
		return raw
	case int64:
		return int(raw)
	case float64:
		if raw == float64(int(raw)) {
			return int(raw)
		}
		s.fail(key, "integer", raw)
		return def
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			s.fail(key, "integer", raw)
			return def
		}
		return n
	default:
		s.fail(key, "integer", raw)
		return def
	}
}

// Bool returns key as a bool, or def when unset or not a boolean.
func (s *Source) Bool(key string, def bool) bool {
	if !s.v.IsSet(key) {
		return def
	}
	switch raw := s.v.Get(key).(type) {
	case bool:
		return raw
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			s.fail(key, "boolean", raw)
			return def
		}
		return b
	default:
		s.fail(key, "boolean", raw)
		return def
	}
}

// Duration returns key as a duration. Strings use time.ParseDuration syntax;
// bare integers are seconds.
func (s *Source) Duration(key string, def time.Duration) time.Duration {
	if !s.v.IsSet(key) {
		return def
	}
	switch raw := s.v.Get(key).(type) {
	case time.Duration:
		return raw
	case int:
		return time.Duration(raw) * time.Second
	case int64:
		return time.Duration(raw) * time.Second
	case string:
		raw = strings.TrimSpace(raw)
		if n, err := strconv.Atoi(raw); err == nil {
			return time.Duration(n) * time.Second
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			s.fail(key, "duration", raw)
			return def
		}
		return d
	default:
		s.fail(key, "duration", raw)
		return def
	}
}

// StringSlice returns key as a list. A string value is split on commas.
func (s *Source) StringSlice(key string, def []string) []string {
	if !s.v.IsSet(key) {
		return def
	}
	var items []string
	switch raw := s.v.Get(key).(type) {
	case []string:
		items = raw
	case []any:
		for _, item := range raw {
			items = append(items, fmt.Sprint(item))
		}
	case string:
		items = strings.Split(raw, ",")
	default:
		s.fail(key, "list", raw)
		return def
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// PathRules returns key as rate limit rules. Each entry reads
// "<requests>/<window>:<path>|<path>", for example "5/1m:/login|/register".
// An empty list disables path rules.
func (s *Source) PathRules(key string, def []goSession.PathRule) []goSession.PathRule {
	if !s.v.IsSet(key) {
		return def
	}
	entries := s.StringSlice(key, nil)
	rules := make([]goSession.PathRule, 0, len(entries))
	for _, entry := range entries {
		rule, err := parsePathRule(entry)
		if err != nil {
			s.fail(key, "rate limit rule", entry)
			return def
		}
		rules = append(rules, rule)
	}
	return rules
}

func parsePathRule(entry string) (goSession.PathRule, error) {
	budget, paths, ok := strings.Cut(entry, ":")
	if !ok {
		return goSession.PathRule{}, errors.New("missing paths")
	}
	rawRequests, rawWindow, ok := strings.Cut(budget, "/")
	if !ok {
		return goSession.PathRule{}, errors.New("missing window")
	}
	requests, err := strconv.Atoi(strings.TrimSpace(rawRequests))
	if err != nil || requests < 1 {
		return goSession.PathRule{}, errors.New("bad request count")
	}
	window, err := time.ParseDuration(strings.TrimSpace(rawWindow))
	if err != nil || window <= 0 {
		return goSession.PathRule{}, errors.New("bad window")
	}

	rule := goSession.PathRule{Requests: requests, Window: window}
	for _, p := range strings.Split(paths, "|") {
		if p = strings.TrimSpace(p); p != "" {
			rule.Paths = append(rule.Paths, p)
		}
	}
	if len(rule.Paths) == 0 {
		return goSession.PathRule{}, errors.New("missing paths")
	}
	return rule, nil
}

// Secret returns a required secret of at least minLen characters. A short value
// fails with goSession.ErrWeakSecret.
func (s *Source) Secret(key string, minLen int) (string, error) {
	if !s.v.IsSet(key) {
		return "", fmt.Errorf("%w: %s", ErrMissing, key)
	}
	secret := s.v.GetString(key)
	if secret == "" {
		return "", fmt.Errorf("%w: %s", ErrMissing, key)
	}
	if len(secret) < minLen {
		return "", fmt.Errorf("%w: %s must be at least %d characters", goSession.ErrWeakSecret, key, minLen)
	}
	return secret, nil
}
