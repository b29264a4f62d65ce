package middleware

import (
	"net"
	"net/url"
	"strings"
)

// IsSafeRedirectTarget reports whether target may be used as a redirect destination.
//
// Accepted: rooted local paths ("/app/dashboard?tab=1"), and absolute http(s) URLs
// whose host (case-insensitive, port ignored) is listed in allowedHosts.
// Rejected: empty strings, control characters, backslashes, protocol-relative
// "//host" forms, userinfo, relative paths and every other scheme.
func IsSafeRedirectTarget(target string, allowedHosts []string) bool {
	if target == "" {
		return false
	}
	for i := 0; i < len(target); i++ {
		if c := target[i]; c < 0x20 || c == 0x7f || c == '\\' {
			return false
		}
	}
	if strings.HasPrefix(target, "//") {
		return false
	}

	u, err := url.Parse(target)
	if err != nil || u.User != nil || u.Opaque != "" {
		return false
	}

	if u.Scheme == "" && u.Host == "" {
		return strings.HasPrefix(target, "/")
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	return hostAllowed(u.Host, allowedHosts)
}

// SafeRedirectTarget returns target when it is safe and fallback otherwise.
func SafeRedirectTarget(target string, allowedHosts []string, fallback string) string {
	if IsSafeRedirectTarget(target, allowedHosts) {
		return target
	}
	return fallback
}

func hostAllowed(hostport string, allowedHosts []string) bool {
	host := normalizeHost(hostport)
	if host == "" {
		return false
	}
	for _, allowed := range allowedHosts {
		if normalizeHost(allowed) == host {
			return true
		}
	}
	return false
}

func normalizeHost(hostport string) string {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	return strings.TrimSuffix(strings.ToLower(strings.Trim(host, "[]")), ".")
}
