package security

import (
	"slices"
	"testing"
	"time"
)

func hardenedInput() ReportInput {
	return ReportInput{
		SessionTTL:        12 * time.Hour,
		RememberTTL:       30 * 24 * time.Hour,
		CookieSecureMode:  "always",
		CookieSameSite:    "lax",
		MinScore:          2,
		LockoutEnabled:    true,
		LockoutThreshold:  5,
		LockoutDuration:   15 * time.Minute,
		LoginLimitEnabled: true,
		LoginLimitBudget:  20,
		HTTPLimitEnabled:  true,
		HTTPLimitBudget:   100,
		CSRFEnabled:       true,
		HSTSEnabled:       true,
		AllowedHosts:      1,
	}
}

func TestBuildReportHardened(t *testing.T) {
	r := BuildReport(hardenedInput())
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", r.Warnings)
	}
	if !r.LockoutActive || !r.LoginRateLimitActive || !r.HTTPRateLimitActive || !r.CSRFActive {
		t.Fatalf("expected all protections active: %+v", r)
	}
	if !r.RedirectHostsPinned || !r.StrengthCheckActive {
		t.Fatalf("expected pinned hosts and strength check: %+v", r)
	}
}

func TestBuildReportWarnings(t *testing.T) {
	in := hardenedInput()
	in.CookieSecureMode = "never"
	in.LockoutThreshold = 0
	in.LoginLimitEnabled = false
	in.CSRFEnabled = false
	in.MinScore = 0
	in.TrustForwardedFor = true

	r := BuildReport(in)
	want := []string{
		WarnInsecureCookie,
		WarnNoLockout,
		WarnNoLoginLimit,
		WarnNoCSRF,
		WarnNoStrengthCheck,
		WarnTrustForwardedFor,
	}
	if !slices.Equal(r.Warnings, want) {
		t.Fatalf("warnings = %v, want %v", r.Warnings, want)
	}
	if r.LockoutActive {
		t.Fatal("lockout with zero threshold must not count as active")
	}
}
