package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testApp(t *testing.T, driver, dsn string) config.App {
	t.Helper()
	cfg := goSession.DefaultConfig()
	cfg.Session.SecretKey = testSecret
	cfg.Password.Time = 2
	cfg.Password.Parallelism = 1
	return config.App{
		Env:     "test",
		Storage: config.StorageConfig{Driver: driver, DSN: dsn},
		Session: cfg,
	}
}

func TestReportCommand(t *testing.T) {
	t.Setenv("GOSESSION_SESSION_SECRET_KEY", testSecret)
	t.Setenv("GOSESSION_COOKIE_SECURE_MODE", "never")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"report"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())

	var report goSession.SecurityReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, "never", report.CookieSecureMode)
	assert.Contains(t, report.Warnings, "session cookie is never marked Secure")
}

func TestRuntimeFileBackends(t *testing.T) {
	for _, tc := range []struct {
		driver string
		file   string
	}{
		{config.DriverSQLite, "gosession.db"},
		{config.DriverBolt, "data/gosession.bolt"},
	} {
		t.Run(tc.driver, func(t *testing.T) {
			ctx := context.Background()
			app := testApp(t, tc.driver, filepath.Join(t.TempDir(), tc.file))

			rt, err := newRuntime(ctx, app)
			require.NoError(t, err)
			t.Cleanup(rt.Close)

			u, err := rt.engine.Register(ctx, goSession.RegisterRequest{
				Email:           "alice@example.com",
				Password:        "violet-Harbor-7-lantern",
				ConfirmPassword: "violet-Harbor-7-lantern",
			})
			require.NoError(t, err)

			token, err := rt.engine.Login(ctx, u.ID, goSession.LoginOptions{})
			require.NoError(t, err)
			id := rt.engine.ResolveIdentity(ctx, token)
			assert.Equal(t, u.ID, id.UserID())

			n, err := cleanupOnce(ctx, rt)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestRuntimeRejectsUnreachableRedis(t *testing.T) {
	app := testApp(t, config.DriverRedis, "")
	app.Redis.Addr = "127.0.0.1:1"

	_, err := newRuntime(context.Background(), app)
	require.Error(t, err)
}
